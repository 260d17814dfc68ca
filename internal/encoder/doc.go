// Package encoder defines the contract with a pretrained sequence encoder and
// ships the implementations patternvec can run against.
//
// An Encoder is a Tokenizer plus a Model. The chunked encoder only relies on
// these operations:
//
//	ids, err := enc.Tokenize(code)        // no boundary markers
//	row := enc.WithBoundaries(ids[a:b])   // start/end markers added
//	pad := enc.PadID()
//	out, err := enc.Infer(ctx, batch)     // hidden states + pooled vectors
//	h := enc.HiddenSize()
//
// # Implementations
//
// Tokenizers:
//   - TiktokenTokenizer: BPE vocabulary (cl100k_base by default)
//   - ByteTokenizer: UTF-8 bytes, no vocabulary file, used offline and in tests
//
// Models:
//   - LocalModel: deterministic hash-derived states, no network
//   - RemoteModel: HTTP inference server returning last_hidden_state and
//     pooler_output, with retry and exponential backoff
//
// Combine them with NewPair:
//
//	tok, _ := encoder.NewTiktokenTokenizer("cl100k_base")
//	model, _ := encoder.NewRemoteModel(encoder.RemoteConfig{
//	    Endpoint:   "http://localhost:8080",
//	    HiddenSize: 768,
//	    Device:     encoder.DeviceCUDA,
//	})
//	enc := encoder.NewPair("remote", tok, model)
//
// # Devices
//
// Device selection is explicit. ResolveDevice is called once at startup and
// the result is handed to the model constructor; it never changes afterwards.
package encoder
