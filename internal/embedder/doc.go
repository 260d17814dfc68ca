// Package embedder implements the ChunkedEncoder, which maps source text of
// arbitrary length to two fixed-size vectors.
//
// Text is tokenized once without boundary markers. Sequences that fit in a
// single window are encoded directly; longer sequences are split into
// overlapping windows of ChunkSize tokens advancing by Stride, each wrapped
// in boundary markers and right-padded to a common length. The whole batch is
// encoded in one inference call.
//
// Two vectors are pooled from the result:
//
//   - token mean: the attention-masked mean of each window's hidden states,
//     then the arithmetic mean across windows
//   - summary mean: the arithmetic mean of each window's pooled vector
//
// Accumulation is done in float64 so the result does not depend on window
// order beyond rounding.
//
// # Usage
//
//	enc, _ := embedder.NewEncoder(cfg.Encoder)
//	ce, err := embedder.New(enc, embedder.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer ce.Close()
//
//	pair, err := ce.Embed(ctx, source)
//	fmt.Println(len(pair.TokenMean), pair.WindowCount)
//
// # Caching
//
// When Config.CacheSize is positive, results are kept in an LRU cache keyed
// by the SHA-256 of the input text. Cached pairs are copied on the way in and
// out.
package embedder
