// Package chunker splits a token sequence into overlapping windows and packs
// them into a padded batch for the encoder.
//
// # Windowing
//
// Windows start at offsets 0, stride, 2*stride, ... while the offset is still
// inside the sequence. Each window holds up to ChunkSize tokens, so
// consecutive windows overlap by ChunkSize-Stride tokens and the tail windows
// may be short:
//
//	c := chunker.Config{ChunkSize: 4, Stride: 2}
//	windows := c.Split([]int{1, 2, 3, 4, 5, 6, 7})
//	// offsets 0, 2, 4, 6
//	// [1 2 3 4] [3 4 5 6] [5 6 7] [7]
//
// A sequence that fits in one window (including the empty sequence) yields
// exactly one window at offset 0.
//
// Stride must lie in [1, ChunkSize]. A larger stride would skip tokens and is
// rejected by Validate.
//
// # Batching
//
// BuildBatch adds the tokenizer's boundary markers to each window, right-pads
// every row with the pad id to the longest row, and builds the attention mask
// (1 for content and boundary tokens, 0 for padding).
package chunker
