// Package compress provides the block compression codecs used by the
// compressed stored-value wrapper in package codec.
//
// Four algorithms are available: None (pass-through), LZ4 (fastest),
// S2 (fast with better ratios on text), and Zstd (best ratio, slower).
// Stored field values are typically small, so all implementations use
// one-shot block APIs with pooled encoder state rather than streaming.
package compress
