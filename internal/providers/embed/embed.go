package embed

import "context"

// Provider computes fixed-length vectors for text. Vector length must match
// the embedding_records column dimension.
type Provider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Close() error
}
