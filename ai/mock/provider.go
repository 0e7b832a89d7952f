package mock

import "github.com/quarryai/quarry/ai"

// Provider is a test double for ai.Provider wrapping a MockEmbedder.
type Provider struct {
	embedder *MockEmbedder
	closed   bool
}

// NewProvider creates a provider around the given embedder. A nil
// embedder gets the default deterministic one.
func NewProvider(embedder *MockEmbedder) *Provider {
	if embedder == nil {
		embedder = NewMockEmbedder()
	}
	return &Provider{embedder: embedder}
}

// Embedder returns the wrapped mock embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Close marks the provider closed.
func (p *Provider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (p *Provider) Closed() bool {
	return p.closed
}
