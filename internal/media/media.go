package media

import (
	"context"

	"scriptlab/internal/plan"
)

// Request describes one asset generation call. An empty ReferenceURLs list
// means unconditioned generation.
type Request struct {
	Medium        plan.Medium
	Prompt        string
	AspectRatio   string
	ReferenceURLs []string
}

// Result is what a provider returns: a resolvable locator plus optional
// provider metadata.
type Result struct {
	URL      string
	Metadata map[string]string
}

// Generator produces media for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Result, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
