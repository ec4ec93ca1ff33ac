package media

import (
	"context"
	"fmt"

	"scriptlab/internal/plan"
	"scriptlab/internal/services"
)

// Router dispatches requests to a Generator by medium.
type Router struct {
	routes map[plan.Medium]Generator
	names  map[plan.Medium]string
}

// NewRouter returns an empty router. Requests for unrouted media fail with a
// configuration error.
func NewRouter() *Router {
	return &Router{
		routes: make(map[plan.Medium]Generator),
		names:  make(map[plan.Medium]string),
	}
}

// Route registers g, labelled name, for medium and returns the router.
func (r *Router) Route(medium plan.Medium, name string, g Generator) *Router {
	if g == nil {
		return r
	}
	r.routes[medium] = g
	r.names[medium] = name
	return r
}

// Provider reports which provider serves medium.
func (r *Router) Provider(medium plan.Medium) (string, bool) {
	name, ok := r.names[medium]
	return name, ok
}

// Generate implements Generator. The provider name is added to the result
// metadata.
func (r *Router) Generate(ctx context.Context, req Request) (Result, error) {
	g, ok := r.routes[req.Medium]
	if !ok {
		return Result{}, services.Wrap(
			services.ErrConfiguration,
			"media",
			"route",
			fmt.Sprintf("no provider configured for %s assets", req.Medium),
			nil,
		)
	}
	result, err := g.Generate(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]string, 1)
	}
	if _, set := result.Metadata["provider"]; !set {
		result.Metadata["provider"] = r.names[req.Medium]
	}
	return result, nil
}
