package sources

import (
	"net/http"

	"bazaar-backend/lib/respcache"
)

// PipelineContext carries the shared collaborators every scraper
// needs: the source registry, the response cache, and an optional
// transport override. It is built once at startup and passed
// explicitly, there is no global state.
type PipelineContext struct {
	Registry *Registry
	Cache    respcache.Store
	// Transport replaces the default http transport when set, mainly
	// for tests and for sources behind bot protection.
	Transport http.RoundTripper
}

func NewPipelineContext(registry *Registry, cache respcache.Store) PipelineContext {
	return PipelineContext{Registry: registry, Cache: cache}
}
