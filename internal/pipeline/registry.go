package pipeline

import (
	"sync"

	"github.com/fenwick-labs/llmproxy/internal/config"
	"github.com/fenwick-labs/llmproxy/internal/llm"
	"github.com/fenwick-labs/llmproxy/internal/perr"
	"github.com/fenwick-labs/llmproxy/internal/processor"
	"github.com/fenwick-labs/llmproxy/internal/providers"
	"github.com/fenwick-labs/llmproxy/internal/request"
	"github.com/fenwick-labs/llmproxy/internal/upstream"
)

// ProcessorFactory builds a concrete Processor from its config. No
// built-in processor kinds ship; a deployment registers whatever
// augmentation it needs under the "type" name it uses in its config.
type ProcessorFactory func(spec config.ProcessorConfig) (processor.Processor, error)

// Registry caches one Pipeline per route path_prefix, built lazily on
// first use and never evicted. Reads take the read lock; a cache miss
// releases it, builds the Pipeline, then re-acquires the write lock and
// double-checks before inserting, so a race between concurrent
// first-requests never produces two pipelines for the same route.
type Registry struct {
	mu         sync.RWMutex
	pipelines  map[string]*Pipeline
	cfg        *config.Config
	factories  map[string]ProcessorFactory
	httpClient providers.ClientProvider
}

// NewRegistry builds a Registry backed by cfg. factories may be nil if no
// route references a processor.
func NewRegistry(cfg *config.Config, factories map[string]ProcessorFactory) *Registry {
	if factories == nil {
		factories = map[string]ProcessorFactory{}
	}
	return &Registry{
		pipelines: make(map[string]*Pipeline),
		cfg:       cfg,
		factories: factories,
		// No Timeout on the shared upstream client: a streaming chat
		// completion can run far longer than any single fixed deadline,
		// and http.Client.Timeout bounds the whole response read, not
		// just connection setup.
		httpClient: providers.NewStaticClient(providers.NewDefaultClient()),
	}
}

// Get returns the cached Pipeline for route, building and inserting one
// on first use.
func (r *Registry) Get(route *config.RouteConfig) (*Pipeline, error) {
	r.mu.RLock()
	p, ok := r.pipelines[route.PathPrefix]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	built, err := r.build(route)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pipelines[route.PathPrefix]; ok {
		return existing, nil
	}
	r.pipelines[route.PathPrefix] = built
	return built, nil
}

func (r *Registry) build(route *config.RouteConfig) (*Pipeline, error) {
	llmCfg, ok := r.cfg.LLM[route.TargetLLM]
	if !ok {
		return nil, perr.Config(nil, "route %q references unconfigured llm backend %q", route.PathPrefix, route.TargetLLM)
	}

	chain, err := r.buildChain(route.Processors)
	if err != nil {
		return nil, err
	}

	executor, err := r.buildExecutor(llmCfg)
	if err != nil {
		return nil, err
	}

	return New(request.Parse, chain, executor, route.AllowStreaming, route.AllowNonStreaming), nil
}

func (r *Registry) buildChain(ids []string) (*processor.Chain, error) {
	procs := make([]processor.Processor, 0, len(ids))
	for _, id := range ids {
		spec, ok := r.cfg.Processor[id]
		if !ok {
			return nil, perr.Pipeline(nil, "processor %q is not configured", id)
		}
		factory, ok := r.factories[spec.Type]
		if !ok {
			return nil, perr.Pipeline(nil, "no factory registered for processor type %q", spec.Type)
		}
		p, err := factory(spec)
		if err != nil {
			return nil, perr.Pipeline(err, "building processor %q", id)
		}
		procs = append(procs, p)
	}
	return processor.NewChain(procs...), nil
}

func (r *Registry) buildExecutor(llmCfg config.LLMConfig) (llm.Executor, error) {
	tokenProvider := providers.NewEnvToken(llmCfg.TokenEnv)
	urlProvider := providers.NewStaticURL(llmCfg.BaseURL)

	switch llmCfg.Provider {
	case "openai":
		return &llm.Client{
			ClientProvider: r.httpClient,
			TokenProvider:  tokenProvider,
			URLProvider:    urlProvider,
		}, nil
	case "anthropic":
		return &upstream.AnthropicClient{
			ClientProvider: r.httpClient,
			TokenProvider:  tokenProvider,
			URLProvider:    urlProvider,
		}, nil
	case "google":
		return &upstream.GoogleClient{
			ClientProvider: r.httpClient,
			TokenProvider:  tokenProvider,
			URLProvider:    urlProvider,
		}, nil
	default:
		return nil, perr.Config(nil, "unknown llm provider %q", llmCfg.Provider)
	}
}
