// Package pipeline orchestrates a query through the router, retriever,
// assembler and responder. The flow is an eino graph compiled once:
//
//	START -> route -> retrieve -> assemble -> respond -> END
//	              \______________________/
//	               (non-answerable intents)
//
// Every run ends in a single rag.Response. Only request validation errors are
// returned to the caller; provider and index failures degrade the response
// and are recorded in its provenance.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/flarerag-go/internal/assembler"
	"github.com/54b3r/flarerag-go/internal/index"
	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/rag"
	"github.com/54b3r/flarerag-go/internal/responder"
	"github.com/54b3r/flarerag-go/internal/retriever"
	"github.com/54b3r/flarerag-go/internal/router"
)

// Graph node keys.
const (
	nodeRoute    = "route"
	nodeRetrieve = "retrieve"
	nodeAssemble = "assemble"
	nodeRespond  = "respond"
)

// Deps are the shared external capabilities. All of them must be safe for
// concurrent use; the pipeline never closes them.
type Deps struct {
	// LLM serves both classification and generation.
	LLM rag.LLM

	// Embedder produces query-purpose embeddings.
	Embedder rag.Embedder

	// Index is searched by the retriever and never written.
	Index index.Client

	// Registerer receives the pipeline metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer
}

// Pipeline answers requests. It is safe for concurrent use: each Answer call
// owns its own run state.
type Pipeline struct {
	cfg       *Config
	router    *router.Router
	retriever *retriever.Retriever
	assembler *assembler.Assembler
	responder *responder.Responder
	graph     compose.Runnable[*run, *run]
	metrics   *pipelineMetrics
}

// run is the per-request state threaded through the graph.
type run struct {
	query        rag.Query
	result       rag.RetrievalResult
	retrievalErr error
	context      *rag.Context
	response     rag.Response
}

// New wires the stages from deps and cfg and compiles the graph.
func New(ctx context.Context, deps Deps, cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := deps.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := newPipelineMetrics(reg)

	policy := cfg.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(op string, attempt int, err error) {
		metrics.retriesTotal.WithLabelValues(op).Inc()
		if onRetry != nil {
			onRetry(op, attempt, err)
		}
	}

	rt, err := router.New(deps.LLM, cfg.Templates, policy)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	rv, err := retriever.New(deps.Embedder, deps.Index, cfg.ScoreThreshold, policy)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	as, err := assembler.New(cfg.ContextBudget, cfg.BudgetUnit)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	rs, err := responder.New(deps.LLM, cfg.Templates, policy, cfg.HistoryTokens)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg,
		router:    rt,
		retriever: rv,
		assembler: as,
		responder: rs,
		metrics:   metrics,
	}
	if p.graph, err = p.compile(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: compile graph: %w", err)
	}
	return p, nil
}

func (p *Pipeline) compile(ctx context.Context) (compose.Runnable[*run, *run], error) {
	g := compose.NewGraph[*run, *run]()

	nodes := []struct {
		key string
		fn  func(context.Context, *run) (*run, error)
	}{
		{nodeRoute, p.route},
		{nodeRetrieve, p.retrieve},
		{nodeAssemble, p.assemble},
		{nodeRespond, p.respond},
	}
	for _, n := range nodes {
		if err := g.AddLambdaNode(n.key, compose.InvokableLambda(p.timed(n.key, n.fn)), compose.WithNodeName(n.key)); err != nil {
			return nil, err
		}
	}

	if err := g.AddEdge(compose.START, nodeRoute); err != nil {
		return nil, err
	}
	branch := compose.NewGraphBranch(func(_ context.Context, r *run) (string, error) {
		if r.query.Intent == rag.IntentAnswerable {
			return nodeRetrieve, nil
		}
		return nodeRespond, nil
	}, map[string]bool{nodeRetrieve: true, nodeRespond: true})
	if err := g.AddBranch(nodeRoute, branch); err != nil {
		return nil, err
	}
	for _, e := range [][2]string{
		{nodeRetrieve, nodeAssemble},
		{nodeAssemble, nodeRespond},
		{nodeRespond, compose.END},
	} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}

	return g.Compile(ctx, compose.WithGraphName("flarerag"))
}

// Answer runs one request through the pipeline. The returned error is
// non-nil only for a malformed request and is then a *rag.ValidationError.
func (p *Pipeline) Answer(ctx context.Context, req rag.Request) (rag.Response, error) {
	if err := req.Validate(); err != nil {
		return rag.Response{}, err
	}

	log := logging.FromContext(ctx)
	start := time.Now()
	state := &run{query: rag.NewQuery(req)}

	out, err := p.graph.Invoke(ctx, state)
	var resp rag.Response
	if err != nil || out == nil {
		log.Error("pipeline: graph run failed", slog.Any("error", err))
		resp = p.failure(state.query)
	} else {
		resp = out.response
	}

	p.metrics.provenanceTotal.WithLabelValues(string(resp.Provenance)).Inc()
	log.Info("pipeline: answered",
		slog.String("intent", string(resp.Intent)),
		slog.String("provenance", string(resp.Provenance)),
		slog.Int("citations", len(resp.Citations)),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (p *Pipeline) route(ctx context.Context, r *run) (*run, error) {
	c := p.router.Classify(ctx, r.query)
	r.query = r.query.WithClassification(c)
	p.metrics.intentTotal.WithLabelValues(string(c.Intent)).Inc()
	return r, nil
}

func (p *Pipeline) retrieve(ctx context.Context, r *run) (*run, error) {
	res, err := p.retriever.Retrieve(ctx, r.query.Text, p.cfg.TopK)
	if err != nil {
		logging.FromContext(ctx).Warn("pipeline: retrieval failed, answering without context",
			slog.Any("error", err),
		)
		r.retrievalErr = err
	}
	r.result = res
	return r, nil
}

func (p *Pipeline) assemble(_ context.Context, r *run) (*run, error) {
	c := p.assembler.Assemble(r.result)
	r.context = &c
	return r, nil
}

func (p *Pipeline) respond(ctx context.Context, r *run) (*run, error) {
	resp := p.responder.Respond(ctx, r.query, r.context)
	if r.retrievalErr != nil && resp.Provenance != rag.ProvenanceError {
		resp.Provenance = rag.ProvenanceDegraded
	}
	r.response = resp
	return r, nil
}

// failure is the response for a run the graph itself could not complete.
func (p *Pipeline) failure(q rag.Query) rag.Response {
	intent := q.Intent
	if !intent.Valid() {
		intent = router.DefaultIntent(q.Text)
	}
	return rag.Response{
		Answer:     p.cfg.Templates.FailureAnswer,
		Citations:  []string{},
		Sources:    []rag.Source{},
		Intent:     intent,
		Provenance: rag.ProvenanceError,
	}
}

func (p *Pipeline) timed(stage string, fn func(context.Context, *run) (*run, error)) func(context.Context, *run) (*run, error) {
	return func(ctx context.Context, r *run) (*run, error) {
		start := time.Now()
		defer func() {
			p.metrics.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		}()
		return fn(ctx, r)
	}
}
