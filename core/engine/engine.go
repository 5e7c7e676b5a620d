package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/core/frontier"
	"github.com/siherrmann/biograph/core/pipeline"
	"github.com/siherrmann/biograph/core/resolver"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
)

// flushTimeout bounds the final snapshot write, which must succeed even after
// the run context was canceled.
const flushTimeout = 30 * time.Second

// Fetcher retrieves one article by title
type Fetcher interface {
	FetchArticle(ctx context.Context, title string) (*model.Document, error)
}

// Sink receives fetched documents and entity snapshots
type Sink interface {
	SaveDocument(ctx context.Context, document *model.Document) error
	SaveEntities(ctx context.Context, entities []*model.Entity) error
}

// Engine drives a discovery run. Workers fetch and process documents, all
// resolution and frontier updates happen in one consumer loop in receipt
// order, so the entity index always moves between consistent states.
type Engine struct {
	fetcher  Fetcher
	pipe     *pipeline.Pipeline
	resolver *resolver.Resolver
	frontier *frontier.Frontier
	sink     Sink
	config   model.RunConfig
	log      *slog.Logger

	mu    sync.Mutex
	state model.RunState
}

// documentResult carries everything the workers produced for one document
type documentResult struct {
	entry       *model.FrontierEntry
	document    *model.Document
	candidates  []*pipeline.CandidateResult
	failures    []model.StageFailure
	err         error
	unreachable bool
}

// NewEngine creates a discovery engine. A nil logger falls back to the pretty
// handler on stdout, a nil sink disables persistence.
func NewEngine(fetcher Fetcher, pipe *pipeline.Pipeline, res *resolver.Resolver, front *frontier.Frontier, sink Sink, config model.RunConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		opts := helper.PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{
				Level: slog.LevelInfo,
			},
		}
		logger = slog.New(helper.NewPrettyHandler(os.Stdout, opts))
	}

	engine := &Engine{
		fetcher:  fetcher,
		pipe:     pipe,
		resolver: res,
		frontier: front,
		sink:     sink,
		config:   config,
		log:      logger,
		state:    model.StateSeeding,
	}
	pipe.Observer = engine.setState
	return engine
}

// State returns the stage most recently entered.
func (e *Engine) State() model.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(state model.RunState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
}

// Run crawls from the configured seeds until the frontier is exhausted or a
// budget is reached. Per document failures are recorded in the report and
// skipped. Only a collaborator staying unreachable for AbortAfter documents
// in a row aborts the run. Every exit path, aborts and cancellation
// included, flushes the resolver's last consistent snapshot to the sink.
func (e *Engine) Run(ctx context.Context) (*model.RunReport, error) {
	err := e.config.Validate()
	if err != nil {
		return nil, helper.NewError("validate run config", err)
	}

	started := time.Now()
	report := &model.RunReport{Started: started}

	e.setState(model.StateSeeding)
	seeded := e.frontier.Seed(e.config.Seeds)
	e.log.Info("Seeded frontier", slog.Int("seeds", seeded), slog.Int("max_depth", e.config.MaxDepth))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan *model.FrontierEntry, e.config.Workers)
	results := make(chan *documentResult, e.config.Workers)

	var workers sync.WaitGroup
	for i := 0; i < e.config.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for entry := range jobs {
				results <- e.processDocument(runCtx, entry)
			}
		}()
	}

	aborted := false
	streak := 0
	inFlight := 0
	dispatched := 0

loop:
	for {
		if ctx.Err() != nil {
			e.log.Warn("Run canceled", slog.String("error", ctx.Err().Error()))
			aborted = true
			break
		}

		// Keep the workers full while the document budget allows. The sends
		// never block, at most Workers entries are ever in flight.
		for inFlight < e.config.Workers && dispatched < e.config.MaxDocuments {
			entry, ok := e.frontier.Next()
			if !ok {
				break
			}
			e.setState(model.StateFetching)
			jobs <- entry
			inFlight++
			dispatched++
		}

		if inFlight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			e.log.Warn("Run canceled", slog.String("error", ctx.Err().Error()))
			aborted = true
			break loop
		case result := <-results:
			inFlight--
			streak = e.consumeResult(runCtx, result, report, streak)
			if e.config.AbortAfter > 0 && streak >= e.config.AbortAfter {
				e.log.Error("Aborting run, collaborator unreachable", slog.Int("consecutive_failures", streak))
				aborted = true
				break loop
			}
			if e.resolver.Count() >= e.config.MaxEntities {
				e.log.Info("Entity budget reached", slog.Int("entities", e.resolver.Count()))
				e.frontier.Close()
			}
		}
	}

	// Stop the workers. In flight results fit into the channel buffer, so
	// the workers can always finish their send and exit.
	close(jobs)
	cancel()
	workers.Wait()

	finalState := model.StateDone
	if aborted {
		finalState = model.StateAborted
	}
	e.setState(finalState)

	e.flush(report)

	report.State = finalState
	report.EntitiesByStatus = e.resolver.Stats()
	report.FrontierRemaining = e.frontier.Len()
	report.Duration = time.Since(started)

	e.log.Info("Run finished",
		slog.String("state", string(finalState)),
		slog.Int("documents", report.Documents),
		slog.Int("candidates", report.Candidates),
		slog.Int("failures", len(report.Failures)),
		slog.String("duration", report.Duration.Round(time.Millisecond).String()),
	)
	return report, nil
}

// processDocument runs the stateless stages for one frontier entry, fetch,
// extract and per candidate classification and structuring. It never touches
// the resolver or the frontier.
func (e *Engine) processDocument(ctx context.Context, entry *model.FrontierEntry) *documentResult {
	result := &documentResult{entry: entry}

	document, err := e.fetcher.FetchArticle(ctx, entry.Target)
	if err != nil {
		result.err = err
		result.unreachable = pipeline.Unreachable(err)
		result.failures = append(result.failures, model.StageFailure{Target: entry.Target, Stage: "fetch", Reason: err.Error()})
		return result
	}
	document.Depth = entry.Depth
	result.document = document

	e.setState(model.StateExtracting)
	candidates, err := e.pipe.Extractor(ctx, document)
	if err != nil {
		result.err = err
		result.unreachable = pipeline.Unreachable(err)
		result.failures = append(result.failures, model.StageFailure{Target: entry.Target, Stage: "extract", Reason: err.Error()})
		return result
	}

	e.log.Info("Extracted candidates",
		slog.String("title", document.Title),
		slog.Int("depth", entry.Depth),
		slog.Int("candidates", len(candidates)),
	)

	for _, candidate := range candidates {
		candidate.DocumentRID = document.RID
		candidate.DocumentTitle = document.Title
		candidate.Depth = entry.Depth

		candidateResult, err := e.pipe.ProcessCandidate(ctx, candidate, e.config.ClassifyThreshold)
		if err != nil {
			result.err = err
			result.unreachable = pipeline.Unreachable(err)
			result.failures = append(result.failures, model.StageFailure{Target: entry.Target, Stage: "candidates", Reason: err.Error()})
			return result
		}
		result.candidates = append(result.candidates, candidateResult)
	}
	return result
}

// consumeResult applies one document's results to the resolver and the
// frontier and returns the new unreachable streak.
func (e *Engine) consumeResult(ctx context.Context, result *documentResult, report *model.RunReport, streak int) int {
	report.Failures = append(report.Failures, result.failures...)

	if result.err != nil {
		e.log.Warn("Document failed",
			slog.String("target", result.entry.Target),
			slog.String("error", result.err.Error()),
		)
		if result.unreachable {
			return streak + 1
		}
		// The collaborator answered, just not usefully. Not an outage.
		return 0
	}

	report.Documents++
	e.setState(model.StateResolving)

	if e.sink != nil {
		err := e.sink.SaveDocument(ctx, result.document)
		if err != nil {
			e.log.Warn("Saving document failed", slog.String("target", result.entry.Target), slog.String("error", err.Error()))
			report.Failures = append(report.Failures, model.StageFailure{Target: result.entry.Target, Stage: "sink", Reason: err.Error()})
		}
	}

	nextDepth := result.entry.Depth + 1
	for _, candidateResult := range result.candidates {
		report.Candidates++
		candidate := candidateResult.Candidate

		switch candidateResult.Route {
		case pipeline.RouteResolve:
			resolution, err := e.resolver.Resolve(candidate.Attributes, candidate.DocumentRID)
			if err != nil {
				report.Failures = append(report.Failures, model.StageFailure{Target: result.entry.Target, Stage: "resolve", Reason: err.Error()})
				continue
			}
			e.logResolution(candidate, resolution)
			e.frontier.Push(candidate.Links, nextDepth, resolution.Entity.ID, bandFor(resolution.Entity.Status))
		case pipeline.RouteReview:
			resolution, err := e.resolver.Review(candidate.Attributes, candidate.DocumentRID, candidateResult.Reason)
			if err != nil {
				report.Failures = append(report.Failures, model.StageFailure{Target: result.entry.Target, Stage: "review", Reason: err.Error()})
				continue
			}
			e.frontier.Push(candidate.Links, nextDepth, resolution.Entity.ID, model.BandCandidate)
		case pipeline.RouteReject:
			_, err := e.resolver.Reject(candidate.Name, candidate.DocumentRID, candidateResult.Reason)
			if err != nil {
				report.Failures = append(report.Failures, model.StageFailure{Target: result.entry.Target, Stage: "reject", Reason: err.Error()})
			}
			// Links attributed to a rejected mention are not crawled.
		}
	}

	e.setState(model.StateEnqueueing)
	e.frontier.Push(result.document.Links, nextDepth, uuid.Nil, model.BandUnattributed)

	return 0
}

func (e *Engine) logResolution(candidate *model.Candidate, resolution *resolver.Resolution) {
	switch {
	case resolution.Promoted:
		e.log.Info("Promoted entity",
			slog.String("name", resolution.Entity.Name),
			slog.Int("provenance", len(resolution.Entity.Provenance)),
		)
	case resolution.Outcome == resolver.OutcomeAmbiguous:
		e.log.Info("Ambiguous candidate routed to review",
			slog.String("name", candidate.Name),
			slog.Int("matches", len(resolution.Matched)),
		)
	default:
		e.log.Debug("Resolved candidate",
			slog.String("name", candidate.Name),
			slog.String("outcome", string(resolution.Outcome)),
		)
	}
}

// flush writes the resolver snapshot to the sink. It runs on its own context
// so a canceled run still persists its last consistent state.
func (e *Engine) flush(report *model.RunReport) {
	if e.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := e.sink.SaveEntities(ctx, e.resolver.Snapshot())
	if err != nil {
		e.log.Error("Flushing entities failed", slog.String("error", err.Error()))
		report.Failures = append(report.Failures, model.StageFailure{Stage: "flush", Reason: err.Error()})
	}
}

func bandFor(status model.EntityStatus) model.PriorityBand {
	if status == model.StatusConfirmed {
		return model.BandConfirmed
	}
	return model.BandCandidate
}
