package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/artifacts"
	"github.com/luminadata/schemagraph/pkg/datasource"
	"github.com/luminadata/schemagraph/pkg/graph"
	"github.com/luminadata/schemagraph/pkg/llm"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/retry"
	"github.com/luminadata/schemagraph/pkg/tracker"
)

// Options tunes a pipeline run.
type Options struct {
	// ProfileWorkers bounds concurrent table profiling; zero means
	// one worker per CPU.
	ProfileWorkers int
	// SampleLimit caps rows fetched per table during profiling; zero
	// reads whole tables.
	SampleLimit int
	// OverlapSample caps distinct values compared in inclusion checks.
	OverlapSample int
	// EnrichPause spaces out enrichment calls.
	EnrichPause time.Duration
	// DBTimeout bounds each datasource-bound phase.
	DBTimeout time.Duration
}

// Result reports the outcome of one client's run.
type Result struct {
	ClientID     string
	Tables       int
	FailedEnrich int
}

// Runner executes the offline phases in order for one client, writing
// each phase's artifact before the next phase starts.
type Runner struct {
	reader  datasource.Reader
	store   *artifacts.Store
	client  llm.Client
	tracker *tracker.Tracker
	opts    Options
	logger  *zap.Logger
}

// NewRunner wires the pipeline for one client datasource.
func NewRunner(reader datasource.Reader, store *artifacts.Store, client llm.Client, tr *tracker.Tracker, opts Options, logger *zap.Logger) *Runner {
	if opts.DBTimeout <= 0 {
		opts.DBTimeout = 60 * time.Second
	}
	return &Runner{
		reader:  reader,
		store:   store,
		client:  client,
		tracker: tr,
		opts:    opts,
		logger:  logger.Named("pipeline"),
	}
}

// Run executes extraction through enrichment. Transient datasource
// failures retry with exponential backoff before the phase fails.
func (r *Runner) Run(ctx context.Context, clientID string) (*Result, error) {
	logger := r.logger.With(
		zap.String("client_id", clientID),
		zap.String("run_id", uuid.NewString()))

	var raw *models.RawSchema
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		phaseCtx, cancel := context.WithTimeout(ctx, r.opts.DBTimeout)
		defer cancel()

		var err error
		raw, err = NewExtractor(r.reader, logger).Extract(phaseCtx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}
	if err := r.store.Write(clientID, artifacts.FileRawSchema, raw); err != nil {
		return nil, err
	}

	var profiles models.ProfileSet
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		profiles, err = NewProfiler(r.reader, r.opts.ProfileWorkers, r.opts.SampleLimit, logger).Profile(ctx, raw)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("profiling: %w", err)
	}
	if err := r.store.Write(clientID, artifacts.FileDataProfile, profiles); err != nil {
		return nil, err
	}

	var rels *models.RelationshipSet
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		rels, err = NewDetector(r.reader, r.opts.OverlapSample, logger).Detect(ctx, clientID, raw, profiles)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("relationship detection: %w", err)
	}
	if err := r.store.Write(clientID, artifacts.FileRelationships, rels); err != nil {
		return nil, err
	}

	fps := NewFingerprinter(logger).Fingerprint(raw, rels)
	if err := r.store.Write(clientID, artifacts.FileFingerprints, fps); err != nil {
		return nil, err
	}

	layer := NewAssembler(logger).Assemble(clientID, raw, profiles, rels, fps)
	r.carryOverDescriptions(clientID, layer)
	if err := r.store.Write(clientID, artifacts.FileSemanticLayer, layer); err != nil {
		return nil, err
	}

	enricher := NewEnricher(r.client, r.store, r.tracker, r.opts.EnrichPause, logger)
	failed, err := enricher.Enrich(ctx, layer)
	if err != nil {
		return nil, fmt.Errorf("enrichment: %w", err)
	}

	builder := graph.NewBuilder(logger)
	kg := builder.Build(layer)
	if err := r.store.Write(clientID, artifacts.FileKnowledgeGraph, kg); err != nil {
		return nil, err
	}
	if err := r.store.Write(clientID, artifacts.FileGraphSummary, builder.Summarize(layer, kg)); err != nil {
		return nil, err
	}

	logger.Info("pipeline complete",
		zap.Int("tables", len(layer.Tables)),
		zap.Int("failed_enrichment", failed))

	return &Result{
		ClientID:     clientID,
		Tables:       len(layer.Tables),
		FailedEnrich: failed,
	}, nil
}

// carryOverDescriptions copies descriptions from a previous run's
// layer so re-assembly does not discard completed enrichment work.
func (r *Runner) carryOverDescriptions(clientID string, layer *models.SemanticLayer) {
	if !r.store.Exists(clientID, artifacts.FileSemanticLayer) {
		return
	}
	var previous models.SemanticLayer
	if err := r.store.Read(clientID, artifacts.FileSemanticLayer, &previous); err != nil {
		r.logger.Warn("could not read previous semantic layer, re-enriching all tables",
			zap.Error(err))
		return
	}
	for name, table := range layer.Tables {
		prev, ok := previous.Tables[name]
		if !ok || prev.Description == "" {
			continue
		}
		table.Description = prev.Description
		table.DescriptionGeneratedAt = prev.DescriptionGeneratedAt
		table.DescriptionSource = prev.DescriptionSource
	}
}

// ClientRun couples a client ID with its wired runner.
type ClientRun struct {
	ClientID string
	Runner   *Runner
}

// RunAll executes multiple clients' pipelines in parallel. Each client
// is independent; one client's failure does not stop the others.
func RunAll(ctx context.Context, runs []ClientRun, logger *zap.Logger) ([]*Result, map[string]error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []*Result
		errs    = make(map[string]error)
	)

	for _, run := range runs {
		wg.Add(1)
		go func(run ClientRun) {
			defer wg.Done()
			result, err := run.Runner.Run(ctx, run.ClientID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("pipeline failed",
					zap.String("client_id", run.ClientID),
					zap.Error(err))
				errs[run.ClientID] = err
				return
			}
			results = append(results, result)
		}(run)
	}

	wg.Wait()
	return results, errs
}
