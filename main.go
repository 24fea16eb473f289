package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/artifacts"
	"github.com/luminadata/schemagraph/pkg/cache"
	"github.com/luminadata/schemagraph/pkg/config"
	"github.com/luminadata/schemagraph/pkg/database"
	"github.com/luminadata/schemagraph/pkg/datasource"
	"github.com/luminadata/schemagraph/pkg/graphstore"
	"github.com/luminadata/schemagraph/pkg/handlers"
	"github.com/luminadata/schemagraph/pkg/llm"
	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/nl2sql"
	"github.com/luminadata/schemagraph/pkg/pipeline"
	"github.com/luminadata/schemagraph/pkg/schemactx"
	"github.com/luminadata/schemagraph/pkg/sqlsafe"
	"github.com/luminadata/schemagraph/pkg/tracker"
)

// Version is set at build time via ldflags.
var Version = "dev"

// errPartialEnrichment marks a run where the pipeline completed but
// some table descriptions failed.
var errPartialEnrichment = errors.New("enrichment completed with failures")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto process exit codes: 1 for
// misconfiguration, 2 for an unavailable external dependency, 3 for a
// partial enrichment failure.
func exitCode(err error) int {
	if errors.Is(err, errPartialEnrichment) {
		return 3
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindConfigMissing:
		return 1
	case apperrors.KindDBUnavailable, apperrors.KindLLMUnavailable,
		apperrors.KindCacheDown, apperrors.KindGraphStoreDown:
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schemagraph",
		Short:         "Schema enrichment pipeline and conversational NL to SQL engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newInitClientCmd(), newIngestCmd(), newLoadGraphCmd(), newChatCmd(), newServeCmd())
	return root
}

// app bundles the shared service wiring.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load(Version)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfigMissing, "load configuration", err)
	}
	logger, err := newLogger(cfg.Env)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (a *app) tracker() *tracker.Tracker {
	return tracker.New(a.cfg.Tracker.Dir, tracker.Pricing{
		InputPerM:  a.cfg.Tracker.InputPricePerM,
		OutputPerM: a.cfg.Tracker.OutputPricePerM,
	}, a.logger)
}

func (a *app) pipelineOptions() pipeline.Options {
	return pipeline.Options{
		ProfileWorkers: a.cfg.Pipeline.ProfileWorkers,
		SampleLimit:    a.cfg.Pipeline.SampleLimit,
		OverlapSample:  a.cfg.Pipeline.OverlapSampleLimit,
		EnrichPause:    time.Duration(a.cfg.Pipeline.EnrichPauseMillis) * time.Millisecond,
		DBTimeout:      time.Duration(a.cfg.Pipeline.DBTimeoutSeconds) * time.Second,
	}
}

func newInitClientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-client <client-id>",
		Short: "Scaffold a datasource config file for a new client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			path, err := config.ScaffoldClient(a.cfg.ClientConfigDir, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s; set the credential environment variables before ingesting\n", path)
			return nil
		},
	}
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <client-id> [client-id...]",
		Short: "Run the enrichment pipeline for one or more clients",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), args)
		},
	}
}

func runIngest(ctx context.Context, clients []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	llmClient, err := llm.NewGroqClient(a.cfg.LLM, a.logger)
	if err != nil {
		return err
	}
	tr := a.tracker()
	store := artifacts.NewStore(a.cfg.ArtifactDir, a.logger)
	opts := a.pipelineOptions()

	var runs []pipeline.ClientRun
	for _, clientID := range clients {
		cc, err := config.LoadClient(a.cfg.ClientConfigDir, clientID)
		if err != nil {
			return err
		}
		db, err := database.Connect(ctx, cc, nil)
		if err != nil {
			return err
		}
		defer db.Close()

		reader := datasource.NewPostgresReader(db, "", a.logger)
		runs = append(runs, pipeline.ClientRun{
			ClientID: clientID,
			Runner:   pipeline.NewRunner(reader, store, llmClient, tr, opts, a.logger),
		})
	}

	results, failures := pipeline.RunAll(ctx, runs, a.logger)
	for clientID, err := range failures {
		return fmt.Errorf("client %s: %w", clientID, err)
	}

	partial := false
	for _, result := range results {
		a.logger.Info("client ingested",
			zap.String("client_id", result.ClientID),
			zap.Int("tables", result.Tables),
			zap.Int("failed_enrich", result.FailedEnrich))
		if result.FailedEnrich > 0 {
			partial = true
		}
	}
	if partial {
		return errPartialEnrichment
	}
	return nil
}

func newLoadGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load-graph <client-id> [client-id...]",
		Short: "Load assembled semantic layers into the graph store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadGraph(cmd.Context(), args)
		},
	}
}

func runLoadGraph(ctx context.Context, clients []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	store := artifacts.NewStore(a.cfg.ArtifactDir, a.logger)
	graph, err := graphstore.New(ctx, a.cfg.Graph, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = graph.Close(ctx) }()

	if err := graph.InitSchema(ctx); err != nil {
		return err
	}

	for _, clientID := range clients {
		var layer models.SemanticLayer
		if err := store.Read(clientID, artifacts.FileSemanticLayer, &layer); err != nil {
			return err
		}
		if err := graph.LoadSemanticLayer(ctx, &layer); err != nil {
			return err
		}
		stats, err := graph.Stats(ctx, clientID)
		if err != nil {
			return err
		}
		a.logger.Info("graph loaded",
			zap.String("client_id", clientID),
			zap.Int64("tables", stats.Tables),
			zap.Int64("columns", stats.Columns),
			zap.Int64("foreign_keys", stats.ForeignKeys))
	}
	return nil
}

// buildEngine wires the conversational engine for the chat and serve
// commands. The graph store is optional; without it only the
// NetworkXEngine agent works.
func buildEngine(ctx context.Context, a *app, tr *tracker.Tracker) (*nl2sql.Engine, func(), error) {
	llmClient, err := llm.NewGroqClient(a.cfg.LLM, a.logger)
	if err != nil {
		return nil, nil, err
	}

	rdb, err := database.NewRedisClient(&a.cfg.Redis)
	if err != nil {
		a.logger.Warn("redis unavailable, result cache disabled", zap.Error(err))
		rdb = nil
	}
	resultCache := cache.New(rdb, time.Duration(a.cfg.Redis.TTLSeconds)*time.Second, a.logger)

	contexts := &nl2sql.AgentContexts{Logger: a.logger}
	cleanup := func() {}

	graph, err := graphstore.New(ctx, a.cfg.Graph, a.logger)
	if err != nil {
		a.logger.Warn("graph store unavailable, store-backed agents disabled", zap.Error(err))
	} else {
		contexts.Store = graph
		cleanup = func() { _ = graph.Close(context.Background()) }
	}

	store := artifacts.NewStore(a.cfg.ArtifactDir, a.logger)
	contexts.OpenPortable = func(clientID string) (schemactx.GraphReader, error) {
		var kg models.KnowledgeGraph
		if err := store.Read(clientID, artifacts.FileKnowledgeGraph, &kg); err != nil {
			return nil, err
		}
		return schemactx.NewPortableReader(&kg), nil
	}

	engine := nl2sql.New(
		llmClient,
		contexts,
		&nl2sql.ClientReaders{Dir: a.cfg.ClientConfigDir, Logger: a.logger},
		sqlsafe.NewExecutor(time.Duration(a.cfg.Pipeline.DBTimeoutSeconds)*time.Second, a.logger),
		resultCache,
		tr,
		nl2sql.Options{
			ModelSelector: func(model string) llm.Client { return llmClient.WithModel(model) },
		},
		a.logger,
	)
	return engine, cleanup, nil
}

func newChatCmd() *cobra.Command {
	var clientID, agent, model string
	cmd := &cobra.Command{
		Use:   "chat <question>",
		Short: "Ask one question against a client's enriched schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), clientID, agent, model, args[0])
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client ID (required)")
	cmd.Flags().StringVar(&agent, "agent", string(models.AgentConversational), "agent kind")
	cmd.Flags().StringVar(&model, "model", "", "model name override")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func runChat(ctx context.Context, clientID, agent, model, question string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	engine, cleanup, err := buildEngine(ctx, a, a.tracker())
	if err != nil {
		return err
	}
	defer cleanup()

	resp := engine.Chat(ctx, &models.ChatRequest{
		ClientID:    clientID,
		UserMessage: question,
		Agent:       models.AgentKind(agent),
		ModelName:   model,
	})

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if resp.Error != "" {
		return apperrors.New(apperrors.Kind(resp.Error), resp.Summary)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	tr := a.tracker()
	engine, cleanup, err := buildEngine(ctx, a, tr)
	if err != nil {
		return err
	}
	defer cleanup()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(a.cfg, a.logger).RegisterRoutes(mux)
	handlers.NewChatHandler(engine, a.logger).RegisterRoutes(mux)
	handlers.NewConfigHandler(a.cfg, a.logger).RegisterRoutes(mux)
	handlers.NewMetricsHandler(tr, a.logger).RegisterRoutes(mux)

	var handler http.Handler = mux
	if a.cfg.Frontend != "" {
		handler = allowOrigin(a.cfg.Frontend, mux)
	}

	addr := a.cfg.BindAddr + ":" + a.cfg.Port
	a.logger.Info("starting schemagraph",
		zap.String("addr", addr),
		zap.String("base_url", a.cfg.BaseURL),
		zap.String("version", a.cfg.Version))
	return http.ListenAndServe(addr, handler)
}

// allowOrigin grants the configured frontend origin cross-origin access
// and answers its preflight requests.
func allowOrigin(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
