// Command agentd boots the conversational agent orchestrator: config,
// logger, repositories, registries, flow manager and the HTTP server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/agent"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/config"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/contexts"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/flow"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/graph"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/llms"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/logger"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/orchestrator"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/prompt"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/rag"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/repository"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/server"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/tools"
)

var cli struct {
	Config string `short:"c" default:"config/agentd.yaml" help:"Path to the application config file."`
	Env    string `default:".env" help:"Path to the optional .env file."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("agentd"),
		kong.Description("Configuration-driven conversational agent orchestrator."))

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentd:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(cli.Env); err == nil {
		slog.Debug("Loaded environment file", "path", cli.Env)
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	output := os.Stderr
	var cleanup func()
	switch cfg.Logging.Output {
	case "stderr":
	case "stdout":
		output = os.Stdout
	default:
		file, fileCleanup, err := logger.OpenLogFile(cfg.Logging.Output)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = fileCleanup
	}
	if cleanup != nil {
		defer cleanup()
	}
	logger.Init(logger.ParseLevel(cfg.Logging.Level), output, cfg.Logging.Format)

	// Domain store: Postgres when configured, in-memory otherwise.
	var store *repository.Store
	if cfg.Database.URL != "" {
		db, err := repository.OpenPostgres(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		store = repository.NewPostgresStore(db)
		slog.Info("Connected to domain database")
	} else {
		store = repository.NewMemoryStore()
		slog.Warn("No database configured, using in-memory store")
	}

	// Tool registry: wired once at boot, immutable afterwards.
	toolRegistry := tools.NewRegistry()
	if err := tools.RegisterDomainTools(toolRegistry, store); err != nil {
		return err
	}
	slog.Info("Registered domain tools", "count", toolRegistry.Count())

	// LLM providers.
	llmRegistry := llms.NewRegistry()
	for name, providerCfg := range cfg.LLMs {
		if err := llmRegistry.RegisterProvider(name, providerCfg); err != nil {
			return err
		}
	}
	slog.Info("Registered LLM providers", "count", llmRegistry.Count())

	// Retrieval: vector database plus embedding service; absent config
	// degrades every retrieval node to the fallback string.
	var retrievalService *rag.Service
	var vectorDB *sql.DB
	if cfg.VectorDB.URL != "" && cfg.Embedder.Host != "" {
		vectorDB, err = repository.OpenPostgres(cfg.VectorDB.URL)
		if err != nil {
			return fmt.Errorf("failed to open vector database: %w", err)
		}
		defer vectorDB.Close()

		embedder, err := rag.NewHTTPEmbedder(cfg.Embedder)
		if err != nil {
			return err
		}
		retrievalService = rag.NewService(rag.NewRetriever(vectorDB, embedder))
		slog.Info("Connected to vector database", "dimension", embedder.GetDimension())
	} else {
		retrievalService = rag.NewService(nil)
		slog.Warn("Vector search not configured, retrieval nodes will degrade")
	}

	// Prompt pipeline, agent factory, graph builder, flow manager.
	promptManager := prompt.NewManager(cfg.Flows.RuleDir)
	agentFactory := agent.NewFactory(llmRegistry, toolRegistry, promptManager)
	builder := graph.NewBuilder(agentFactory, promptManager, retrievalService)
	flowManager := graph.NewManager(cfg.Flows.Dir, builder)
	defer flowManager.Close()

	if _, err := flowManager.ScanFlows(); err != nil {
		return err
	}

	loaderCfg, err := flow.LoadLoaderConfig(cfg.Flows.LoaderPath)
	if err != nil {
		return err
	}
	flowManager.Preload(loaderCfg.Flows.Preload)

	if cfg.Flows.Watch {
		if err := flowManager.Watch(); err != nil {
			slog.Error("Failed to watch flows directory", "error", err)
		}
	}

	contextMgr := contexts.NewManager()
	chatService := orchestrator.NewService(flowManager, contextMgr)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, chatService, contextMgr, flowManager, store.Users)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
