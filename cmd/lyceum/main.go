package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nandika/lyceum"
	"github.com/nandika/lyceum/internal/config"
	"github.com/nandika/lyceum/observer"
	"github.com/nandika/lyceum/provider/openaicompat"
	"github.com/nandika/lyceum/report"
	"github.com/nandika/lyceum/store/postgres"
	"github.com/nandika/lyceum/store/sqlite"
	"github.com/nandika/lyceum/tools/docs"
	"github.com/nandika/lyceum/tools/search"
)

func main() {
	topic := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if topic == "" {
		fmt.Fprintln(os.Stderr, "usage: lyceum <topic>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg := config.Load(os.Getenv("LYCEUM_CONFIG"))
	if cfg.LLM.APIKey == "" {
		log.Fatal("no LLM API key configured (set LYCEUM_LLM_API_KEY or [llm] api_key in lyceum.toml)")
	}

	level := slog.LevelWarn
	if os.Getenv("LYCEUM_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// 2. Observer (opt-in via config)
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}

		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx, pricing)
		if err != nil {
			log.Fatalf("[observer] init failed: %v", err)
		}
		defer shutdown(context.Background())

		log.Println("[observer] OTEL observability enabled")
	}

	// 3. Create provider: base -> observed -> rate limited -> retried
	var provider lyceum.Provider = openaicompat.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	if inst != nil {
		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
	}
	if cfg.LLM.RPM > 0 || cfg.LLM.TPM > 0 {
		provider = lyceum.WithRateLimit(provider, lyceum.RPM(cfg.LLM.RPM), lyceum.TPM(cfg.LLM.TPM))
	}
	provider = lyceum.WithRetry(provider, lyceum.RetryLogger(logger))

	// 4. Create document store
	var store lyceum.DocumentStore
	switch cfg.Docs.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Docs.DSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer pool.Close()
		store = postgres.New(pool)
	default:
		store = sqlite.New(cfg.Docs.Path, sqlite.WithLogger(logger))
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		log.Fatalf("init document store: %v", err)
	}

	// 5. Register tools
	registry := lyceum.NewRegistry()

	var docsOpts []docs.Option
	if cfg.Docs.BaseURL != "" {
		docsOpts = append(docsOpts, docs.WithBaseURL(cfg.Docs.BaseURL))
	}
	registry.Add(wrapTool(docs.New(store, docsOpts...), inst), lyceum.CapabilityDocumentWrite)

	if cfg.Search.BraveAPIKey != "" {
		searchTool := search.New(cfg.Search.BraveAPIKey,
			search.WithMaxResults(cfg.Search.MaxResults),
			search.WithLogger(logger),
		)
		registry.Add(wrapTool(searchTool, inst), lyceum.CapabilitySearch)
	} else {
		log.Println("no Brave API key configured, web search disabled")
	}

	// 6. Build engine
	opts := []lyceum.EngineOption{
		lyceum.WithLogger(logger),
		lyceum.WithToolRounds(cfg.Run.ToolRounds),
		lyceum.WithModelTimeout(time.Duration(cfg.Run.ModelTimeoutSecs) * time.Second),
		lyceum.WithToolTimeout(time.Duration(cfg.Run.ToolTimeoutSecs) * time.Second),
	}
	if cfg.Docs.BaseURL != "" {
		opts = append(opts, lyceum.WithDocumentBase(cfg.Docs.BaseURL))
	}
	if inst != nil {
		opts = append(opts, lyceum.WithTracer(observer.NewTracer()))
	}
	engine := lyceum.NewEngine(provider, registry, opts...)

	// 7. Run, printing progress as it streams
	type runResult struct {
		state lyceum.RunState
		err   error
	}
	ch := make(chan lyceum.StreamEvent, 64)
	resultCh := make(chan runResult, 1)
	go func() {
		st, err := engine.RunStream(ctx, topic, ch)
		resultCh <- runResult{st, err}
	}()

	for ev := range ch {
		switch ev.Type {
		case lyceum.EventRunStart:
			fmt.Printf("run %s: %s\n", ev.ID, ev.Content)
		case lyceum.EventStageStart:
			fmt.Printf("[%s] started\n", ev.Name)
		case lyceum.EventToolCallStart:
			fmt.Printf("[%s] tool %s\n", ev.Name, ev.Tool)
		case lyceum.EventStageFinish:
			fmt.Printf("[%s] done in %s (%d chars)\n", ev.Name, ev.Duration.Round(time.Millisecond), len(ev.Content))
			if ev.Link != "" {
				fmt.Printf("[%s] document: %s\n", ev.Name, ev.Link)
			}
		}
	}

	res := <-resultCh
	if res.err != nil {
		log.Fatalf("run failed: %v", res.err)
	}

	// 8. Summarize and optionally write the report
	st := res.state
	fmt.Printf("\ncompleted %d stages, %d input / %d output tokens\n",
		len(st.CompletedStages), st.Usage.InputTokens, st.Usage.OutputTokens)

	if cfg.Report.Dir != "" {
		mdPath, htmlPath, err := report.Write(cfg.Report.Dir, st)
		if err != nil {
			log.Fatalf("write report: %v", err)
		}
		fmt.Printf("report: %s, %s\n", mdPath, htmlPath)
	}
}

// wrapTool wraps a tool with observer instrumentation if inst is non-nil.
func wrapTool(t lyceum.Tool, inst *observer.Instruments) lyceum.Tool {
	if inst == nil {
		return t
	}
	return observer.WrapTool(t, inst)
}
