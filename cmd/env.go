package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/contact"
	"github.com/ahermangesh/Leads/internal/cost"
	"github.com/ahermangesh/Leads/internal/crm"
	"github.com/ahermangesh/Leads/internal/delivery"
	"github.com/ahermangesh/Leads/internal/memory"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/monitoring"
	"github.com/ahermangesh/Leads/internal/oracle"
	"github.com/ahermangesh/Leads/internal/orchestrator"
	"github.com/ahermangesh/Leads/internal/outreach"
	"github.com/ahermangesh/Leads/internal/research"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/internal/scorer"
	"github.com/ahermangesh/Leads/internal/scrape"
	"github.com/ahermangesh/Leads/internal/store"
	anthropicpkg "github.com/ahermangesh/Leads/pkg/anthropic"
	"github.com/ahermangesh/Leads/pkg/firecrawl"
	"github.com/ahermangesh/Leads/pkg/gemini"
	"github.com/ahermangesh/Leads/pkg/jina"
	"github.com/ahermangesh/Leads/pkg/notion"
	"github.com/ahermangesh/Leads/pkg/resend"
)

// pipelineEnv holds the store, memory, observers and the orchestrator needed
// by the run, serve and approval commands.
type pipelineEnv struct {
	Store        store.Store
	Memory       *memory.Store
	Orchestrator *orchestrator.Orchestrator
	Metrics      *monitoring.Metrics
	Syncer       *crm.Syncer // nil when notion is not configured
	Notion       notion.Client
}

// Close flushes the CRM queue and releases the store.
func (pe *pipelineEnv) Close() {
	if pe.Syncer != nil {
		pe.Syncer.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initMemory opens the store and loads the outcome history from it.
func initMemory(ctx context.Context) (store.Store, *memory.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	mem := newMemory(st)
	if err := mem.Load(ctx); err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "load outcome memory")
	}
	return st, mem, nil
}

func newMemory(st store.Store) *memory.Store {
	return memory.New(memory.Config{
		MinSamples:      cfg.Memory.MinSamples,
		DefaultStrategy: model.Strategy(cfg.Memory.DefaultStrategy),
		DefaultTone:     model.Tone(cfg.Memory.DefaultTone),
	}, st)
}

func newPolicy() *resilience.Policy {
	return resilience.NewPolicy(resilience.PolicyConfig{
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Multiplier:     cfg.Retry.Multiplier,
		},
		RatePerSecond: cfg.RateLimit.PerSecond,
		Burst:         cfg.RateLimit.Burst,
		CallTimeout:   time.Duration(cfg.Retry.CallTimeoutSecs) * time.Second,
	})
}

func newBreaker(name string) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("circuit breaker state change",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func initOracle(ctx context.Context, onUsage oracle.UsageFunc) (oracle.Oracle, error) {
	switch cfg.Oracle.Provider {
	case "gemini":
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.Gemini.Key,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init gemini client")
		}
		return oracle.NewGemini(client).WithUsage(onUsage), nil
	case "", "anthropic":
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL))
		return oracle.NewAnthropic(client, cfg.Anthropic.Model).WithUsage(onUsage), nil
	default:
		return nil, eris.Errorf("unsupported oracle provider: %s", cfg.Oracle.Provider)
	}
}

// initFetchChain orders the page fetchers: direct HTTP, then Jina Reader,
// then Firecrawl when a key is configured. Every hop waits on the shared
// limiter.
func initFetchChain(limit scrape.Waiter) *scrape.Chain {
	fetchers := []scrape.Fetcher{
		scrape.NewLocalFetcher(scrape.LocalOptions{
			Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			UserAgent: cfg.Fetch.UserAgent,
			MaxBytes:  cfg.Fetch.MaxBytes,
		}),
		scrape.NewJinaFetcher(jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL)), newBreaker("jina")),
	}
	if cfg.Firecrawl.Key != "" {
		fc := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		fetchers = append(fetchers, scrape.NewFirecrawlFetcher(fc, newBreaker("firecrawl")))
	}
	for i, f := range fetchers {
		fetchers[i] = scrape.Limited(f, limit)
	}
	return scrape.NewChain(fetchers...)
}

// initSender builds the configured backend behind the quota and pacing
// guard, restoring today's and this month's counters from the store.
func initSender(ctx context.Context, st store.Store, policy *resilience.Policy) (delivery.Sender, error) {
	var backend delivery.Sender
	switch cfg.Sender.Provider {
	case "resend":
		client := resend.NewClient(cfg.Resend.Key, resend.WithBaseURL(cfg.Resend.BaseURL))
		backend = delivery.NewResendSender(client, cfg.Outreach.SenderName, cfg.Outreach.SenderEmail)
	case "", "log":
		backend = delivery.NewLogSender()
	default:
		return nil, eris.Errorf("unsupported sender provider: %s", cfg.Sender.Provider)
	}

	delay := time.Duration(cfg.Sender.DelayBetweenSecs) * time.Second
	qs := delivery.NewQuotaSender(backend, cfg.Sender.DailyQuota, cfg.Sender.MonthlyQuota, delay).
		WithPolicy(policy.For("sender"))

	day, month, err := store.SentCounts(ctx, st, time.Now())
	if err != nil {
		return nil, eris.Wrap(err, "restore send counters")
	}
	qs.Restore(day, month)
	zap.L().Info("sender ready",
		zap.String("provider", backend.Name()),
		zap.Int("sent_today", day),
		zap.Int("sent_this_month", month),
	)
	return qs, nil
}

// initPipeline validates the configuration for mode, then builds every client
// and the orchestrator. Extra observers are registered after the built-in
// ones. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string, extra ...orchestrator.Observer) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, mem, err := initMemory(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st, Memory: mem}

	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	policy := newPolicy()

	// The chain meters each hop, so the resolver's retries take no token.
	resolver := contact.NewResolver(initFetchChain(policy), policy.Unmetered(), cfg.Contact.Paths)

	env.Metrics = monitoring.NewMetrics()
	calc := cost.NewCalculator(cost.DefaultRates().Merge(cfg.Cost))

	orc, err := initOracle(ctx, env.Metrics.UsageRecorder(calc))
	if err != nil {
		return nil, err
	}
	engine := research.NewEngine(orc, policy.For("research"), research.Config{
		MaxContentChars: cfg.Research.MaxContentChars,
		MaxAttempts:     cfg.Research.MaxAttempts,
		MaxTokens:       cfg.Oracle.MaxTokens,
		Temperature:     cfg.Oracle.Temperature,
	})

	sc, err := scorer.New(cfg.Scoring.Weights, cfg.Scoring.Threshold)
	if err != nil {
		return nil, err
	}

	prompts, err := outreach.LoadPrompts(cfg.Outreach.PromptsFile)
	if err != nil {
		return nil, err
	}
	gen, err := outreach.NewGenerator(orc, policy.For("outreach"), prompts, mem, outreach.Config{
		Sender: outreach.Sender{
			Name:    cfg.Outreach.SenderName,
			Email:   cfg.Outreach.SenderEmail,
			Address: cfg.Outreach.SenderAddress,
		},
		MaxSubjectChars: cfg.Outreach.MaxSubjectChars,
		MaxBodyWords:    cfg.Outreach.MaxBodyWords,
		Strategy:        model.Strategy(cfg.Outreach.Strategy),
		Tone:            model.Tone(cfg.Outreach.Tone),
		MaxTokens:       cfg.Oracle.MaxTokens,
		Temperature:     cfg.Oracle.Temperature,
	})
	if err != nil {
		return nil, err
	}

	sender, err := initSender(ctx, st, policy)
	if err != nil {
		return nil, err
	}

	observers := []orchestrator.Observer{orchestrator.LogObserver{}, env.Metrics}

	if cfg.Notion.Token != "" && cfg.Notion.LeadDB != "" {
		env.Notion = notion.NewClient(cfg.Notion.Token)
		env.Syncer = crm.NewSyncer(crm.NewNotionSink(env.Notion, cfg.Notion.LeadDB, newBreaker("notion")), 0, 0)
		env.Syncer.Start()
		observers = append(observers, env.Syncer)
		zap.L().Info("notion crm sync enabled")
	} else {
		zap.L().Debug("notion not configured, crm sync disabled")
	}
	observers = append(observers, extra...)

	env.Orchestrator, err = orchestrator.New(orchestrator.Deps{
		Resolver:   resolver,
		Researcher: engine,
		Scorer:     sc,
		Drafter:    gen,
		Sender:     sender,
		Memory:     mem,
		Store:      st,
	}, orchestrator.Config{
		Workers:         cfg.Batch.Workers,
		BatchSize:       cfg.Batch.Size,
		AutoThreshold:   cfg.Scoring.AutoThreshold,
		ApprovalTimeout: cfg.ApprovalTimeout(),
	}, observers...)
	if err != nil {
		return nil, err
	}

	ok = true
	return env, nil
}
