package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"council/internal/council"
	"council/internal/gateway/config"
	"council/internal/gateway/handler"
	"council/internal/gateway/natsbus"
	"council/internal/gateway/repository/report"
	"council/internal/gateway/server"
	llmclient "council/internal/llm/client"
	"council/internal/llm/middleware"
)

type App struct {
	server  *server.Server
	handler http.Handler
	council *handler.CouncilHandler
	reports report.Store
	events  *natsbus.Publisher
	bus     *natsbus.Bus
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewFromConfig(context.Background(), cfg)
}

// NewFromConfig assembles the gateway from an already loaded configuration.
func NewFromConfig(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	registry, err := loadRegistry(cfg.Council)
	if err != nil {
		return nil, err
	}
	a.reports, err = initReportStore(ctx, cfg.Report)
	if err != nil {
		return nil, err
	}
	var sinks []council.Sink
	if cfg.NATS.Enabled() {
		if err := a.initEvents(cfg.NATS); err != nil {
			return nil, err
		}
		sinks = append(sinks, a.events)
	}

	ctrl := council.NewController(registry, newClientFunc(cfg.LLM, cfg.Council),
		council.WithPacer(newPacer(cfg.Council)),
	)
	a.council = handler.NewCouncilHandler(ctrl, a.reports, log.Default(), sinks...)
	completion := handler.NewCompletionHandler(newCompletionFunc(cfg.LLM), log.Default())

	a.handler = server.NewMux(a.council, completion, cfg.CORSAllowedOrigin, log.Default())
	a.server = server.New(cfg.Port, a.handler)
	return a, nil
}

func loadRegistry(cfg config.CouncilConfig) (*council.Registry, error) {
	if cfg.MembersFile == "" {
		return council.DefaultRegistry(), nil
	}
	reg, err := council.LoadRegistryFile(cfg.MembersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load council members: %w", err)
	}
	log.Printf("council members: %s", cfg.MembersFile)
	return reg, nil
}

func (a *App) initEvents(cfg config.NATSConfig) error {
	url := cfg.URL
	if url == "" {
		bus, err := natsbus.NewBus(cfg.Port, cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to start embedded nats: %w", err)
		}
		a.bus = bus
		url = bus.ClientURL()
		log.Printf("event bus: embedded nats at %s", url)
	}
	pub, err := natsbus.Connect(url)
	if err != nil {
		return err
	}
	a.events = pub
	log.Printf("event bus: publishing to %s", natsbus.TopicAllSessionEvents)
	return nil
}

func newPacer(cfg config.CouncilConfig) council.Pacer {
	if cfg.Pacer == "rate" {
		return council.RatePacer(cfg.RPM)
	}
	return council.FixedDelay(cfg.StageDelay)
}

// newClientFunc builds each session's inference client. Providers are opened
// per session with the caller's key; the rate limiter and usage ledger are
// shared by every session.
func newClientFunc(llm config.LLMConfig, cc config.CouncilConfig) council.ClientFunc {
	overrides := make(map[string]middleware.Limits, len(llm.ModelLimits))
	for model, l := range llm.ModelLimits {
		overrides[model] = middleware.Limits{RPM: l.RPM, TPM: l.TPM}
	}
	limit := middleware.ModelLimit(middleware.Limits{RPM: llm.RPM, TPM: llm.TPM}, overrides)
	ledger := middleware.NewUsageLedger(llm.UsageLedgerPath, log.Default())
	factories := map[string]llmclient.Factory{
		"groq":   llmclient.GroqFactory(llmclient.WithBaseURL(llm.GroqBaseURL), llmclient.WithTimeout(llm.RequestTimeout)),
		"gemini": llmclient.GeminiFactory(nil),
	}

	return func(_ context.Context, apiKey string) (llmclient.ChatClient, error) {
		dispatch := llmclient.NewDispatch(apiKey, "groq", factories)
		return middleware.Wrap(dispatch,
			middleware.WithLogging(log.Default()),
			middleware.WithUsageLedger(ledger),
			middleware.Retry(cc.StageMaxAttempts, cc.RetryBaseDelay),
			limit,
		), nil
	}
}

func newCompletionFunc(llm config.LLMConfig) handler.CompletionFunc {
	return func(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error) {
		cli := llmclient.NewGroqClient(apiKey, llmclient.WithBaseURL(llm.GroqBaseURL), llmclient.WithTimeout(llm.RequestTimeout))
		return cli.CreateCompletion(ctx, payload)
	}
}

// Handler is the routed gateway, without the h2c listener around it.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops accepting sessions, waits for in-flight ones and pending
// archive writes, then releases the stores and the event bus.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}
	if a.council != nil {
		done := make(chan struct{})
		go func() {
			a.council.WaitArchived()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("archive writes: %w", ctx.Err()))
		}
	}
	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var err error
	if a.events != nil {
		a.events.Close()
		a.events = nil
	}
	if a.bus != nil {
		a.bus.Close()
		a.bus = nil
	}
	if a.reports != nil {
		err = a.reports.Close()
		a.reports = nil
	}
	return err
}
