package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Provider names understood by the default dispatch.
const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

// Dispatch routes requests to provider clients created lazily from a single
// caller credential. A Dispatch belongs to one session and must be closed by it.
type Dispatch struct {
	apiKey    string
	fallback  string
	factories map[string]Factory

	mu      sync.Mutex
	clients map[string]ChatClient
}

// NewDispatch binds factories to one credential. fallback names the provider
// used when a request leaves Provider empty.
func NewDispatch(apiKey, fallback string, factories map[string]Factory) *Dispatch {
	fs := make(map[string]Factory, len(factories))
	for name, f := range factories {
		fs[normalizeProvider(name)] = f
	}
	return &Dispatch{
		apiKey:    apiKey,
		fallback:  normalizeProvider(fallback),
		factories: fs,
		clients:   map[string]ChatClient{},
	}
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (d *Dispatch) Name() string { return "dispatch:" + d.fallback }

// Complete resolves the provider client and forwards the request.
func (d *Dispatch) Complete(ctx context.Context, req Request) (Response, error) {
	cli, err := d.client(ctx, req.Provider)
	if err != nil {
		return Response{}, err
	}
	return cli.Complete(ctx, req)
}

func (d *Dispatch) client(ctx context.Context, provider string) (ChatClient, error) {
	name := normalizeProvider(provider)
	if name == "" {
		name = d.fallback
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cli, ok := d.clients[name]; ok {
		return cli, nil
	}
	f, ok := d.factories[name]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, name)
	}
	cli, err := f(ctx, d.apiKey)
	if err != nil {
		return nil, fmt.Errorf("open %s client: %w", name, err)
	}
	d.clients[name] = cli
	return cli, nil
}

// Close closes every client opened so far.
func (d *Dispatch) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for name, cli := range d.clients {
		if err := cli.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(d.clients, name)
	}
	return errors.Join(errs...)
}
