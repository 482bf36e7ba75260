package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	llmclient "council/internal/llm/client"
)

// UsageLedger tracks LLM usage statistics to a JSON file.
type UsageLedger struct {
	mu   sync.Mutex
	path string
	log  *log.Logger
	now  func() time.Time
}

type usageLedgerFile struct {
	UpdatedAt string              `json:"updated_at"`
	Days      map[string]usageDay `json:"days"`
}

type usageDay struct {
	Requests int64                `json:"requests"`
	Tokens   int64                `json:"tokens"`
	Errors   int64                `json:"errors"`
	Models   map[string]usageStat `json:"models"`
}

type usageStat struct {
	Requests int64 `json:"requests"`
	Tokens   int64 `json:"tokens"`
	Errors   int64 `json:"errors"`
}

// NewUsageLedger creates a new usage ledger that writes to path. Failures to
// persist the ledger are reported to logger, or log.Default() when nil.
func NewUsageLedger(path string, logger *log.Logger) *UsageLedger {
	if logger == nil {
		logger = log.Default()
	}
	return &UsageLedger{path: path, log: logger, now: time.Now}
}

// WithUsageLedger returns a middleware that tracks usage in ledger. A nil
// ledger or empty path disables accounting.
func WithUsageLedger(ledger *UsageLedger) Middleware {
	return func(next llmclient.ChatClient) llmclient.ChatClient {
		if ledger == nil || ledger.path == "" {
			return next
		}
		return &usageLedgerClient{next: next, ledger: ledger}
	}
}

type usageLedgerClient struct {
	next   llmclient.ChatClient
	ledger *UsageLedger
}

func (u *usageLedgerClient) Name() string { return u.next.Name() }
func (u *usageLedgerClient) Close() error { return u.next.Close() }

func (u *usageLedgerClient) Complete(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	resp, err := u.next.Complete(ctx, req)
	tokens := llmclient.RequestTokens(req) + llmclient.CountTokens(resp.Content)
	if tokens < 1 {
		tokens = 1
	}
	u.ledger.record(req.Model, int64(tokens), err != nil)
	return resp, err
}

func (l *UsageLedger) record(model string, tokens int64, hasErr bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if model == "" {
		model = "unknown"
	}
	now := l.now().UTC()
	dayKey := now.Format("2006-01-02")
	f := usageLedgerFile{Days: map[string]usageDay{}}
	if b, err := os.ReadFile(l.path); err == nil {
		if err := json.Unmarshal(b, &f); err != nil {
			l.log.Printf("usage ledger: discarding unreadable %s: %v", l.path, err)
			f = usageLedgerFile{}
		}
		if f.Days == nil {
			f.Days = map[string]usageDay{}
		}
	}

	d := f.Days[dayKey]
	if d.Models == nil {
		d.Models = map[string]usageStat{}
	}
	d.Requests++
	d.Tokens += tokens
	if hasErr {
		d.Errors++
	}
	m := d.Models[model]
	m.Requests++
	m.Tokens += tokens
	if hasErr {
		m.Errors++
	}
	d.Models[model] = m
	f.Days[dayKey] = d
	f.UpdatedAt = now.Format(time.RFC3339)

	if err := l.write(f); err != nil {
		l.log.Printf("usage ledger: %v", err)
	}
}

func (l *UsageLedger) write(f usageLedgerFile) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", l.path, err)
	}
	return nil
}
