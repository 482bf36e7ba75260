package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"council/internal/council"
)

// Report is one archived council decree.
type Report struct {
	ID        string           `json:"id"`
	Prompt    string           `json:"prompt"`
	Verdict   string           `json:"verdict"`
	Report    string           `json:"report"`
	Members   []council.Member `json:"members"`
	CreatedAt time.Time        `json:"createdAt"`
}

// FromResult converts a finished session into an archive record.
func FromResult(res *council.Result, now time.Time) Report {
	return Report{
		ID:        res.SessionID,
		Prompt:    res.Prompt,
		Verdict:   res.Verdict,
		Report:    res.Report,
		Members:   append([]council.Member(nil), res.Members...),
		CreatedAt: now.UTC(),
	}
}

// Store persists finished reports keyed by session id.
type Store interface {
	Put(ctx context.Context, r Report) error
	Get(ctx context.Context, id string) (Report, error)
	Close() error
}

var ErrNotFound = errors.New("report not found")

func normalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("report id is required")
	}
	return id, nil
}
