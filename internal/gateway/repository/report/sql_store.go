package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"council/internal/council"
)

// SQLStore archives reports in a council_reports table. The same statements
// run on SQLite and Postgres.
type SQLStore struct {
	db     *sql.DB
	schema string

	schemaOnce sync.Once
	schemaErr  error
}

const upsertReport = `
INSERT INTO council_reports (id, prompt, verdict, report, members, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id)
DO UPDATE SET prompt=EXCLUDED.prompt, verdict=EXCLUDED.verdict, report=EXCLUDED.report,
	members=EXCLUDED.members, created_at=EXCLUDED.created_at
`

const selectReport = `SELECT prompt, verdict, report, members, created_at FROM council_reports WHERE id=$1`

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, s.schema)
	})
	return s.schemaErr
}

func (s *SQLStore) Put(ctx context.Context, r Report) error {
	id, err := normalizeID(r.ID)
	if err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	members, err := json.Marshal(r.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, upsertReport, id, r.Prompt, r.Verdict, r.Report, string(members), created.UTC().UnixMilli())
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Report, error) {
	id, err := normalizeID(id)
	if err != nil {
		return Report{}, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return Report{}, fmt.Errorf("ensure schema: %w", err)
	}
	var (
		r       = Report{ID: id}
		members string
		created int64
	)
	err = s.db.QueryRowContext(ctx, selectReport, id).Scan(&r.Prompt, &r.Verdict, &r.Report, &members, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	if members != "" {
		var ms []council.Member
		if err := json.Unmarshal([]byte(members), &ms); err != nil {
			return Report{}, fmt.Errorf("decode members of %s: %w", id, err)
		}
		r.Members = ms
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	return r, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
