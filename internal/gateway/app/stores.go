package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"council/internal/gateway/config"
	"council/internal/gateway/repository/report"
)

const reportCacheSize = 256

// initReportStore opens the archive selected by REPORT_STORE. A nil store
// with a nil error means archiving is disabled.
func initReportStore(ctx context.Context, cfg config.ReportConfig) (report.Store, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Store))
	var (
		origin report.Store
		err    error
	)
	switch kind {
	case "", "none":
		log.Printf("report store: disabled")
		return nil, nil
	case "memory":
		log.Printf("report store: memory (max=%d ttl=%s)", cfg.MaxEntries, cfg.MemoryTTL)
		return report.NewMemoryStore(cfg.MaxEntries, cfg.MemoryTTL), nil
	case "sqlite":
		origin, err = report.NewSQLiteStore(cfg.SQLitePath)
		if err == nil {
			log.Printf("report store: sqlite path=%s", cfg.SQLitePath)
		}
	case "postgres":
		origin, err = report.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err == nil {
			log.Printf("report store: postgres")
		}
	case "s3":
		origin, err = report.NewS3Store(report.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err == nil {
			log.Printf("report store: s3 bucket=%s endpoint=%s", cfg.S3.Bucket, cfg.S3.Endpoint)
		}
	default:
		return nil, fmt.Errorf("unknown report store %q", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s report store: %w", kind, err)
	}
	cached, err := report.NewCachedStore(origin, reportCacheSize)
	if err != nil {
		_ = origin.Close()
		return nil, fmt.Errorf("failed to initialize report cache: %w", err)
	}
	return cached, nil
}
