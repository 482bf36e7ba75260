package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	CORSAllowedOrigin string

	Council CouncilConfig
	LLM     LLMConfig
	Report  ReportConfig
	NATS    NATSConfig
}

type CouncilConfig struct {
	// MembersFile optionally replaces the default member table (YAML).
	MembersFile string
	// Pacer is "fixed" (StageDelay after every stage) or "rate" (RPM across sessions).
	Pacer      string
	StageDelay time.Duration
	RPM        int
	// StageMaxAttempts bounds retries of a single stage call. 1 disables retrying.
	StageMaxAttempts int
	RetryBaseDelay   time.Duration
}

type LLMConfig struct {
	GroqBaseURL     string
	RequestTimeout  time.Duration
	UsageLedgerPath string
	// RPM and TPM cap every model process-wide. Zero disables.
	RPM int
	TPM int
	// ModelLimits holds per-model overrides from LLM_LIMITS ("model=rpm:tpm,...").
	ModelLimits map[string]ModelLimit
}

type ModelLimit struct {
	RPM int
	TPM int
}

type ReportConfig struct {
	// Store is one of "none", "memory", "sqlite", "postgres", "s3".
	Store       string
	SQLitePath  string
	DatabaseURL string
	MemoryTTL   time.Duration
	MaxEntries  int
	S3          S3Config
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CanUseS3 reports whether enough settings are present to open a bucket.
func (c S3Config) CanUseS3() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

type NATSConfig struct {
	URL string
	// Embedded starts an in-process server when URL is empty.
	Embedded bool
	Port     int
	DataDir  string
}

// Enabled reports whether events are fanned out over NATS.
func (c NATSConfig) Enabled() bool { return c.URL != "" || c.Embedded }

func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(os.Args[1:], os.Getenv)
}

// LoadFrom builds a Config from command-line args and an environment lookup.
func LoadFrom(args []string, getenv func(string) string) (*Config, error) {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	port := fs.String("port", ":8080", "server port")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if envPort := env("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	appEnv := firstNonEmpty(env("APP_ENV"), "local")

	p := &parser{env: env}
	cfg := &Config{
		Port:              *port,
		Env:               appEnv,
		CORSAllowedOrigin: env("CORS_ALLOWED_ORIGIN"),
		Council: CouncilConfig{
			MembersFile:      env("COUNCIL_MEMBERS_FILE"),
			Pacer:            strings.ToLower(firstNonEmpty(env("COUNCIL_PACER"), "fixed")),
			StageDelay:       p.duration("COUNCIL_STAGE_DELAY", time.Second),
			RPM:              p.integer("COUNCIL_RPM", 0),
			StageMaxAttempts: p.integer("COUNCIL_STAGE_MAX_ATTEMPTS", 1),
			RetryBaseDelay:   p.duration("COUNCIL_RETRY_BASE_DELAY", 500*time.Millisecond),
		},
		LLM: LLMConfig{
			GroqBaseURL:     env("GROQ_BASE_URL"),
			RequestTimeout:  p.duration("COUNCIL_REQUEST_TIMEOUT", 60*time.Second),
			UsageLedgerPath: env("LLM_USAGE_LEDGER"),
			RPM:             p.integer("LLM_RPM", 0),
			TPM:             p.integer("LLM_TPM", 0),
			ModelLimits:     p.modelLimits("LLM_LIMITS"),
		},
		Report: loadReportConfig(env, p, appEnv),
		NATS: NATSConfig{
			URL:      env("NATS_URL"),
			Embedded: p.boolean("NATS_EMBEDDED", false),
			Port:     p.integer("NATS_PORT", -1),
			DataDir:  firstNonEmpty(env("NATS_DATA_DIR"), "tmp/nats"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	switch cfg.Council.Pacer {
	case "fixed", "rate":
	default:
		return nil, fmt.Errorf("COUNCIL_PACER: unknown pacer %q", cfg.Council.Pacer)
	}
	if cfg.Council.StageMaxAttempts < 1 {
		return nil, fmt.Errorf("COUNCIL_STAGE_MAX_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

func loadReportConfig(env func(string) string, p *parser, appEnv string) ReportConfig {
	rc := ReportConfig{
		Store:       strings.ToLower(env("REPORT_STORE")),
		SQLitePath:  firstNonEmpty(env("REPORT_SQLITE_PATH"), "tmp/council_reports.db"),
		DatabaseURL: env("DATABASE_URL"),
		MemoryTTL:   p.duration("REPORT_MEMORY_TTL", time.Hour),
		MaxEntries:  p.integer("REPORT_MAX_ENTRIES", 1024),
		S3: S3Config{
			Endpoint:  resolveS3Endpoint(env, appEnv),
			Region:    firstNonEmpty(env("REPORT_S3_REGION"), "us-east-1"),
			AccessKey: firstNonEmpty(env("REPORT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER")),
			SecretKey: firstNonEmpty(env("REPORT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD")),
			Bucket:    firstNonEmpty(env("REPORT_S3_BUCKET"), "council-reports"),
			UseSSL:    resolveS3UseSSL(env, appEnv),
		},
	}
	if rc.Store == "" {
		switch {
		case rc.DatabaseURL != "":
			rc.Store = "postgres"
		case rc.S3.CanUseS3():
			rc.Store = "s3"
		default:
			rc.Store = "memory"
		}
	}
	return rc
}

func resolveS3Endpoint(env func(string) string, appEnv string) string {
	if strings.EqualFold(appEnv, "local") {
		return firstNonEmpty(env("REPORT_S3_ENDPOINT"), env("REPORT_MINIO_ENDPOINT"))
	}
	return env("REPORT_S3_ENDPOINT")
}

func resolveS3UseSSL(env func(string) string, appEnv string) bool {
	if strings.EqualFold(appEnv, "local") {
		return false
	}
	raw := env("REPORT_S3_USE_SSL")
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

// parser records the first malformed value it sees.
type parser struct {
	env func(string) string
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: invalid value %q: %w", key, raw, err)
	}
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.env(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Bare integers are milliseconds.
	ms, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func (p *parser) integer(key string, def int) int {
	raw := p.env(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) boolean(key string, def bool) bool {
	raw := p.env(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) modelLimits(key string) map[string]ModelLimit {
	raw := p.env(key)
	out := map[string]ModelLimit{}
	if raw == "" {
		return out
	}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		model, limits, ok := strings.Cut(item, "=")
		if !ok {
			p.fail(key, item, fmt.Errorf("want model=rpm:tpm"))
			continue
		}
		rpmRaw, tpmRaw, _ := strings.Cut(limits, ":")
		var lim ModelLimit
		var err error
		if strings.TrimSpace(rpmRaw) != "" {
			if lim.RPM, err = strconv.Atoi(strings.TrimSpace(rpmRaw)); err != nil {
				p.fail(key, item, err)
				continue
			}
		}
		if strings.TrimSpace(tpmRaw) != "" {
			if lim.TPM, err = strconv.Atoi(strings.TrimSpace(tpmRaw)); err != nil {
				p.fail(key, item, err)
				continue
			}
		}
		out[strings.TrimSpace(model)] = lim
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
