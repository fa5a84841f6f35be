package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/eventload/eventload/internal/cache"
	"github.com/eventload/eventload/internal/config"
	elerrors "github.com/eventload/eventload/internal/errors"
	"github.com/eventload/eventload/internal/logger"
	"github.com/eventload/eventload/internal/storage"
	"github.com/eventload/eventload/internal/telemetry"
)

// session is everything one command invocation needs. It is released by
// close on every exit path.
type session struct {
	cfg    *config.Config
	log    logger.Logger
	runID  string
	tracer trace.Tracer

	shutdown func(context.Context) error
}

// loadConfig applies defaults, then the config file, then EVENTLOAD_*
// variables, then explicitly set flags.
func (r *root) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if r.configPath != "" {
		fileCfg, err := config.LoadFromFile(r.configPath)
		if err != nil {
			return nil, elerrors.Wrap(elerrors.ErrCategoryValidation, elerrors.CodeInvalidConfig, "failed to load configuration", err)
		}
		cfg = fileCfg
	}
	config.LoadFromEnv(cfg)

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = r.debug
	}
	if flags.Changed("trace") {
		cfg.Trace = r.trace
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = r.cacheDir
		cfg.Cache.Enabled = r.cacheDir != ""
	}
	if flags.Lookup("host") != nil && flags.Changed("host") {
		host, _ := flags.GetString("host")
		cfg.Source.Host = host
	}
	if flags.Lookup("db") != nil && flags.Changed("db") {
		dsn, _ := flags.GetString("db")
		cfg.Store.DSN = dsn
		// Let Resolve infer the driver from the new DSN.
		if cfg.Store.Driver == config.DriverPostgres && !isPostgresURL(dsn) {
			cfg.Store.Driver = config.DriverSQLite
		}
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, elerrors.Wrap(elerrors.ErrCategoryValidation, elerrors.CodeInvalidConfig, "invalid configuration", err)
	}
	r.verboseErrors = cfg.Debug
	return cfg, nil
}

// start loads configuration and sets up logging and tracing.
func (r *root) start(cmd *cobra.Command) (*session, error) {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, elerrors.NewInternalError("failed to generate run id", err)
	}
	runID := id.String()

	level := logger.LevelInfo
	if cfg.Debug {
		level = logger.LevelDebug
	}
	log := logger.New(r.stderr, level).WithPrefix(fmt.Sprintf("[run %s] ", runID))

	tp, shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		ServiceVersion: r.opts.Version,
		Export:         cfg.Trace,
		Writer:         r.stderr,
		RunID:          runID,
	})
	if err != nil {
		return nil, elerrors.NewInternalError("failed to initialize tracing", err)
	}

	log.Debugf("%s: host=%s store=%s cache=%t", cmd.Name(), cfg.Source.Host, cfg.Store.Driver, cfg.Cache.Enabled)
	return &session{
		cfg:      cfg,
		log:      log,
		runID:    runID,
		tracer:   tp.Tracer("github.com/eventload/eventload"),
		shutdown: shutdown,
	}, nil
}

func (s *session) close(ctx context.Context) {
	// Spans are flushed even when the run context was cancelled.
	if err := s.shutdown(context.WithoutCancel(ctx)); err != nil {
		s.log.Warnf("failed to flush spans: %v", err)
	}
}

func (s *session) s3Config() storage.S3Config {
	return storage.S3Config{
		Region:       s.cfg.Source.Region,
		Endpoint:     s.cfg.Source.Endpoint,
		UsePathStyle: s.cfg.Source.UsePathStyle,
	}
}

// openHost returns the storage rooted at host, behind the fetch cache when
// one is configured.
func (s *session) openHost(ctx context.Context, host string) (storage.ObjectStorage, error) {
	src, err := storage.Open(ctx, host, s.s3Config())
	if err != nil {
		return nil, storage.AsSourceError(host, err)
	}
	return s.withCache(src, host)
}

// openObject resolves a full object URL into its storage and object path.
func (s *session) openObject(ctx context.Context, rawURL string) (storage.ObjectStorage, string, error) {
	src, objectPath, err := storage.OpenObject(ctx, rawURL, s.s3Config())
	if err != nil {
		return nil, "", storage.AsSourceError(rawURL, err)
	}
	namespace := strings.TrimSuffix(rawURL, "/"+objectPath)
	cached, err := s.withCache(src, namespace)
	if err != nil {
		return nil, "", err
	}
	return cached, objectPath, nil
}

func (s *session) withCache(src storage.ObjectStorage, namespace string) (storage.ObjectStorage, error) {
	if !s.cfg.Cache.Enabled {
		return src, nil
	}
	c, err := cache.New(src, s.cfg.Cache.Dir, namespace, cache.DefaultMaxBytes)
	if err != nil {
		return nil, elerrors.NewInternalError("failed to open fetch cache", err)
	}
	s.log.Debugf("fetch cache at %s (%d entries)", s.cfg.Cache.Dir, c.Len())
	return c, nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
