package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	httpadapter "github.com/kirillkom/virtual-fitting/internal/adapters/http"
	"github.com/kirillkom/virtual-fitting/internal/config"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/catalog"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/events/nats"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/storage/s3presign"
	"github.com/kirillkom/virtual-fitting/internal/observability/metrics"
)

// DevServer is the wiring of the local generation stand-in.
type DevServer struct {
	Config  config.Config
	Handler http.Handler

	events  *nats.Publisher
	closeFn func()
}

func NewDevServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*DevServer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	storage, signer, err := newDevStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	garments, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("load garment catalog: %w", err)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	var jobs ports.JobStore = httpadapter.NewMemoryJobStore()
	if cfg.DevPostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.DevPostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewJobRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		jobs = repo
		closers = append(closers, func() { _ = db.Close() })
	}

	router, err := httpadapter.NewRouter(httpadapter.RouterConfig{
		Service:        "devserver",
		Storage:        storage,
		Signer:         signer,
		Catalog:        garments,
		Metrics:        metrics.NewHTTPServerMetrics("devserver"),
		Jobs:           jobs,
		UploadTTL:      cfg.DevUploadTTL(),
		CompleteAfter:  cfg.DevCompleteAfter,
		RateLimitRPS:   cfg.DevRateLimitRPS,
		RateLimitBurst: cfg.DevRateLimitBurst,
		MaxInFlight:    cfg.DevMaxInFlight,
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init router: %w", err)
	}

	srv := &DevServer{Config: cfg, Handler: router.Handler()}
	srv.closeFn = closeAll
	if cfg.NATSURL == "" {
		return srv, nil
	}
	events, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("init session events: %w", err)
	}
	srv.events = events
	closers = append(closers, events.Close)
	logger.Info("session_events_enabled", "subject", cfg.NATSSubject)
	return srv, nil
}

// WatchSessionEvents logs client session events until ctx is done. It is a
// no-op without NATS_URL.
func (s *DevServer) WatchSessionEvents(ctx context.Context, logger *slog.Logger) error {
	if s.events == nil {
		return nil
	}
	return s.events.SubscribeSessionEvents(ctx, func(_ context.Context, ev nats.SessionEvent) error {
		logger.Info("session_event",
			"type", ev.Type,
			"session_id", ev.SessionID,
			"job_id", ev.JobID,
			"status", ev.Status,
			"error_kind", ev.ErrorKind,
		)
		return nil
	})
}

func (s *DevServer) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// PublicURL is the base for upload and media links handed to clients.
func PublicURL(cfg config.Config) string {
	if u := strings.TrimSpace(cfg.DevPublicURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:" + cfg.DevPort
}

func newDevStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, ports.UploadSigner, error) {
	if strings.TrimSpace(cfg.DevS3Bucket) != "" {
		store, err := s3presign.New(ctx, s3presign.Options{
			Region:          cfg.DevS3Region,
			Bucket:          cfg.DevS3Bucket,
			Endpoint:        cfg.DevS3Endpoint,
			AccessKeyID:     cfg.DevS3AccessKey,
			SecretAccessKey: cfg.DevS3SecretKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return store, store, nil
	}

	store, err := localfs.New(cfg.DevStoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("init object storage: %w", err)
	}
	return store, httpadapter.NewLocalSigner(PublicURL(cfg)), nil
}
