package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kirillkom/virtual-fitting/internal/config"
	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
	"github.com/kirillkom/virtual-fitting/internal/core/session"
	"github.com/kirillkom/virtual-fitting/internal/core/usecase"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/catalog"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/device/camera"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/device/replay"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/encoder/mjpeg"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/events/nats"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/generation"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/media"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/resilience"
	"github.com/kirillkom/virtual-fitting/internal/observability/metrics"
)

const (
	CaptureSourceCamera = "camera"
	CaptureSourceReplay = "replay"
)

type captureDevice interface {
	ports.Camera
	ports.DeviceProber
}

// App is the client side object graph shared by every CLI step.
type App struct {
	Config config.Config

	Store   *session.Store
	Catalog *catalog.Catalog
	Metrics *metrics.ClientMetrics
	Service ports.GenerationService
	Prober  ports.DeviceProber
	Encoder ports.ClipEncoder

	Capture   *usecase.CaptureFlow
	Selection *usecase.SelectionUseCase
	Submit    *usecase.SubmitUseCase
	Poll      *usecase.PollUseCase

	closeFn func()
}

func New(_ context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := cfg.Defaults
	clock := clockwork.NewRealClock()

	garments, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("load garment catalog: %w", err)
	}

	guard := resilience.NewGuard(guardConfig(cfg))
	service, err := newGenerationService(cfg, guard)
	if err != nil {
		return nil, fmt.Errorf("init generation client: %w", err)
	}

	device, err := newCaptureDevice(cfg, logger)
	if err != nil {
		return nil, err
	}

	clientMetrics := metrics.NewClientMetrics("fitting")
	encoder := mjpeg.New(cfg.SpoolDir, defaults.Encoder.JPEGQuality)
	normalizer := media.NewNormalizer(normalizerOptions(defaults.Normalizer), media.NewHEICConverter(defaults.Normalizer.HEICQuality), clientMetrics, logger)

	store := session.NewStore()
	ctrl := usecase.NewCaptureController(device, encoder, media.NewReprojector(), clock, clientMetrics, logger, captureConfig(defaults.Capture))
	timeline := usecase.NewTimeline(clock, timelineConfig(defaults))

	app := &App{
		Config:  cfg,
		Store:   store,
		Catalog: garments,
		Metrics: clientMetrics,
		Service: service,
		Prober:  device,
		Encoder: encoder,

		Capture:   usecase.NewCaptureFlow(ctrl, timeline, store, logger),
		Selection: usecase.NewSelectionUseCase(garments, normalizer, store, logger),
		Submit:    usecase.NewSubmitUseCase(service, garments, store, clientMetrics, logger),
		Poll: usecase.NewPollUseCase(service, store, clock, clientMetrics, logger,
			time.Duration(defaults.Polling.IntervalMS)*time.Millisecond),
	}

	if cfg.NATSURL == "" {
		return app, nil
	}
	publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Guard: guard})
	if err != nil {
		return nil, fmt.Errorf("init session events: %w", err)
	}
	forwarder := usecase.NewEventForwarder(publisher, logger)
	forwarder.Attach(store)
	app.closeFn = func() {
		forwarder.Close()
		publisher.Close()
	}
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func guardConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(0, cfg.BreakerMinRequests)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.BreakerOpenTimeoutSeconds) * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func newGenerationService(cfg config.Config, guard *resilience.Guard) (ports.GenerationService, error) {
	httpClient := generation.NewHTTPClient(cfg.HTTPTimeout())
	switch cfg.APIProtocol {
	case config.ProtocolREST, "":
		return generation.NewRESTClient(cfg.APIBaseURL, httpClient, guard)
	case config.ProtocolAction:
		return generation.NewActionClient(cfg.APIBaseURL, cfg.APIActionPath, httpClient, guard)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "select protocol", fmt.Errorf("unknown API_PROTOCOL %q", cfg.APIProtocol))
	}
}

func newCaptureDevice(cfg config.Config, logger *slog.Logger) (captureDevice, error) {
	switch cfg.CaptureSource {
	case CaptureSourceCamera, "":
		return camera.New(logger), nil
	case CaptureSourceReplay:
		return replay.New(cfg.ReplayDir, cfg.Defaults.Capture.FPS, cfg.ReplayStrict, logger), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "select capture source", fmt.Errorf("unknown CAPTURE_SOURCE %q", cfg.CaptureSource))
	}
}

func captureConfig(d config.CaptureDefaults) usecase.CaptureConfig {
	return usecase.CaptureConfig{
		Preferred:       domain.Resolution{Width: d.PreferredWidth, Height: d.PreferredHeight},
		TargetAspect:    d.TargetAspect(),
		AspectTolerance: d.AspectTolerance,
		Canvas:          domain.Resolution{Width: d.CanvasWidth, Height: d.CanvasHeight},
		FPS:             d.FPS,
		Duration:        d.Duration(),
	}
}

func timelineConfig(d config.Defaults) usecase.TimelineConfig {
	return usecase.TimelineConfig{
		SettleDelay:   time.Duration(d.Timeline.SettleDelayMS) * time.Millisecond,
		Tick:          time.Duration(d.Timeline.TickMS) * time.Millisecond,
		CountdownFrom: d.Timeline.CountdownFrom,
		RecordSeconds: (d.Capture.DurationMS + 999) / 1000,
	}
}

func normalizerOptions(d config.NormalizerDefaults) media.Options {
	return media.Options{
		Format:          d.Format,
		Quality:         d.Quality,
		MaxDimension:    d.MaxDimension,
		MaxSizeKB:       d.MaxSizeKB,
		QualityFloor:    d.QualityFloor,
		QualityStep:     d.QualityStep,
		DimensionFloor:  d.DimensionFloor,
		DimensionFactor: d.DimensionFactor,
	}
}
