package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/virtual-fitting/internal/config"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/generation"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	defaults, err := config.LoadDefaults("")
	if err != nil {
		t.Fatalf("LoadDefaults() error = %v", err)
	}
	return config.Config{
		APIBaseURL:         "http://localhost:8090",
		APIProtocol:        config.ProtocolREST,
		APIActionPath:      "/action",
		HTTPTimeoutSeconds: 5,
		BreakerEnabled:     true,
		CaptureSource:      CaptureSourceReplay,
		ReplayDir:          t.TempDir(),
		SpoolDir:           t.TempDir(),
		DevPort:            "8090",
		DevStoragePath:     t.TempDir(),
		DevCompleteAfter:   1,
		Defaults:           defaults,
	}
}

func TestTimelineConfigCoversWholeRecording(t *testing.T) {
	tests := []struct {
		durationMS int
		want       int
	}{
		{durationMS: 4000, want: 4},
		{durationMS: 4500, want: 5},
		{durationMS: 200, want: 1},
	}
	for _, tt := range tests {
		var d config.Defaults
		d.Capture.DurationMS = tt.durationMS
		if got := timelineConfig(d).RecordSeconds; got != tt.want {
			t.Fatalf("duration %dms: expected %d record seconds, got %d", tt.durationMS, tt.want, got)
		}
	}
}

func TestNewWiresRESTClient(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if _, ok := app.Service.(*generation.RESTClient); !ok {
		t.Fatalf("expected REST client, got %T", app.Service)
	}
	if app.Capture == nil || app.Submit == nil || app.Poll == nil || app.Selection == nil {
		t.Fatalf("expected use cases to be wired")
	}
	if len(app.Catalog.List()) != 6 {
		t.Fatalf("expected six garments, got %d", len(app.Catalog.List()))
	}
	ok, err := app.Prober.HasVideoInput(context.Background())
	if err != nil || ok {
		t.Fatalf("expected empty replay dir to report no device, got %v %v", ok, err)
	}
}

func TestNewSelectsActionClient(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIProtocol = config.ProtocolAction
	app, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := app.Service.(*generation.ActionClient); !ok {
		t.Fatalf("expected action client, got %T", app.Service)
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIProtocol = "grpc"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected unknown protocol to fail")
	}

	cfg = testConfig(t)
	cfg.CaptureSource = "screen"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected unknown capture source to fail")
	}
}

func TestNewDevServerServesGarments(t *testing.T) {
	srv, err := NewDevServer(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewDevServer() error = %v", err)
	}
	defer srv.Close()

	res := httptest.NewRecorder()
	srv.Handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/garments", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body struct {
		Garments []map[string]any `json:"garments"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode garments: %v", err)
	}
	if len(body.Garments) != 6 {
		t.Fatalf("expected six garments, got %d", len(body.Garments))
	}
	if err := srv.WatchSessionEvents(context.Background(), nil); err != nil {
		t.Fatalf("expected no-op watch without nats, got %v", err)
	}
}

func TestPublicURL(t *testing.T) {
	if got := PublicURL(config.Config{DevPort: "9000"}); got != "http://localhost:9000" {
		t.Fatalf("unexpected default public url %q", got)
	}
	if got := PublicURL(config.Config{DevPublicURL: "https://dev.example.com/"}); got != "https://dev.example.com" {
		t.Fatalf("unexpected public url %q", got)
	}
}
