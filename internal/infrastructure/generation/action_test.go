package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

func TestActionClientDispatchesByAction(t *testing.T) {
	var actions []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		action, _ := req["action"].(string)
		actions = append(actions, action)
		switch action {
		case ActionCreateUpload:
			if req["filename"] != "video-1.avi" {
				t.Errorf("unexpected filename %v", req["filename"])
			}
			_, _ = w.Write([]byte(`{"uploadUrl":"https://bucket.example/in/1","inputKey":"in/1"}`))
		case ActionProcess:
			if req["inputKey"] != "in/1" || req["garmentId"] != "pink" {
				t.Errorf("unexpected process request %v", req)
			}
			_, _ = w.Write([]byte(`{"jobId":"j1","outputKey":"out/1","resultUrl":"https://bucket.example/out/1"}`))
		case ActionImageOnly:
			_, _ = w.Write([]byte(`{"jobId":"j2","resultUrl":"https://bucket.example/out/2"}`))
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client, err := NewActionClient(server.URL, "/api", nil, nil)
	if err != nil {
		t.Fatalf("NewActionClient() error = %v", err)
	}
	ctx := context.Background()

	target, err := client.RequestUploadTarget(ctx, "video-1.avi", "video/x-msvideo")
	if err != nil {
		t.Fatalf("RequestUploadTarget() error = %v", err)
	}
	if target.ObjectKey != "in/1" || target.UploadURL != "https://bucket.example/in/1" {
		t.Fatalf("unexpected target %+v", target)
	}

	job, err := client.StartGeneration(ctx, target.ObjectKey, "pink")
	if err != nil {
		t.Fatalf("StartGeneration() error = %v", err)
	}
	if job.Status != domain.JobCompleted || job.ResultURL != "https://bucket.example/out/1" {
		t.Fatalf("expected completed job, got %+v", job)
	}

	status, err := client.PollStatus(ctx, "j1")
	if err != nil || status.Status != domain.JobCompleted || status.ResultURL != job.ResultURL {
		t.Fatalf("expected stored result, got %+v %v", status, err)
	}

	if _, err := client.StartImageGeneration(ctx, "aGk=", "pink"); err != nil {
		t.Fatalf("StartImageGeneration() error = %v", err)
	}
	if len(actions) != 3 || actions[2] != ActionImageOnly {
		t.Fatalf("unexpected actions %v", actions)
	}
}

func TestActionClientPollUnknownJob(t *testing.T) {
	client, err := NewActionClient("http://127.0.0.1:1", "/api", nil, nil)
	if err != nil {
		t.Fatalf("NewActionClient() error = %v", err)
	}
	if _, err := client.PollStatus(context.Background(), "missing"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
