package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

func TestSaveAndOpenNestedKey(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "videos/abc.avi", strings.NewReader("clip")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := store.Open(ctx, "videos/abc.avi")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "clip" {
		t.Fatalf("expected stored bytes, got %q", body)
	}
}

func TestOpenMissingIsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Open(context.Background(), "missing.avi"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestKeysStayInsideBase(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Save(context.Background(), "", strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	path, err := store.path("../../etc/passwd")
	if err != nil {
		t.Fatalf("path() error = %v", err)
	}
	if !strings.HasPrefix(path, store.basePath) {
		t.Fatalf("expected %q to stay below %q", path, store.basePath)
	}
}
