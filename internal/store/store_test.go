package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jdarais/cobble/internal/workspace"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cobble.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &workspace.TaskRecord{
		InputHash: "sha256:abc",
		Output: workspace.TaskOutput{
			Value:          workspace.ScriptValue(`{"ok":true}`),
			ArtifactHashes: map[string]string{"out/bin": "sha256:def"},
		},
	}
	if err := s.Put(ctx, "compile", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "compile")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.InputHash != rec.InputHash {
		t.Fatalf("InputHash = %q, want %q", got.InputHash, rec.InputHash)
	}
	if got.Output.ArtifactHashes["out/bin"] != "sha256:def" {
		t.Fatalf("ArtifactHashes = %v", got.Output.ArtifactHashes)
	}
}

func TestPutOverwritesPriorRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "t", &workspace.TaskRecord{InputHash: "sha256:1", Output: workspace.TaskOutput{Value: workspace.ScriptValue(`{}`)}})
	_ = s.Put(ctx, "t", &workspace.TaskRecord{InputHash: "sha256:2", Output: workspace.TaskOutput{Value: workspace.ScriptValue(`{}`)}})

	got, err := s.Get(ctx, "t")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.InputHash != "sha256:2" {
		t.Fatalf("InputHash = %q, want sha256:2 (latest write)", got.InputHash)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "t", &workspace.TaskRecord{InputHash: "sha256:1", Output: workspace.TaskOutput{Value: workspace.ScriptValue(`{}`)}})
	if err := s.Delete(ctx, "t"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "t"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound after delete", err)
	}
}
