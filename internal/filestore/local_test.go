package filestore

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalFileStore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "downloads")
	store, err := NewLocalFileStore(root)
	if err != nil {
		t.Fatalf("NewLocalFileStore: %v", err)
	}

	data := []byte("attachment body")
	hash := Hash(data)
	if len(hash) != 64 {
		t.Fatalf("expected hex sha256, got %q", hash)
	}

	if err := store.Save(bytes.NewReader(data), hash); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// A second save with different content under the same hash is a no-op.
	if err := store.Save(bytes.NewReader([]byte("other")), hash); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	if got := store.Path(hash); got != filepath.Join(root, hash[:2], hash) {
		t.Errorf("unexpected path %s", got)
	}

	rc, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}

	entries, err := os.ReadDir(filepath.Join(root, hash[:2]))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the stored file, found %d entries", len(entries))
	}

	if _, err := store.Get(Hash([]byte("missing"))); err == nil {
		t.Error("expected error for missing content")
	}
}
