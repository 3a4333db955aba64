package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"buddy/internal/conversation"
)

// FileStore keeps the snapshot as an indented UTF-8 JSON document, sealed
// when Sealer is set.
type FileStore struct {
	Path   string
	Sealer Sealer
}

var _ conversation.Persister = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load(_ context.Context) (conversation.Snapshot, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return conversation.Snapshot{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	if b, err = unseal(f.Sealer, b); err != nil {
		return nil, err
	}
	return decodeSnapshot(b)
}

// Save writes to a temp file in the same directory and renames it over the
// target so a crash never leaves a truncated snapshot.
func (f *FileStore) Save(_ context.Context, snap conversation.Snapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if b, err = seal(f.Sealer, b); err != nil {
		return err
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("replace %s: %w", f.Path, err)
	}
	return nil
}

func encodeSnapshot(snap conversation.Snapshot) ([]byte, error) {
	if snap == nil {
		snap = conversation.Snapshot{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(b []byte) (conversation.Snapshot, error) {
	snap := conversation.Snapshot{}
	if len(bytes.TrimSpace(b)) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for topic, msgs := range snap {
		if msgs == nil {
			snap[topic] = []conversation.Message{}
		}
	}
	return snap, nil
}
