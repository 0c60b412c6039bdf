package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"wallet-engine/internal/store"
	"wallet-engine/internal/util"
)

const latestFileName = "latest.snapshot"

// FileStore keeps the most recent snapshot in a single file, written
// atomically via rename so a crash mid-save never corrupts the
// previous snapshot.
type FileStore struct {
	dir   string
	codec *Codec
}

func NewFileStore(dir string, codec *Codec) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

func (s *FileStore) Save(ctx context.Context, snap *store.Snapshot) error {
	data, err := s.codec.Encode(ctx, snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}

	target := filepath.Join(s.dir, latestFileName)
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	util.Info("snapshot saved",
		util.String("snapshot_id", snap.SnapshotID),
		util.String("path", target),
		util.Int("bytes", len(data)),
	)
	return nil
}

func (s *FileStore) Load(ctx context.Context) (*store.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, latestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return s.codec.Decode(ctx, data)
}

func (s *FileStore) Close() error {
	return nil
}
