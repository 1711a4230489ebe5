package storage

import (
	"context"
	"encoding/base32"
	"os"
	"path/filepath"
	"sync"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
)

// DiskKV stores each blob as one file under a directory. Keys are
// encoded so arbitrary key strings map to safe file names.
type DiskKV struct {
	dir string
	mu  sync.RWMutex
}

// NewDiskKV creates the directory if needed.
func NewDiskKV(dir string) (*DiskKV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskKV{dir: dir}, nil
}

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func (d *DiskKV) filePath(key string) string {
	return filepath.Join(d.dir, keyEncoding.EncodeToString([]byte(key))+".json")
}

// Get implements KV.
func (d *DiskKV) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	data, err := os.ReadFile(d.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewNotFoundError("blob", key)
		}
		return nil, err
	}
	return data, nil
}

// Set implements KV.
func (d *DiskKV) Set(ctx context.Context, key string, blob []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return os.WriteFile(d.filePath(key), blob, 0o644)
}

// Delete implements KV.
func (d *DiskKV) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := os.Remove(d.filePath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close implements KV.
func (d *DiskKV) Close() error { return nil }
