package history

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// FileStore keeps all snapshots in one JSON array. Paths ending in ".zst"
// are zstd-compressed. Appends rewrite the whole file through a temp file
// and rename, so readers never see a partial write.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore for path. The file is created on the
// first Append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) compressed() bool {
	return strings.HasSuffix(s.path, ".zst")
}

// Load reads every snapshot. A missing file yields no snapshots.
func (s *FileStore) Load(ctx context.Context) ([]model.HistorySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.Before(snaps[j].Timestamp)
	})
	return AddGPUIDs(snaps), nil
}

// Append adds snapshot to the end of the file.
func (s *FileStore) Append(ctx context.Context, snapshot model.HistorySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.read(ctx)
	if err != nil {
		return err
	}
	snaps = append(snaps, snapshot)
	return s.write(snaps)
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read(ctx context.Context) ([]model.HistorySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", s.path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.compressed() {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("history: zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var snaps []model.HistorySnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", s.path, err)
	}
	return snaps, nil
}

func (s *FileStore) write(snaps []model.HistorySnapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("history: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("history: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := s.encode(tmp, snaps); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("history: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}

func (s *FileStore) encode(w io.Writer, snaps []model.HistorySnapshot) error {
	if snaps == nil {
		snaps = []model.HistorySnapshot{}
	}
	if !s.compressed() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snaps); err != nil {
			return fmt.Errorf("history: JSON encode failed: %w", err)
		}
		return nil
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("history: failed to create zstd encoder: %w", err)
	}
	encodeErr := json.NewEncoder(zw).Encode(snaps)
	// Close zstd even on encode failure to release its goroutines.
	closeErr := zw.Close()
	if encodeErr != nil {
		return fmt.Errorf("history: JSON encode failed: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("history: zstd close failed: %w", closeErr)
	}
	return nil
}
