package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IshaanNene/homestalk/internal/types"
)

const timestampLayout = "20060102_150405"

// FileStore writes artifacts as timestamped files in one directory.
type FileStore struct {
	dir    string
	now    func() time.Time
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewFileStore creates the output directory if needed.
func NewFileStore(outputDir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, &types.StorageError{Backend: "file", Err: fmt.Errorf("create output dir: %w", err)}
	}
	return &FileStore{
		dir:    outputDir,
		now:    time.Now,
		logger: logger.With("component", "file_storage"),
	}, nil
}

// SetClock overrides the timestamp source.
func (s *FileStore) SetClock(now func() time.Time) { s.now = now }

func (s *FileStore) Name() string { return "file" }

// Path builds <dir>/<prefix>_<safe name>_<timestamp>.<ext>.
func (s *FileStore) Path(prefix, name, ext string) string {
	file := fmt.Sprintf("%s_%s_%s.%s", prefix, types.SafeName(name), s.now().Format(timestampLayout), ext)
	return filepath.Join(s.dir, file)
}

// SaveTable writes t as CSV with columns in table order.
func (s *FileStore) SaveTable(stage, name string, t *types.Table) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(stage, name, "csv")
	f, err := os.Create(path)
	if err != nil {
		return "", s.fail("create output file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return "", s.fail("write CSV header", err)
	}
	row := make([]string, len(t.Columns))
	for _, rec := range t.Rows {
		for i, col := range t.Columns {
			row[i] = rec.Get(col).Text()
		}
		if err := w.Write(row); err != nil {
			return "", s.fail("write CSV row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", s.fail("flush CSV", err)
	}

	s.count++
	s.logger.Info("CSV written", "path", path, "rows", t.Len())
	return path, nil
}

// SaveDetails writes details as an indented JSON array.
func (s *FileStore) SaveDetails(name string, details []types.ListingDetail) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(StageDetails, name, "json")
	f, err := os.Create(path)
	if err != nil {
		return "", s.fail("create output file", err)
	}
	defer f.Close()

	if details == nil {
		details = []types.ListingDetail{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(details); err != nil {
		return "", s.fail("encode JSON", err)
	}

	s.count++
	s.logger.Info("JSON written", "path", path, "details", len(details))
	return path, nil
}

// SaveRaw writes an export byte for byte.
func (s *FileStore) SaveRaw(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path("redfin", name, "csv")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", s.fail("write raw export", err)
	}
	s.count++
	s.logger.Info("raw export written", "path", path, "bytes", len(data))
	return path, nil
}

func (s *FileStore) Close() error {
	s.logger.Debug("file storage closing", "artifacts", s.count)
	return nil
}

func (s *FileStore) fail(op string, err error) error {
	return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("%s: %w", op, err)}
}
