package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

// Options for opening a FileStore. Relative CSVFile and BackupDir are
// resolved against DataDir.
type Options struct {
	DataDir   string
	CSVFile   string
	BackupDir string
	Sync      bool
}

// FileStore is the append-only response store: one CSV file holding every
// response plus one JSON backup per response.
//
// All writes go through Append, which holds the write lock for the whole
// append. Readers hold the read lock only long enough to observe the file
// size; the file is append-only, so bytes below that size never change.
type FileStore struct {
	mu        sync.RWMutex
	schema    *domain.Schema
	columns   []string
	csvPath   string
	backupDir string
	file      *os.File
	sync      bool
	log       *zap.Logger
}

// Open creates the data directory and CSV header if needed. An existing CSV
// whose header differs from the schema fails with ErrSchemaMismatch.
func Open(schema *domain.Schema, opts Options, log *zap.Logger) (*FileStore, error) {
	if opts.DataDir == "" {
		opts.DataDir = "."
	}
	if opts.CSVFile == "" {
		opts.CSVFile = "survey_responses.csv"
	}
	if opts.BackupDir == "" {
		opts.BackupDir = "survey_responses"
	}
	csvPath := resolve(opts.DataDir, opts.CSVFile)
	backupDir := resolve(opts.DataDir, opts.BackupDir)

	if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	f, err := os.OpenFile(csvPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv store: %w", err)
	}

	s := &FileStore{
		schema:    schema,
		columns:   Columns(schema),
		csvPath:   csvPath,
		backupDir: backupDir,
		file:      f,
		sync:      opts.Sync,
		log:       log,
	}
	if err := s.initHeader(); err != nil {
		f.Close()
		return nil, err
	}

	log.Info("response store opened",
		zap.String("csv", csvPath),
		zap.String("backups", backupDir),
		zap.Int("columns", len(s.columns)))
	return s, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (s *FileStore) initHeader() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv store: %w", err)
	}
	if info.Size() == 0 {
		header, err := encodeCSV(s.columns)
		if err != nil {
			return err
		}
		if _, err := s.file.Write(header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		return s.file.Sync()
	}

	r := csv.NewReader(io.NewSectionReader(s.file, 0, info.Size()))
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	if !slices.Equal(header, s.columns) {
		return fmt.Errorf("%w: %s has %d columns, schema %q needs %d",
			domain.ErrSchemaMismatch, s.csvPath, len(header), s.schema.Name(), len(s.columns))
	}
	return nil
}

// Append durably records one response. On any failure the CSV is truncated
// back to its previous size and the JSON backup is removed.
func (s *FileStore) Append(ctx context.Context, r *domain.Response) error {
	if err := ctx.Err(); err != nil {
		return &domain.PersistenceError{Op: "append", Err: err}
	}
	if err := validID(r.ID); err != nil {
		return &domain.PersistenceError{Op: "append", Err: err}
	}
	row, err := encodeCSV(encodeRecord(s.schema, r))
	if err != nil {
		return &domain.PersistenceError{Op: "encode row", Err: err}
	}
	backup, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Op: "encode backup", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return &domain.PersistenceError{Op: "append", Err: domain.ErrStoreClosed}
	}

	backupPath := s.backupPath(r.ID)
	if err := writeFileAtomic(backupPath, backup); err != nil {
		return &domain.PersistenceError{Op: "write backup", Err: err}
	}

	info, err := s.file.Stat()
	if err != nil {
		os.Remove(backupPath)
		return &domain.PersistenceError{Op: "stat csv", Err: err}
	}
	offset := info.Size()

	if _, err := s.file.Write(row); err != nil {
		s.rollback(offset, backupPath)
		return &domain.PersistenceError{Op: "write csv", Err: err}
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			s.rollback(offset, backupPath)
			return &domain.PersistenceError{Op: "sync csv", Err: err}
		}
	}
	return nil
}

func (s *FileStore) rollback(offset int64, backupPath string) {
	if err := s.file.Truncate(offset); err != nil {
		s.log.Error("csv rollback failed", zap.Int64("offset", offset), zap.Error(err))
	}
	if err := os.Remove(backupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Error("backup rollback failed", zap.String("path", backupPath), zap.Error(err))
	}
}

// snapshot returns a reader over the complete rows present right now.
func (s *FileStore) snapshot() (*os.File, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.file == nil {
		return nil, 0, domain.ErrStoreClosed
	}
	info, err := s.file.Stat()
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(s.csvPath)
	if err != nil {
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// ReadAll returns every persisted response in append order.
func (s *FileStore) ReadAll(ctx context.Context) ([]*domain.Response, error) {
	f, size, err := s.snapshot()
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	defer f.Close()

	r := csv.NewReader(io.NewSectionReader(f, 0, size))
	r.FieldsPerRecord = len(s.columns)
	r.ReuseRecord = true

	if _, err := r.Read(); err != nil {
		return nil, &domain.PersistenceError{Op: "read header", Err: err}
	}

	var out []*domain.Response
	for {
		if err := ctx.Err(); err != nil {
			return nil, &domain.PersistenceError{Op: "read", Err: err}
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.PersistenceError{Op: "read row", Err: err}
		}
		resp, err := decodeRecord(s.schema, rec)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "decode row", Err: err}
		}
		out = append(out, resp)
	}
	return out, nil
}

// WriteCSV copies the CSV file verbatim.
func (s *FileStore) WriteCSV(ctx context.Context, w io.Writer) (int64, error) {
	f, size, err := s.snapshot()
	if err != nil {
		return 0, &domain.PersistenceError{Op: "read", Err: err}
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return io.Copy(w, io.NewSectionReader(f, 0, size))
}

// Backups lists the ids that have a JSON backup, sorted.
func (s *FileStore) Backups(ctx context.Context) ([]domain.ResponseID, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, err
	}
	var ids []domain.ResponseID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, domain.ResponseID(strings.TrimSuffix(name, ".json")))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, ctx.Err()
}

// LoadBackup reads one JSON backup.
func (s *FileStore) LoadBackup(id domain.ResponseID) (*domain.Response, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.backupPath(id))
	if err != nil {
		return nil, err
	}
	var r domain.Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode backup %s: %w", id, err)
	}
	return &r, nil
}

// Check implements middleware.HealthChecker.
func (s *FileStore) Check(ctx context.Context) error {
	if _, err := os.Stat(s.csvPath); err != nil {
		return err
	}
	if _, err := os.Stat(s.backupDir); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *FileStore) CSVPath() string { return s.csvPath }

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *FileStore) backupPath(id domain.ResponseID) string {
	return filepath.Join(s.backupDir, string(id)+".json")
}

func validID(id domain.ResponseID) error {
	if id == "" {
		return errors.New("empty submission id")
	}
	if strings.ContainsAny(string(id), `/\`) || strings.HasPrefix(string(id), ".") {
		return fmt.Errorf("invalid submission id %q", id)
	}
	return nil
}

func encodeCSV(record []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(record); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
