package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/features"
)

// Artifact file names inside a version directory.
const (
	MaxModelFile = "max_temp_model.json"
	MinModelFile = "min_temp_model.json"
	ScalerFile   = "scaler.json"
	MetadataFile = "metadata.json"

	currentFile = "CURRENT"
	versionsDir = "versions"
)

// Store persists artifacts.
type Store interface {
	// Save persists a and makes it current.
	Save(ctx context.Context, a *Artifact) error

	// Load returns the current artifact or ErrModelNotTrained.
	Load(ctx context.Context) (*Artifact, error)

	// Current returns the current artifact's metadata or ErrModelNotTrained.
	Current(ctx context.Context) (Metadata, error)
}

// FileStoreConfig holds configuration for the file store.
type FileStoreConfig struct {
	// Dir is the root directory. Default: "models"
	Dir string

	// KeepVersions is how many version directories survive pruning.
	// Default: 3
	KeepVersions int

	Logger zerolog.Logger
}

// FileStore writes each artifact to <Dir>/versions/<version>/ and then
// points <Dir>/CURRENT at it with an atomic rename. A crash mid-save leaves
// the previous version current.
type FileStore struct {
	dir    string
	keep   int
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFileStore creates a file store.
func NewFileStore(cfg FileStoreConfig) *FileStore {
	if cfg.Dir == "" {
		cfg.Dir = "models"
	}
	if cfg.KeepVersions < 1 {
		cfg.KeepVersions = 3
	}
	return &FileStore{dir: cfg.Dir, keep: cfg.KeepVersions, logger: cfg.Logger}
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes the artifact files, fsyncs them and swaps CURRENT.
func (s *FileStore) Save(_ context.Context, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vdir := filepath.Join(s.dir, versionsDir, a.Version)
	if err := os.MkdirAll(vdir, 0o755); err != nil {
		return fmt.Errorf("create version dir: %w", err)
	}

	files := []struct {
		name string
		v    any
	}{
		{MaxModelFile, a.MaxModel},
		{MinModelFile, a.MinModel},
		{ScalerFile, a.Scaler},
		{MetadataFile, a.Metadata()},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(vdir, f.name), f.v); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := syncDir(vdir); err != nil {
		return err
	}

	if err := writeAtomic(filepath.Join(s.dir, currentFile), []byte(a.Version+"\n")); err != nil {
		return fmt.Errorf("update current version: %w", err)
	}

	s.logger.Info().Str("version", a.Version).Str("dir", vdir).Msg("saved model artifacts")
	s.prune(a.Version)
	return nil
}

// Load reads the artifact CURRENT points at.
func (s *FileStore) Load(_ context.Context) (*Artifact, error) {
	version, err := s.currentVersion()
	if err != nil {
		return nil, err
	}
	vdir := filepath.Join(s.dir, versionsDir, version)

	var (
		maxModel, minModel Forest
		scaler             features.StandardScaler
		meta               Metadata
	)
	for _, f := range []struct {
		name string
		v    any
	}{
		{MaxModelFile, &maxModel},
		{MinModelFile, &minModel},
		{ScalerFile, &scaler},
		{MetadataFile, &meta},
	} {
		if err := readJSON(filepath.Join(vdir, f.name), f.v); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s missing from version %s", ErrModelNotTrained, f.name, version)
			}
			return nil, fmt.Errorf("read %s: %w", f.name, err)
		}
	}

	a := &Artifact{
		Version:      version,
		TrainedAt:    meta.TrainedAt,
		MaxModel:     &maxModel,
		MinModel:     &minModel,
		Scaler:       &scaler,
		Metrics:      meta.Metrics,
		FeatureNames: meta.FeatureNames,
		Samples:      meta.Samples,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Current reads only the current version's metadata.
func (s *FileStore) Current(_ context.Context) (Metadata, error) {
	version, err := s.currentVersion()
	if err != nil {
		return Metadata{}, err
	}

	var meta Metadata
	if err := readJSON(filepath.Join(s.dir, versionsDir, version, MetadataFile), &meta); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, ErrModelNotTrained
		}
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	return meta, nil
}

// Versions lists stored versions, oldest first.
func (s *FileStore) Versions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, versionsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func (s *FileStore) currentVersion() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrModelNotTrained
		}
		return "", fmt.Errorf("read current version: %w", err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" || strings.ContainsAny(version, `/\`) {
		return "", ErrModelNotTrained
	}
	return version, nil
}

// prune removes the oldest versions beyond the retention count. The current
// version is never removed.
func (s *FileStore) prune(current string) {
	versions, err := s.Versions()
	if err != nil {
		s.logger.Warn().Err(err).Msg("listing model versions")
		return
	}
	for len(versions) > s.keep {
		v := versions[0]
		versions = versions[1:]
		if v == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, versionsDir, v)); err != nil {
			s.logger.Warn().Err(err).Str("version", v).Msg("pruning model version")
			continue
		}
		s.logger.Debug().Str("version", v).Msg("pruned model version")
	}
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeAtomic writes data to a temp file in the same directory, fsyncs it
// and renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

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
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Directory fsync is unsupported on some platforms; the rename is still
	// atomic there.
	_ = d.Sync() //nolint:errcheck // best effort
	return nil
}

// MemoryStore keeps artifacts in memory. Used in tests and for dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	current *Artifact
	saves   int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save makes a current.
func (s *MemoryStore) Save(_ context.Context, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = a
	s.saves++
	return nil
}

// Load returns the current artifact.
func (s *MemoryStore) Load(_ context.Context) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrModelNotTrained
	}
	return s.current, nil
}

// Current returns the current artifact's metadata.
func (s *MemoryStore) Current(_ context.Context) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Metadata{}, ErrModelNotTrained
	}
	return s.current.Metadata(), nil
}

// Saves returns how many artifacts were saved.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
