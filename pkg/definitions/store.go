// Package definitions locates, parses and caches resource definitions.
package definitions

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/resource-engine/pkg/apperrors"
	"github.com/ekaya-inc/resource-engine/pkg/models"
	"github.com/ekaya-inc/resource-engine/pkg/sql"
)

// ResourceSource resolves resource names to handles.
type ResourceSource interface {
	Get(name string) (*models.Resource, error)
}

// StoreConfig configures where a Store looks for definitions.
type StoreConfig struct {
	// BaseDir is searched first.
	BaseDir string
	// Embedded is searched when a definition is missing from BaseDir. Paths are
	// relative to its root, so it should be rooted at the resources directory.
	Embedded fs.FS
	// Parser defaults to XMLParser.
	Parser Parser
}

// Store is a concurrency-safe cache of resource handles keyed by name.
// Entries never expire: repeated lookups of a name return the same handle.
type Store struct {
	baseDir  string
	embedded fs.FS
	parser   Parser
	logger   *zap.Logger

	mu        sync.RWMutex
	resources map[string]*models.Resource

	sf singleflight.Group
}

var _ ResourceSource = (*Store)(nil)

// NewStore creates an empty definition store.
func NewStore(cfg StoreConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cfg.Parser
	if parser == nil {
		parser = XMLParser{}
	}
	return &Store{
		baseDir:   cfg.BaseDir,
		embedded:  cfg.Embedded,
		parser:    parser,
		logger:    logger.Named("definitions"),
		resources: make(map[string]*models.Resource),
	}
}

// Get returns the handle for name, loading and caching it on first use.
// Concurrent first requests for the same name share a single load.
func (s *Store) Get(name string) (*models.Resource, error) {
	s.mu.RLock()
	res, ok := s.resources[name]
	s.mu.RUnlock()
	if ok {
		return res, nil
	}

	v, err, _ := s.sf.Do(name, func() (any, error) {
		s.mu.RLock()
		cached, ok := s.resources[name]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}

		res, err := s.load(name)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.resources[name] = res
		s.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Resource), nil
}

// IsLoaded reports whether name has been loaded, i.e. requested successfully before.
func (s *Store) IsLoaded(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.resources[name]
	return ok
}

// Source opens the raw definition for name. The caller closes it.
func (s *Store) Source(name string) (io.ReadCloser, error) {
	rc, _, err := s.open(name)
	return rc, err
}

// ListNames returns the names of every definition under the base directory.
func (s *Store) ListNames() ([]string, error) {
	return ListNames(s.baseDir)
}

// Path returns the filesystem path expected to hold the definition for name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(NameToPath(name)))
}

func (s *Store) load(name string) (*models.Resource, error) {
	rc, source, err := s.open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	def, err := s.parser.Parse(rc)
	if err != nil {
		return nil, &apperrors.DefinitionParseError{Name: name, Path: source, Err: err}
	}
	meta, err := models.BuildMetaData(def)
	if err != nil {
		return nil, &apperrors.DefinitionParseError{Name: name, Path: source, Err: err}
	}

	if missing := sql.MissingReadColumns(meta, def.Query); len(missing) > 0 {
		s.logger.Warn("Read columns not selected by query",
			zap.String("resource", name),
			zap.Strings("columns", missing))
	}

	s.logger.Debug("Loaded resource definition",
		zap.String("resource", name),
		zap.String("source", source),
		zap.Int("tables", len(meta.Tables)),
		zap.Bool("hierarchical", meta.IsHierarchical()))

	return models.NewResource(name, def, meta), nil
}

// open finds the definition on disk, falling back to the embedded filesystem.
// It returns the stream and a description of where it came from.
func (s *Store) open(name string) (io.ReadCloser, string, error) {
	filePath := s.Path(name)
	f, err := os.Open(filePath)
	if err == nil {
		return f, filePath, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, filePath, fmt.Errorf("failed to open definition %s: %w", filePath, err)
	}

	if s.embedded != nil {
		rel := NameToPath(name)
		ef, embErr := s.embedded.Open(rel)
		if embErr == nil {
			return ef, "embedded:" + rel, nil
		}
		if !errors.Is(embErr, fs.ErrNotExist) {
			return nil, rel, fmt.Errorf("failed to open embedded definition %s: %w", rel, embErr)
		}
	}

	return nil, filePath, &apperrors.DefinitionNotFoundError{Name: name, Path: filePath}
}
