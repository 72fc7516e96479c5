package history

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

var (
	// ErrRunNotFound is returned for a run that has no history file, directory or live collector
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidRun is returned for run names that are not plain file names
	ErrInvalidRun = errors.New("invalid run name")
)

var runName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// CacheObserver is notified of history cache lookups
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

// Store resolves run names to histories. Runs are read from a directory
// (<dir>/<run>.json Keras files or <dir>/<run>/ TensorBoard logs) and cached;
// runs reported live through Record take precedence over files.
type Store struct {
	dir      string
	cache    *freelru.SyncedLRU[string, History]
	logger   log.Logger
	observer CacheObserver

	mu   sync.Mutex
	live map[string]*Collector
}

// NewStore creates a store over dir that caches up to cacheSize parsed runs
func NewStore(dir string, cacheSize uint32, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	cache, err := freelru.NewSynced[string, History](cacheSize, hashRun)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create history cache")
	}
	return &Store{
		dir:    dir,
		cache:  cache,
		logger: log.With(logger, "component", "history_store"),
		live:   make(map[string]*Collector),
	}, nil
}

func hashRun(run string) uint32 {
	return uint32(xxhash.Sum64String(run))
}

// SetObserver registers an observer for cache hits and misses
func (s *Store) SetObserver(o CacheObserver) {
	s.observer = o
}

// ValidateRun checks that run is usable as a file name inside the store directory
func ValidateRun(run string) error {
	if !runName.MatchString(run) || run == "." || run == ".." {
		return errors.Wrapf(ErrInvalidRun, "%q", run)
	}
	return nil
}

// Get returns the history of run
func (s *Store) Get(run string) (History, error) {
	if err := ValidateRun(run); err != nil {
		return History{}, err
	}

	s.mu.Lock()
	c, ok := s.live[run]
	s.mu.Unlock()
	if ok {
		return c.History(), nil
	}

	if h, ok := s.cache.Get(run); ok {
		s.hit()
		return h, nil
	}
	s.miss()

	h, err := s.load(run)
	if err != nil {
		return History{}, err
	}
	h.Run = run
	s.cache.Add(run, h)
	level.Debug(s.logger).Log("msg", "loaded run", "run", run, "epochs", h.Len())
	return h, nil
}

func (s *Store) load(run string) (History, error) {
	if s.dir == "" {
		return History{}, errors.Wrapf(ErrRunNotFound, "%q", run)
	}

	file := filepath.Join(s.dir, run+".json")
	if _, err := os.Stat(file); err == nil {
		return LoadKerasJSONFile(file)
	}

	dir := filepath.Join(s.dir, run)
	if isDir(dir) {
		return LoadTensorBoardDir(dir)
	}
	return History{}, errors.Wrapf(ErrRunNotFound, "%q", run)
}

// Record appends live epoch metrics for run, creating its collector on first use
func (s *Store) Record(run string, m EpochMetrics) error {
	if err := ValidateRun(run); err != nil {
		return err
	}

	s.mu.Lock()
	c, ok := s.live[run]
	if !ok {
		c = NewCollector(run)
		c.Enable()
		s.live[run] = c
	}
	s.mu.Unlock()

	return c.Record(m)
}

// List returns the names of all known runs in sorted order
func (s *Store) List() ([]string, error) {
	seen := make(map[string]struct{})

	if s.dir != "" {
		entries, err := os.ReadDir(s.dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to list runs in %s", s.dir)
		}
		for _, e := range entries {
			name := e.Name()
			switch {
			case e.IsDir():
			case strings.HasSuffix(name, ".json"):
				name = strings.TrimSuffix(name, ".json")
			default:
				continue
			}
			if ValidateRun(name) == nil {
				seen[name] = struct{}{}
			}
		}
	}

	s.mu.Lock()
	for name := range s.live {
		seen[name] = struct{}{}
	}
	s.mu.Unlock()

	runs := make([]string, 0, len(seen))
	for name := range seen {
		runs = append(runs, name)
	}
	sort.Strings(runs)
	return runs, nil
}

// Invalidate drops the cached history of run
func (s *Store) Invalidate(run string) {
	if s.cache.Remove(run) {
		level.Debug(s.logger).Log("msg", "invalidated run", "run", run)
	}
}

// Watch evicts cached runs whose files change until ctx is done.
// fsnotify is not recursive, so the store directory, every run directory and
// its split subdirectories are watched individually. A missing store
// directory is not watched; live runs are still served.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	if !isDir(s.dir) {
		level.Warn(s.logger).Log("msg", "runs directory does not exist, not watching", "dir", s.dir)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer watcher.Close()

	if err := s.addWatches(watcher, s.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if run := s.runOf(ev.Name); run != "" {
				s.Invalidate(run)
			}
			if ev.Has(fsnotify.Create) && isDir(ev.Name) {
				if err := s.addWatches(watcher, ev.Name); err != nil {
					level.Warn(s.logger).Log("msg", "failed to watch new directory", "path", ev.Name, "err", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			level.Warn(s.logger).Log("msg", "watch error", "err", err)
		}
	}
}

func (s *Store) addWatches(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		return nil
	})
}

// runOf maps a changed path to the run it belongs to
func (s *Store) runOf(path string) string {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	return strings.TrimSuffix(first, ".json")
}

func (s *Store) hit() {
	if s.observer != nil {
		s.observer.CacheHit()
	}
}

func (s *Store) miss() {
	if s.observer != nil {
		s.observer.CacheMiss()
	}
}
