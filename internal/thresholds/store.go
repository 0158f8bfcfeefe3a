package thresholds

import (
	"sync"
	"sync/atomic"

	"futures-advisor/internal/logging"
)

// Store publishes the active Thresholds behind an atomic pointer. Readers
// take a snapshot per tick and hold it for the full evaluation; a reload
// swaps the pointer without touching in-flight snapshots.
type Store struct {
	path    string
	current atomic.Pointer[Thresholds]
	logger  *logging.Logger

	reloadMu sync.Mutex
}

// NewStore compiles the document at path and publishes it. An empty path
// publishes the built-in defaults. A compile failure at startup is fatal
// to the caller: no store is returned.
func NewStore(path string) (*Store, error) {
	var (
		t   *Thresholds
		err error
	)
	if path == "" {
		t, err = CompileDefault()
	} else {
		t, err = Compile(path)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:   path,
		logger: logging.WithComponent("thresholds"),
	}
	s.current.Store(t)
	s.logger.Info("thresholds compiled", "version", t.Version(), "path", path)
	return s, nil
}

// Current returns the active snapshot. The result is immutable and safe to
// hold across a reload.
func (s *Store) Current() *Thresholds {
	return s.current.Load()
}

// Reload recompiles the source document and publishes the result. On
// failure the previous snapshot stays active and the error is returned.
func (s *Store) Reload() (*Thresholds, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	var (
		t   *Thresholds
		err error
	)
	if s.path == "" {
		t, err = CompileDefault()
	} else {
		t, err = Compile(s.path)
	}
	if err != nil {
		s.logger.Error("threshold reload failed, keeping active version",
			"error", err,
			"active_version", s.Current().Version())
		return nil, err
	}

	s.current.Store(t)
	s.logger.Info("thresholds reloaded", "version", t.Version())
	return t, nil
}
