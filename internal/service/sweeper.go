package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bnema/scribe/internal/infrastructure/logger"
)

// Sweeper periodically removes workspace directories left behind by runs that
// never released them, such as after a crash.
type Sweeper struct {
	workspaces *Workspaces
	maxAge     time.Duration
	cron       *cron.Cron
	now        func() time.Time
}

func NewSweeper(workspaces *Workspaces, schedule string, maxAge time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		workspaces: workspaces,
		maxAge:     maxAge,
		cron:       cron.New(),
		now:        time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep() }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	logger.Info.Printf("workspace sweeper started (max age %s)", s.maxAge)
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep removes stale, inactive workspace directories and returns how many
// were removed.
func (s *Sweeper) Sweep() int {
	base := s.workspaces.Base()
	entries, err := os.ReadDir(base)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error.Printf("sweep %s: %v", base, err)
		}
		return 0
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		path := filepath.Join(base, e.Name())
		if !e.IsDir() || s.workspaces.IsActive(path) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			logger.Warn.Printf("sweep: remove %s: %v", logger.SanitizeForLog(e.Name()), err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info.Printf("sweep: removed %d stale workspace(s)", removed)
	}
	return removed
}
