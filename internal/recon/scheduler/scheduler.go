package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerkit/ledgerkit/internal/recon"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// Scheduler fires a reconciliation run once per day per source at the
// configured hour. The once-per-(date, source) guard is in-memory; two
// processes with the scheduler enabled would race the job upsert, so enable
// it on one instance only.
type Scheduler struct {
	engine  *recon.Engine
	sources []string
	hour    int
	log     *logger.Logger

	mu  sync.Mutex
	ran map[string]bool

	// pollInterval is shortened by tests.
	pollInterval time.Duration
}

func New(engine *recon.Engine, sources []string, hour int, log *logger.Logger) *Scheduler {
	return &Scheduler{
		engine:       engine,
		sources:      sources,
		hour:         hour,
		log:          log.WithField("component", "scheduler"),
		ran:          make(map[string]bool),
		pollInterval: time.Minute,
	}
}

// Run blocks until the context is cancelled, polling the clock and kicking
// off due reconciliations. Meant to be launched on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", "hour", s.hour, "sources", s.sources)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if now.Hour() != s.hour {
		return
	}
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, source := range s.sources {
		if !s.claim(date, source) {
			continue
		}
		log := s.log.WithField("source", source).WithField("date", date.Format("2006-01-02"))
		log.Info("scheduled reconciliation starting")

		// Scheduled sources need no per-run params; file and API sources
		// requiring them are triggered through the HTTP surface or CLI.
		if _, err := s.engine.Run(ctx, date, source, recon.SourceParams{}); err != nil {
			log.WithError(err).Error("scheduled reconciliation failed")
		}
	}

	s.prune(date)
}

// claim marks (date, source) as run, returning false if already claimed.
func (s *Scheduler) claim(date time.Time, source string) bool {
	key := date.Format("2006-01-02") + ":" + source
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ran[key] {
		return false
	}
	s.ran[key] = true
	return true
}

// prune drops claims from previous days so the map does not grow forever.
func (s *Scheduler) prune(today time.Time) {
	prefix := today.Format("2006-01-02") + ":"
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.ran {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			delete(s.ran, key)
		}
	}
}
