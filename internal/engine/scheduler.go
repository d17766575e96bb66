package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs the store's maintenance jobs on cron schedules. Each job
// is single-flight: a tick that lands while the previous run is still
// going is skipped, not queued.
type Scheduler struct {
	engine *Engine
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	locks struct {
		nonces      sync.Mutex
		topics      sync.Mutex
		events      sync.Mutex
		facts       sync.Mutex
		consolidate sync.Mutex
	}
}

// NewScheduler wires the maintenance jobs onto the configured cron specs.
func NewScheduler(e *Engine) (*Scheduler, error) {
	s := &Scheduler{engine: e, cron: cron.New()}

	jobs := []struct {
		name string
		spec string
		mu   *sync.Mutex
		run  func(ctx context.Context) error
	}{
		{"nonce_sweep", e.Cfg.Maintenance.NonceSweep, &s.locks.nonces, s.sweepNonces},
		{"topic_sweep", e.Cfg.Maintenance.TopicSweep, &s.locks.topics, s.sweepTopics},
		{"event_prune", e.Cfg.Maintenance.EventPrune, &s.locks.events, s.pruneEvents},
		{"fact_decay", e.Cfg.Maintenance.FactDecay, &s.locks.facts, s.decayFacts},
		{"consolidate", e.Cfg.Maintenance.Consolidate, &s.locks.consolidate, s.consolidateAndPrune},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.dispatch(j.name, j.mu, j.run) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
	}
	return s, nil
}

// Start begins running the schedules. Jobs observe ctx and stop early when
// it is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	log.Info().Msg("maintenance scheduler started")
}

// Stop cancels running jobs and waits for the cron loop to drain.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	log.Info().Msg("maintenance scheduler stopped")
}

// dispatch runs a job under its single-flight lock. A failed job logs and
// returns; it never takes the scheduler down.
func (s *Scheduler) dispatch(name string, mu *sync.Mutex, run func(ctx context.Context) error) {
	if !mu.TryLock() {
		log.Debug().Str("job", name).Msg("previous run still active, skipping")
		return
	}
	defer mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}

	started := time.Now()
	if err := run(s.ctx); err != nil {
		log.Error().Err(err).Str("job", name).Msg("maintenance job failed")
		return
	}
	log.Debug().Str("job", name).Dur("took", time.Since(started)).Msg("maintenance job done")
}

func (s *Scheduler) sweepNonces(ctx context.Context) error {
	n, err := s.engine.DB.SweepNonces(time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("removed", n).Msg("swept replay nonces")
	}
	return nil
}

func (s *Scheduler) sweepTopics(ctx context.Context) error {
	n, err := s.engine.DB.SweepTopics(time.Now().UnixMilli(), s.engine.topicPolicy())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("touched", n).Msg("swept pending topics")
	}
	return nil
}

func (s *Scheduler) pruneEvents(ctx context.Context) error {
	n, err := s.engine.DB.PruneEvents(time.Now().UnixMilli(), s.engine.eventRetention())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("removed", n).Msg("pruned events")
	}
	return nil
}

func (s *Scheduler) decayFacts(ctx context.Context) error {
	decayed, deactivated, err := s.engine.DB.DecayFacts(time.Now().UnixMilli(), s.engine.decayPolicy())
	if err != nil {
		return err
	}
	if decayed > 0 || deactivated > 0 {
		log.Info().Int("decayed", decayed).Int("deactivated", deactivated).Msg("decayed facts")
	}
	return nil
}

// consolidateAndPrune orders consolidation strictly before ledger pruning
// so a summary always covers the messages about to be dropped.
func (s *Scheduler) consolidateAndPrune(ctx context.Context) error {
	if _, err := s.engine.Consolidate(ctx, "daily", time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("consolidate before prune: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	n, err := s.engine.DB.PruneMessages(s.engine.Cfg.Ledger.KeepMessages)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("removed", n).Msg("pruned messages")
	}
	return nil
}
