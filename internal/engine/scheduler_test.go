package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthd/hearth/internal/config"
	"github.com/hearthd/hearth/internal/store"
)

func TestNewSchedulerDefaultSpecs(t *testing.T) {
	s, err := NewScheduler(newTestEngine(t))
	require.NoError(t, err, "default cron specs must parse")

	s.Start(context.Background())
	s.Stop()
}

func TestNewSchedulerBadSpec(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Maintenance.NonceSweep = "not a cron spec"
	_, err = NewScheduler(New(db, nil, cfg))
	assert.Error(t, err)
}

func TestDispatchSingleFlight(t *testing.T) {
	s, err := NewScheduler(newTestEngine(t))
	require.NoError(t, err)
	s.Start(context.Background())
	defer s.Stop()

	var mu sync.Mutex
	release := make(chan struct{})
	running := make(chan struct{})
	runs := 0

	blocking := func(ctx context.Context) error {
		runs++
		close(running)
		<-release
		return nil
	}

	go s.dispatch("blocking", &mu, blocking)
	<-running

	// A second tick while the first holds the lock is dropped.
	s.dispatch("blocking", &mu, blocking)
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return true
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, runs)
}

func TestDispatchSkipsAfterStop(t *testing.T) {
	s, err := NewScheduler(newTestEngine(t))
	require.NoError(t, err)
	s.Start(context.Background())
	s.Stop()

	var mu sync.Mutex
	ran := false
	s.dispatch("late", &mu, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.False(t, ran, "cancelled scheduler must not run jobs")
}
