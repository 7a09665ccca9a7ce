package donations

import (
	"context"
	"sync"
	"time"

	"github.com/greenchain/greenchain/internal/app/storage"
	"github.com/greenchain/greenchain/pkg/logger"
)

// Sweeper periodically persists the expired status for available donations
// whose expiry has passed. Reads already treat those rows as expired; the
// sweeper keeps the stored rows from drifting too far behind.
type Sweeper struct {
	store    storage.DonationStore
	interval time.Duration
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper constructs a sweeper running every interval. Non-positive
// intervals default to one minute.
func NewSweeper(store storage.DonationStore, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logger.NewDefault("expiry-sweeper")
	}
	return &Sweeper{store: store, interval: interval, log: log}
}

// Name implements system.Service.
func (s *Sweeper) Name() string { return "donation-expiry-sweeper" }

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)
	return nil
}

// Stop terminates the loop and waits for it to exit.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass. Exposed for tests and manual triggering.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.store.ExpireDonations(ctx, time.Now())
	if err != nil {
		s.log.WithError(err).Warn("expiry sweep failed")
		return
	}
	if n > 0 {
		s.log.WithField("count", n).Info("marked donations expired")
	}
}
