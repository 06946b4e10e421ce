package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Reconciler sweeps records stuck in the running state. A client that
// disconnects mid-stream leaves its record running; nothing else will
// ever touch it, so a periodic sweep marks anything running past the
// threshold as aborted.
type Reconciler struct {
	db         *gorm.DB
	logger     zerolog.Logger
	interval   time.Duration
	stuckAfter time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func NewReconciler(db *gorm.DB, logger zerolog.Logger, interval, stuckAfter time.Duration) *Reconciler {
	r := &Reconciler{
		db:         db,
		logger:     logger,
		interval:   interval,
		stuckAfter: stuckAfter,
		done:       make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

func (r *Reconciler) sweepLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.done:
			return
		}
	}
}

func (r *Reconciler) sweep() {
	cutoff := time.Now().UTC().Add(-r.stuckAfter)

	res := r.db.Model(&Analysis{}).
		Where("status = ? AND updated_at < ?", StatusRunning, cutoff).
		Update("status", StatusAborted)
	if res.Error != nil {
		r.logger.Error().Err(res.Error).Msg("reconciler: failed to sweep analyses")
	} else if res.RowsAffected > 0 {
		r.logger.Info().Int64("count", res.RowsAffected).Msg("reconciler: marked stuck analyses aborted")
	}

	res = r.db.Model(&CheckRecord{}).
		Where("status = ? AND updated_at < ?", StatusRunning, cutoff).
		Update("status", StatusAborted)
	if res.Error != nil {
		r.logger.Error().Err(res.Error).Msg("reconciler: failed to sweep checks")
	} else if res.RowsAffected > 0 {
		r.logger.Info().Int64("count", res.RowsAffected).Msg("reconciler: marked stuck checks aborted")
	}
}

func (r *Reconciler) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}
