package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/deepzdhq/deepzd/pkg/plans"
)

// QuotaDecision reports a user's standing against their monthly
// analysis ceiling. Limit -1 means unlimited, and Remaining is then
// also -1 rather than a computed value.
type QuotaDecision struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Plan      string `json:"plan"`
}

// QuotaGate checks and accounts per-user monthly usage. With
// enforcement off every check is allowed but accounting still runs.
type QuotaGate struct {
	db      *gorm.DB
	enforce bool
	now     func() time.Time
}

func NewQuotaGate(db *gorm.DB, enforce bool) *QuotaGate {
	return &QuotaGate{db: db, enforce: enforce, now: time.Now}
}

// period returns the calendar-month usage bucket key, e.g. "2026-08".
func (g *QuotaGate) period() string {
	return g.now().UTC().Format("2006-01")
}

// Check resolves the user's plan and current-period usage. The two
// lookups have no ordering dependency and run concurrently.
func (g *QuotaGate) Check(ctx context.Context, userID string) (QuotaDecision, error) {
	var (
		sub   Subscription
		usage UsageRecord
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := g.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		err := g.db.WithContext(ctx).
			Where("user_id = ? AND period = ?", userID, g.period()).
			First(&usage).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	})
	if err := group.Wait(); err != nil {
		return QuotaDecision{}, err
	}

	plan := plans.Lookup(sub.Plan)
	if plan.AnalysisLimit == plans.Unlimited {
		return QuotaDecision{Allowed: true, Remaining: plans.Unlimited, Limit: plans.Unlimited, Plan: plan.Name}, nil
	}

	remaining := plan.AnalysisLimit - usage.Count
	if remaining < 0 {
		remaining = 0
	}
	return QuotaDecision{
		Allowed:   remaining > 0 || !g.enforce,
		Remaining: remaining,
		Limit:     plan.AnalysisLimit,
		Plan:      plan.Name,
	}, nil
}

// Increment bumps the user's counter for the current period by one,
// atomically. Concurrent increments for the same (user, period) must
// not lose updates, so the add happens in the database, not in Go.
func (g *QuotaGate) Increment(ctx context.Context, userID string) error {
	now := g.now().UTC()
	record := UsageRecord{
		UserID:    userID,
		Period:    g.period(),
		Count:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("count + 1"),
			"updated_at": now,
		}),
	}).Create(&record).Error
}
