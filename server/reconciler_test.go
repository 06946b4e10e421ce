package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestReconcilerMarksStuckRecordsAborted(t *testing.T) {
	dsn := fmt.Sprintf("file:reconciler-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Analysis{}, &CheckRecord{}))

	stale := time.Now().UTC().Add(-time.Hour)

	seed := func(model any, updatedAt time.Time) {
		t.Helper()
		require.NoError(t, db.Create(model).Error)
		// UpdateColumn bypasses the auto-touch on updated_at.
		require.NoError(t, db.Model(model).UpdateColumn("updated_at", updatedAt).Error)
	}

	seed(&Analysis{PublicID: "stuck", UserID: "u1", Status: StatusRunning}, stale)
	seed(&Analysis{PublicID: "fresh", UserID: "u1", Status: StatusRunning}, time.Now().UTC())
	seed(&Analysis{PublicID: "done", UserID: "u1", Status: StatusCompleted}, stale)
	seed(&CheckRecord{PublicID: "stuck-check", UserID: "u1", Status: StatusRunning}, stale)

	r := &Reconciler{
		db:         db,
		logger:     zerolog.Nop(),
		interval:   time.Hour,
		stuckAfter: 30 * time.Minute,
		done:       make(chan struct{}),
	}
	r.sweep()

	status := func(publicID string) string {
		var a Analysis
		require.NoError(t, db.Where("public_id = ?", publicID).First(&a).Error)
		return a.Status
	}
	require.Equal(t, StatusAborted, status("stuck"))
	require.Equal(t, StatusRunning, status("fresh"), "recent running records are left alone")
	require.Equal(t, StatusCompleted, status("done"), "terminal records are never touched")

	var check CheckRecord
	require.NoError(t, db.Where("public_id = ?", "stuck-check").First(&check).Error)
	require.Equal(t, StatusAborted, check.Status)
}

func TestReconcilerSweepLoopRuns(t *testing.T) {
	dsn := fmt.Sprintf("file:reconciler-loop-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Analysis{}, &CheckRecord{}))

	record := Analysis{PublicID: "stuck", UserID: "u1", Status: StatusRunning}
	require.NoError(t, db.Create(&record).Error)
	require.NoError(t, db.Model(&record).UpdateColumn("updated_at", time.Now().UTC().Add(-time.Hour)).Error)

	r := NewReconciler(db, zerolog.Nop(), 10*time.Millisecond, 30*time.Minute)
	defer r.Close()

	require.Eventually(t, func() bool {
		var a Analysis
		if err := db.Where("public_id = ?", "stuck").First(&a).Error; err != nil {
			return false
		}
		return a.Status == StatusAborted
	}, 2*time.Second, 10*time.Millisecond)
}
