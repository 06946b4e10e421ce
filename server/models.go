package main

import "time"

// Record lifecycle. A record is created running, transitions exactly
// once to completed or failed at stream termination, and is never
// mutated afterwards. Records orphaned by a client disconnect are
// moved to aborted by the reconciler.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

// Analysis is one content-analysis run and its persisted outcome.
type Analysis struct {
	ID            uint   `gorm:"primaryKey"`
	PublicID      string `gorm:"uniqueIndex"`
	UserID        string `gorm:"index"`
	Locale        string
	ContentLength int
	Status        string `gorm:"index"`
	Score         int
	ResultRaw     string `gorm:"type:text"`
	ErrorMessage  string
	DurationMs    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
	CompletedAt   *time.Time
}

// BrandMonitor is a saved brand-visibility monitor configuration.
type BrandMonitor struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        string `gorm:"index"`
	Name          string
	Brand         string
	Domain        string
	Questions     []MonitorQuestion `gorm:"constraint:OnDelete:CASCADE"`
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MonitorQuestion is one query a monitor asks answer engines.
type MonitorQuestion struct {
	ID             uint `gorm:"primaryKey"`
	BrandMonitorID uint `gorm:"index"`
	Text           string
	Enabled        bool
}

// CheckRecord is one brand-monitor check run and its persisted outcome.
type CheckRecord struct {
	ID             uint   `gorm:"primaryKey"`
	PublicID       string `gorm:"uniqueIndex"`
	BrandMonitorID uint   `gorm:"index"`
	UserID         string `gorm:"index"`
	Status         string `gorm:"index"`
	QueryCount     int
	EngineCount    int
	SummaryRaw     string `gorm:"type:text"`
	DetailRaw      string `gorm:"type:text"`
	ErrorMessage   string
	DurationMs     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time `gorm:"index"`
	CompletedAt    *time.Time
}

// UsageRecord is the per-user, per-calendar-month analysis counter.
// The period key makes a new month start a fresh counter implicitly.
type UsageRecord struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex:idx_user_period"`
	Period    string `gorm:"uniqueIndex:idx_user_period"`
	Count     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription binds a user to a plan.
type Subscription struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex"`
	Plan      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// APIKey stores hashed bearer credentials for a user.
type APIKey struct {
	ID         uint `gorm:"primaryKey"`
	UserID     string
	Label      string
	TokenHash  string `gorm:"uniqueIndex"`
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

func allModels() []any {
	return []any{
		&Analysis{},
		&BrandMonitor{},
		&MonitorQuestion{},
		&CheckRecord{},
		&UsageRecord{},
		&Subscription{},
		&APIKey{},
	}
}
