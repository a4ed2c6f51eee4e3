package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book maps books. Identity is assigned by the database on insert.
type Book struct {
	BookID    int64           `gorm:"column:book_id;primaryKey;autoIncrement"`
	Title     string          `gorm:"column:title;type:text;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(18,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;not null"`
}

func (Book) TableName() string { return "books" }

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ImportRun maps import_runs, one row per pipeline invocation.
type ImportRun struct {
	RunID           int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID         string     `gorm:"column:run_uuid;type:varchar(36);not null;uniqueIndex"`
	TriggeredBy     string     `gorm:"column:triggered_by;type:text;not null"`
	Status          string     `gorm:"column:status;type:varchar(16);not null;default:running"`
	Stage           string     `gorm:"column:stage;type:varchar(16);not null;default:idle"`
	ItemsFetched    int        `gorm:"column:items_fetched;not null;default:0"`
	SkippedExact    int        `gorm:"column:skipped_exact;not null;default:0"`
	SkippedFuzzy    int        `gorm:"column:skipped_fuzzy;not null;default:0"`
	ItemsAccepted   int        `gorm:"column:items_accepted;not null;default:0"`
	ItemsCommitted  int        `gorm:"column:items_committed;not null;default:0"`
	ChunksCommitted int        `gorm:"column:chunks_committed;not null;default:0"`
	ErrorMessage    *string    `gorm:"column:error_message;type:text"`
	StartedAt       time.Time  `gorm:"column:started_at;not null"`
	FinishedAt      *time.Time `gorm:"column:finished_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null"`
}

func (ImportRun) TableName() string { return "import_runs" }

func autoMigrateModels() []any {
	return []any{
		&Book{},
		&ImportRun{},
	}
}
