package output

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/YuminosukeSato/tpcfit/fit"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

const defaultDBBatchSize = 200

// RunRecord is one fit run.
type RunRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Fingerprint string `gorm:"type:varchar(32)"`
	StartedAt   time.Time
	FinishedAt  time.Time
	Workers     int
	Groups      int
}

// TableName returns the table name for GORM.
func (RunRecord) TableName() string { return "runs" }

// ResultRecord is one (group, model) row of a run.
type ResultRecord struct {
	ID          uint    `gorm:"primaryKey"`
	RunID       string  `gorm:"type:varchar(64);not null;index:idx_result_run_group"`
	GroupID     string  `gorm:"not null;index:idx_result_run_group"`
	Model       string  `gorm:"type:varchar(8);not null;index"`
	AIC         float64 `gorm:"column:aic;not null"`
	RMSE        float64 `gorm:"column:rmse"`
	Converged   bool    `gorm:"not null"`
	Evaluations int
	Used        int
	Free        int

	Habitat               string
	ConKingdom            string
	StandardisedTraitName string
	Observations          string

	Parameters []ParameterRecord `gorm:"foreignKey:ResultID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (ResultRecord) TableName() string { return "results" }

// ParameterRecord is one estimate of a result, Position following the
// kind's parameter order.
type ParameterRecord struct {
	ID       uint   `gorm:"primaryKey"`
	ResultID uint   `gorm:"not null;index"`
	Position int    `gorm:"not null"`
	Name     string `gorm:"type:varchar(16);not null"`
	Value    float64
}

// TableName returns the table name for GORM.
func (ParameterRecord) TableName() string { return "parameters" }

// FailureRecord is a fit replaced by the sentinel.
type FailureRecord struct {
	ID      uint   `gorm:"primaryKey"`
	RunID   string `gorm:"type:varchar(64);not null;index"`
	GroupID string `gorm:"not null"`
	Model   string `gorm:"type:varchar(8);not null"`
	Kind    string `gorm:"type:varchar(32);not null"`
	Reason  string
}

// TableName returns the table name for GORM.
func (FailureRecord) TableName() string { return "failures" }

// SQLiteWriter stores runs in a SQLite database.
type SQLiteWriter struct {
	db *gorm.DB
}

// NewSQLiteWriter opens (creating if needed) the database at path and
// migrates the schema. ":memory:" opens a private in-memory database.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite database %s", path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "sqlite connection pool")
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RunRecord{}, &ResultRecord{}, &ParameterRecord{}, &FailureRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "migrate sqlite schema")
	}
	return &SQLiteWriter{db: db}, nil
}

// Write stores report in a single transaction.
func (w *SQLiteWriter) Write(ctx context.Context, report *fit.Report) error {
	if report == nil {
		return errors.NewValueError("output.SQLiteWriter", "nil report")
	}

	run := RunRecord{
		RunID:       report.RunID,
		Fingerprint: report.Fingerprint,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		Workers:     report.Workers,
		Groups:      report.Groups,
	}

	var results []ResultRecord
	for _, t := range report.Tables() {
		for _, r := range t.Rows() {
			results = append(results, resultRecord(report.RunID, r))
		}
	}

	var failures []FailureRecord
	for _, f := range report.Failures() {
		failures = append(failures, FailureRecord{
			RunID:   report.RunID,
			GroupID: f.GroupID,
			Model:   f.Model.String(),
			Kind:    string(f.Kind),
			Reason:  f.Reason,
		})
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(results) > 0 {
			if err := tx.CreateInBatches(results, defaultDBBatchSize).Error; err != nil {
				return err
			}
		}
		if len(failures) > 0 {
			if err := tx.CreateInBatches(failures, defaultDBBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrapf(err, "store run %s", report.RunID)
}

func resultRecord(runID string, r fit.Result) ResultRecord {
	md := r.Metadata()
	rec := ResultRecord{
		RunID:                 runID,
		GroupID:               r.GroupID(),
		Model:                 r.Kind().String(),
		AIC:                   r.AIC(),
		RMSE:                  r.RMSE(),
		Converged:             r.Converged(),
		Evaluations:           r.Evaluations(),
		Used:                  r.Used(),
		Free:                  r.Free(),
		Habitat:               md.Habitat,
		ConKingdom:            md.ConKingdom,
		StandardisedTraitName: md.StandardisedTraitName,
		Observations:          md.Observations,
	}
	values := r.Values()
	for i, name := range r.Names() {
		rec.Parameters = append(rec.Parameters, ParameterRecord{Position: i, Name: name, Value: values[i]})
	}
	return rec
}

// Results returns the stored rows of runID with their parameters, ordered
// by model then group.
func (w *SQLiteWriter) Results(ctx context.Context, runID string) ([]ResultRecord, error) {
	var out []ResultRecord
	err := w.db.WithContext(ctx).
		Preload("Parameters", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("run_id = ?", runID).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrapf(err, "load results of run %s", runID)
	}
	return out, nil
}

// Failures returns the stored failures of runID.
func (w *SQLiteWriter) Failures(ctx context.Context, runID string) ([]FailureRecord, error) {
	var out []FailureRecord
	if err := w.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&out).Error; err != nil {
		return nil, errors.Wrapf(err, "load failures of run %s", runID)
	}
	return out, nil
}

// Runs returns every stored run, oldest first.
func (w *SQLiteWriter) Runs(ctx context.Context) ([]RunRecord, error) {
	var out []RunRecord
	if err := w.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "load runs")
	}
	return out, nil
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
