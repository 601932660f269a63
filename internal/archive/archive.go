// Package archive copies assessment results into PostgreSQL for reporting
// outside the engine.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/abhisek/adaptiq/internal/analysis"
)

// ResultRecord is the archived row of one assessment result.
type ResultRecord struct {
	SessionID         string  `gorm:"primaryKey;size:64"`
	LearnerID         string  `gorm:"not null;index;size:255"`
	TotalQuestions    int     `gorm:"not null"`
	AnsweredQuestions int     `gorm:"not null"`
	CorrectAnswers    int     `gorm:"not null"`
	Score             float64 `gorm:"not null"`
	Confidence        float64
	DegradedContent   int
	Reason            string `gorm:"size:32;index"`
	NarrativeSource   string `gorm:"size:16"`

	ByDifficulty    datatypes.JSON `gorm:"type:jsonb"`
	ByTopic         datatypes.JSON `gorm:"type:jsonb"`
	Strengths       datatypes.JSON `gorm:"type:jsonb"`
	Weaknesses      datatypes.JSON `gorm:"type:jsonb"`
	Recommendations datatypes.JSON `gorm:"type:jsonb"`

	AverageTimeSeconds float64
	CompletedAt        time.Time `gorm:"not null;index"`
	CreatedAt          time.Time
}

// TableName pins the table name.
func (ResultRecord) TableName() string { return "assessment_results" }

// Archive stores results through gorm. It implements
// session.ResultPersistence.
type Archive struct {
	db *gorm.DB
}

// Open connects to PostgreSQL at dsn and migrates the results table.
func Open(dsn string) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the results table.
func New(db *gorm.DB) (*Archive, error) {
	if err := db.AutoMigrate(&ResultRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveResult inserts res unless the session is already archived.
func (a *Archive) SaveResult(ctx context.Context, res *analysis.AssessmentResult) error {
	rec, err := ToRecord(res)
	if err != nil {
		return err
	}
	err = a.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("archive result %s: %w", res.SessionID, err)
	}
	return nil
}

// LoadResult returns the archived result, or nil when there is none.
func (a *Archive) LoadResult(ctx context.Context, sessionID string) (*analysis.AssessmentResult, error) {
	var rec ResultRecord
	err := a.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load archived result %s: %w", sessionID, err)
	}
	return FromRecord(&rec)
}

// ToRecord flattens a result into its archived row.
func ToRecord(res *analysis.AssessmentResult) (*ResultRecord, error) {
	rec := &ResultRecord{
		SessionID:          res.SessionID,
		LearnerID:          res.LearnerID,
		TotalQuestions:     res.TotalQuestions,
		AnsweredQuestions:  res.AnsweredQuestions,
		CorrectAnswers:     res.CorrectAnswers,
		Score:              res.Score,
		Confidence:         res.Confidence,
		DegradedContent:    res.DegradedContent,
		Reason:             string(res.Reason),
		NarrativeSource:    res.NarrativeSource,
		AverageTimeSeconds: res.AverageTimeSeconds,
		CompletedAt:        res.CompletedAt,
	}
	fields := []struct {
		dst *datatypes.JSON
		src any
	}{
		{&rec.ByDifficulty, res.ByDifficulty},
		{&rec.ByTopic, res.ByTopic},
		{&rec.Strengths, res.Strengths},
		{&rec.Weaknesses, res.Weaknesses},
		{&rec.Recommendations, res.Recommendations},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.src)
		if err != nil {
			return nil, fmt.Errorf("encode result %s: %w", res.SessionID, err)
		}
		*f.dst = datatypes.JSON(b)
	}
	return rec, nil
}

// FromRecord rebuilds a result from its archived row.
func FromRecord(rec *ResultRecord) (*analysis.AssessmentResult, error) {
	res := &analysis.AssessmentResult{
		SessionID:          rec.SessionID,
		LearnerID:          rec.LearnerID,
		TotalQuestions:     rec.TotalQuestions,
		AnsweredQuestions:  rec.AnsweredQuestions,
		CorrectAnswers:     rec.CorrectAnswers,
		Score:              rec.Score,
		Confidence:         rec.Confidence,
		DegradedContent:    rec.DegradedContent,
		Reason:             analysis.CompletionReason(rec.Reason),
		NarrativeSource:    rec.NarrativeSource,
		AverageTimeSeconds: rec.AverageTimeSeconds,
		CompletedAt:        rec.CompletedAt,
	}
	fields := []struct {
		src datatypes.JSON
		dst any
	}{
		{rec.ByDifficulty, &res.ByDifficulty},
		{rec.ByTopic, &res.ByTopic},
		{rec.Strengths, &res.Strengths},
		{rec.Weaknesses, &res.Weaknesses},
		{rec.Recommendations, &res.Recommendations},
	}
	for _, f := range fields {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", rec.SessionID, err)
		}
	}
	return res, nil
}
