package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"Conductor/internal/domain/models"
)

type intentModel struct {
	IntentID     string         `gorm:"column:intent_id;primaryKey"`
	AsOf         time.Time      `gorm:"column:as_of;index"`
	SizingMethod string         `gorm:"column:sizing_method"`
	TradeAllowed bool           `gorm:"column:trade_allowed"`
	Targets      int            `gorm:"column:targets"`
	RunID        string         `gorm:"column:strategy_run_id"`
	Payload      datatypes.JSON `gorm:"column:payload"`
	CreatedAt    time.Time      `gorm:"column:created_at;index"`
}

func (intentModel) TableName() string { return "portfolio_intents" }

type runModel struct {
	RunID          string         `gorm:"column:run_id;primaryKey"`
	EvalTS         time.Time      `gorm:"column:eval_ts;index"`
	Strategies     datatypes.JSON `gorm:"column:strategies"`
	UniverseSize   int            `gorm:"column:universe_size"`
	SignalsWritten int            `gorm:"column:signals_written"`
	Errors         int            `gorm:"column:errors"`
	ElapsedMS      float64        `gorm:"column:elapsed_ms"`
	Error          string         `gorm:"column:error"`
	StartedAt      time.Time      `gorm:"column:started_at"`
	CompletedAt    *time.Time     `gorm:"column:completed_at"`
}

func (runModel) TableName() string { return "strategy_runs" }

type signalModel struct {
	SignalID    string         `gorm:"column:signal_id;primaryKey"`
	RunID       string         `gorm:"column:run_id;index"`
	StrategyID  string         `gorm:"column:strategy_id;index"`
	Version     string         `gorm:"column:strategy_version"`
	ParamsHash  string         `gorm:"column:params_hash"`
	Symbol      string         `gorm:"column:symbol"`
	Side        string         `gorm:"column:side"`
	Strength    float64        `gorm:"column:strength"`
	Confidence  float64        `gorm:"column:confidence"`
	HorizonBars int            `gorm:"column:horizon_bars"`
	Payload     datatypes.JSON `gorm:"column:payload"`
}

func (signalModel) TableName() string { return "strategy_signals" }

// GormIntentStore persists intents, strategy runs and run signals in sqlite.
// It implements both IntentStore and RunStore.
type GormIntentStore struct {
	db *gorm.DB
}

// NewGormIntentStore opens (or creates) the sqlite file at path.
func NewGormIntentStore(path string) (*GormIntentStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path cannot be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		path = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewGormIntentStoreFromDB(db)
}

// NewGormIntentStoreFromDB migrates the tables on an existing connection.
func NewGormIntentStoreFromDB(db *gorm.DB) (*GormIntentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm store: db cannot be nil")
	}
	if err := db.AutoMigrate(&intentModel{}, &runModel{}, &signalModel{}); err != nil {
		return nil, fmt.Errorf("gorm store: migrate: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// sqlite serialises writers anyway; one connection also keeps :memory: databases shared
		sqlDB.SetMaxOpenConns(1)
	}
	return &GormIntentStore{db: db}, nil
}

func (s *GormIntentStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormIntentStore) Save(ctx context.Context, intent models.PortfolioIntent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("save intent: marshal: %w", err)
	}
	rec := intentModel{
		IntentID:     intent.IntentID,
		AsOf:         intent.AsOf.UTC(),
		SizingMethod: string(intent.SizingMethod),
		TradeAllowed: intent.TradeAllowed,
		Targets:      len(intent.Targets),
		RunID:        intent.StrategyRunID,
		Payload:      datatypes.JSON(payload),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("save intent: %w", err)
	}
	return nil
}

func (s *GormIntentStore) Get(ctx context.Context, intentID string) (models.PortfolioIntent, error) {
	var rec intentModel
	err := s.db.WithContext(ctx).Where("intent_id = ?", intentID).Take(&rec).Error
	return decodeIntent(rec, err)
}

// Latest returns the most recently evaluated intent.
func (s *GormIntentStore) Latest(ctx context.Context) (models.PortfolioIntent, error) {
	var rec intentModel
	err := s.db.WithContext(ctx).Order("as_of DESC").Order("created_at DESC").Take(&rec).Error
	return decodeIntent(rec, err)
}

func (s *GormIntentStore) List(ctx context.Context, limit int) ([]models.PortfolioIntent, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []intentModel
	if err := s.db.WithContext(ctx).Order("as_of DESC").Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	out := make([]models.PortfolioIntent, 0, len(recs))
	for _, rec := range recs {
		intent, err := decodeIntent(rec, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, intent)
	}
	return out, nil
}

func decodeIntent(rec intentModel, err error) (models.PortfolioIntent, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PortfolioIntent{}, models.ErrIntentNotFound
	}
	if err != nil {
		return models.PortfolioIntent{}, fmt.Errorf("get intent: %w", err)
	}
	var intent models.PortfolioIntent
	if err := json.Unmarshal(rec.Payload, &intent); err != nil {
		return models.PortfolioIntent{}, fmt.Errorf("decode intent %s: %w", rec.IntentID, err)
	}
	return intent, nil
}

func (s *GormIntentStore) CreateRun(ctx context.Context, run models.StrategyRun) error {
	strategies, err := json.Marshal(run.Strategies)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	rec := runModel{
		RunID:        run.RunID,
		EvalTS:       run.EvalTS.UTC(),
		Strategies:   datatypes.JSON(strategies),
		UniverseSize: run.UniverseSize,
		StartedAt:    run.StartedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *GormIntentStore) CompleteRun(ctx context.Context, run models.StrategyRun) error {
	completed := run.CompletedAt.UTC()
	if run.CompletedAt.IsZero() {
		completed = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).Model(&runModel{}).Where("run_id = ?", run.RunID).Updates(map[string]interface{}{
		"signals_written": run.SignalsWritten,
		"errors":          run.Errors,
		"elapsed_ms":      run.ElapsedMS,
		"error":           run.Error,
		"completed_at":    completed,
	})
	if res.Error != nil {
		return fmt.Errorf("complete run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complete run: unknown run %s", run.RunID)
	}
	return nil
}

func (s *GormIntentStore) SaveSignals(ctx context.Context, runID string, signals []models.Signal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}
	recs := make([]signalModel, 0, len(signals))
	for _, sig := range signals {
		payload, err := json.Marshal(sig)
		if err != nil {
			return 0, fmt.Errorf("save signals: marshal: %w", err)
		}
		recs = append(recs, signalModel{
			SignalID:    sig.SignalID,
			RunID:       runID,
			StrategyID:  sig.StrategyID,
			Version:     sig.StrategyVersion,
			ParamsHash:  sig.ParamsHash,
			Symbol:      sig.Symbol,
			Side:        string(sig.Side),
			Strength:    sig.Strength,
			Confidence:  sig.Confidence,
			HorizonBars: sig.HorizonBars,
			Payload:     datatypes.JSON(payload),
		})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(recs, 200).Error; err != nil {
		return 0, fmt.Errorf("save signals: %w", err)
	}
	return len(recs), nil
}

// Run loads a strategy run record.
func (s *GormIntentStore) Run(ctx context.Context, runID string) (models.StrategyRun, error) {
	var rec runModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Take(&rec).Error; err != nil {
		return models.StrategyRun{}, fmt.Errorf("get run: %w", err)
	}
	run := models.StrategyRun{
		RunID:          rec.RunID,
		EvalTS:         rec.EvalTS,
		UniverseSize:   rec.UniverseSize,
		SignalsWritten: rec.SignalsWritten,
		Errors:         rec.Errors,
		ElapsedMS:      rec.ElapsedMS,
		Error:          rec.Error,
		StartedAt:      rec.StartedAt,
	}
	if rec.CompletedAt != nil {
		run.CompletedAt = *rec.CompletedAt
	}
	if len(rec.Strategies) > 0 {
		if err := json.Unmarshal(rec.Strategies, &run.Strategies); err != nil {
			return models.StrategyRun{}, fmt.Errorf("decode run strategies: %w", err)
		}
	}
	return run, nil
}

// CountSignals returns how many signal rows belong to runID.
func (s *GormIntentStore) CountSignals(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&signalModel{}).Where("run_id = ?", runID).Count(&n).Error
	return n, err
}
