package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	pkgch "Conductor/pkg/clickhouse"
	applogger "Conductor/pkg/logger"
)

const barColumns = "symbol, timeframe, ts, open, high, low, close, volume, trade_count, vwap"

// CHBarStore implements BarStore over a single ClickHouse table keyed by
// (symbol, timeframe, ts).
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHBarStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarStore{db: ch.DB(), table: table, l: l}
}

// BarsSchema returns the DDL for the bars table.
func BarsSchema(table string) string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            symbol      LowCardinality(String),
            timeframe   LowCardinality(String),
            ts          DateTime64(3, 'UTC'),
            open        Float64,
            high        Float64,
            low         Float64,
            close       Float64,
            volume      Nullable(Float64),
            trade_count Nullable(Int64),
            vwap        Nullable(Float64)
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, timeframe, ts)
    `, table)
}

// InitSchema creates the bars table if missing.
func (s *CHBarStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, BarsSchema(s.table)); err != nil {
		return fmt.Errorf("init bars schema: %w", err)
	}
	return nil
}

func (s *CHBarStore) LatestTimestamp(ctx context.Context, symbol string, tf domrepo.Timeframe) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT max(ts), count() FROM %s WHERE symbol = ? AND timeframe = ?", s.table)
	var (
		ts time.Time
		n  uint64
	)
	if err := s.db.QueryRowContext(ctx, q, symbol, string(tf)).Scan(&ts, &n); err != nil {
		s.l.Error("clickhouse latest_ts query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return time.Time{}, false, fmt.Errorf("latest timestamp: %w", err)
	}
	if n == 0 {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

func (s *CHBarStore) Window(ctx context.Context, symbol string, tf domrepo.Timeframe, end time.Time, n int) ([]models.Bar, error) {
	if n <= 0 {
		return nil, nil
	}
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE symbol = ? AND timeframe = ? AND ts <= ?
        ORDER BY ts DESC
        LIMIT ?
    `, barColumns, s.table)

	bars, err := s.query(ctx, q, symbol, string(tf), end, n)
	if err != nil {
		s.l.Error("clickhouse window query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("window: %w", err)
	}
	// DESC for the LIMIT; callers want ascending
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	s.l.Debug("clickhouse window ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return bars, nil
}

func (s *CHBarStore) Range(ctx context.Context, symbols []string, tf domrepo.Timeframe, from, to time.Time) ([]models.Bar, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	start := time.Now()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	q := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE symbol IN (%s) AND timeframe = ? AND ts >= ? AND ts <= ?
        ORDER BY symbol, ts
    `, barColumns, s.table, placeholders)

	args := make([]interface{}, 0, len(symbols)+3)
	for _, sym := range symbols {
		args = append(args, sym)
	}
	args = append(args, string(tf), from, to)

	bars, err := s.query(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse range query error",
			applogger.Int("symbols", len(symbols)),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("range: %w", err)
	}
	s.l.Debug("clickhouse range ok",
		applogger.Int("symbols", len(symbols)),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return bars, nil
}

func (s *CHBarStore) query(ctx context.Context, q string, args ...interface{}) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var (
			b      models.Bar
			vol    sql.NullFloat64
			trades sql.NullInt64
			vwap   sql.NullFloat64
		)
		if err := rows.Scan(&b.Symbol, &b.Timeframe, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &vol, &trades, &vwap); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		if vol.Valid {
			b.Volume = models.Float64Ptr(vol.Float64)
		}
		if trades.Valid {
			v := trades.Int64
			b.TradeCount = &v
		}
		if vwap.Valid {
			b.VWAP = models.Float64Ptr(vwap.Float64)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
