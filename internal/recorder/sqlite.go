package recorder

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"LiquidSentinel/internal/calculator"
	"LiquidSentinel/internal/model"
	"LiquidSentinel/internal/ratelimit"
)

// SQLiteRecorder persists snapshots and cycle history to a SQLite database.
// It also hosts the key/value table behind the durable rate limit ledger.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the service writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("SQLite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS account_snapshots (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			address        TEXT NOT NULL,
			account_value  REAL,
			margin_used    REAL,
			withdrawable   REAL,
			spot_usdc      REAL,
			unrealized_pnl REAL,
			realized_pnl   REAL,
			net_pnl        REAL,
			fees           REAL,
			volume         REAL,
			fill_count     INTEGER,
			win_rate       REAL,
			funding_total  REAL,
			max_drawdown   REAL,
			positions      INTEGER,
			open_orders    INTEGER,
			warnings       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_addr_ts ON account_snapshots(address, timestamp)`,

		`CREATE TABLE IF NOT EXISTS refresh_cycles (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp       INTEGER NOT NULL,
			source          TEXT,
			duration_ms     INTEGER,
			accounts        INTEGER,
			failed          INTEGER,
			weight_consumed INTEGER,
			weight_limit    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON refresh_cycles(timestamp)`,

		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSnapshot(snap *model.AccountSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO account_snapshots
		(timestamp, address, account_value, margin_used, withdrawable, spot_usdc,
		 unrealized_pnl, realized_pnl, net_pnl, fees, volume, fill_count, win_rate,
		 funding_total, max_drawdown, positions, open_orders, warnings)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		snap.TakenAt.Unix(), snap.Address,
		snap.Margin.AccountValue.InexactFloat64(), snap.Margin.MarginUsed.InexactFloat64(),
		snap.Margin.Withdrawable.InexactFloat64(), snap.Margin.SpotUSDC.InexactFloat64(),
		calculator.UnrealizedTotal(snap.Positions).InexactFloat64(),
		snap.Fills.RealizedPnl.InexactFloat64(), snap.Fills.NetPnl.InexactFloat64(),
		snap.Fills.Fees.InexactFloat64(), snap.Fills.Volume.InexactFloat64(),
		snap.Fills.Count, snap.Fills.WinRate.InexactFloat64(),
		snap.FundingTotal.InexactFloat64(), snap.MaxDrawdown.InexactFloat64(),
		len(snap.Positions), snap.OpenOrders, strings.Join(snap.Warnings, "; "),
	)
	return err
}

func (r *SQLiteRecorder) RecordCycle(evt *CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO refresh_cycles
		(timestamp, source, duration_ms, accounts, failed, weight_consumed, weight_limit)
		VALUES (?,?,?,?,?,?,?)`,
		evt.StartedAt.Unix(), evt.Trigger, evt.Duration.Milliseconds(),
		evt.Accounts, evt.Failed, evt.Budget.Consumed, evt.Budget.Limit,
	)
	return err
}

// SnapshotPoint is one row of an account's stored history.
type SnapshotPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	AccountValue float64   `json:"account_value"`
	NetPnl       float64   `json:"net_pnl"`
	MaxDrawdown  float64   `json:"max_drawdown"`
}

// History returns up to limit most recent snapshot rows for address, oldest first.
func (r *SQLiteRecorder) History(address string, limit int) ([]SnapshotPoint, error) {
	rows, err := r.db.Query(`SELECT timestamp, account_value, net_pnl, max_drawdown
		FROM account_snapshots WHERE address = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotPoint
	for rows.Next() {
		var (
			ts int64
			p  SnapshotPoint
		)
		if err := rows.Scan(&ts, &p.AccountValue, &p.NetPnl, &p.MaxDrawdown); err != nil {
			return nil, err
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Slot returns a durable slot stored under key in the kv table.
func (r *SQLiteRecorder) Slot(key string) ratelimit.Slot {
	return &kvSlot{r: r, key: key}
}

type kvSlot struct {
	r   *SQLiteRecorder
	key string
}

func (s *kvSlot) Load() ([]byte, error) {
	var value []byte
	err := s.r.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.key, err)
	}
	return value, nil
}

func (s *kvSlot) Save(data []byte) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	if !json.Valid(data) {
		return fmt.Errorf("save %s: refusing to store invalid JSON", s.key)
	}
	_, err := s.r.db.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save %s: %w", s.key, err)
	}
	return nil
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("Closing SQLite recorder")
	return r.db.Close()
}
