package persist

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"BandWatch/internal/model"
)

// SQLitePersister stores one row per symbol in a SQLite database.
type SQLitePersister struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLitePersister opens (or creates) the SQLite database and runs migrations.
func NewSQLitePersister(dbPath string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboard reads don't block the monitor's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	p := &SQLitePersister{db: db}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite persister opened: %s", dbPath)
	return p, nil
}

func (p *SQLitePersister) migrate() error {
	_, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS symbol_states (
		symbol        TEXT PRIMARY KEY,
		band_high     REAL,
		band_low      REAL,
		live_high     REAL,
		live_low      REAL,
		last_price    REAL,
		status        TEXT NOT NULL,
		last_update   INTEGER,
		last_checked  INTEGER,
		trading_day   TEXT NOT NULL,
		trigger_time  INTEGER,
		trigger_price REAL
	)`)
	return err
}

// Load reads every symbol row back into a state map.
func (p *SQLitePersister) Load() (map[string]*model.BandState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows, err := p.db.Query(`SELECT symbol, band_high, band_low, live_high, live_low,
		last_price, status, last_update, last_checked, trading_day, trigger_time, trigger_price
		FROM symbol_states`)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]*model.BandState)
	for rows.Next() {
		var (
			symbol                               string
			bandHigh, bandLow, liveHigh, liveLow sql.NullFloat64
			lastPrice, triggerPrice              sql.NullFloat64
			status, tradingDay                   string
			lastUpdate, lastChecked, triggerTime sql.NullInt64
		)
		if err := rows.Scan(&symbol, &bandHigh, &bandLow, &liveHigh, &liveLow,
			&lastPrice, &status, &lastUpdate, &lastChecked, &tradingDay,
			&triggerTime, &triggerPrice); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		s := &model.BandState{
			BandHigh:   nullToPtr(bandHigh),
			BandLow:    nullToPtr(bandLow),
			LiveHigh:   nullToPtr(liveHigh),
			LiveLow:    nullToPtr(liveLow),
			LastPrice:  nullToPtr(lastPrice),
			Status:     model.Status(status),
			TradingDay: tradingDay,
		}
		if lastUpdate.Valid && lastUpdate.Int64 != 0 {
			s.LastUpdate = time.Unix(lastUpdate.Int64, 0)
		}
		if lastChecked.Valid && lastChecked.Int64 != 0 {
			s.LastChecked = time.Unix(lastChecked.Int64, 0)
		}
		if triggerTime.Valid && triggerPrice.Valid {
			s.Trigger = &model.TriggerMark{
				Time:  time.Unix(triggerTime.Int64, 0),
				Price: triggerPrice.Float64,
			}
		}
		states[symbol] = s
	}
	return states, rows.Err()
}

// Save upserts every symbol row inside one transaction.
func (p *SQLitePersister) Save(states map[string]*model.BandState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO symbol_states
		(symbol, band_high, band_low, live_high, live_low, last_price,
		 status, last_update, last_checked, trading_day, trigger_time, trigger_price)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol) DO UPDATE SET
		 band_high=excluded.band_high, band_low=excluded.band_low,
		 live_high=excluded.live_high, live_low=excluded.live_low,
		 last_price=excluded.last_price, status=excluded.status,
		 last_update=excluded.last_update, last_checked=excluded.last_checked,
		 trading_day=excluded.trading_day,
		 trigger_time=excluded.trigger_time, trigger_price=excluded.trigger_price`)
	if err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}
	defer stmt.Close()

	for symbol, s := range states {
		var triggerTime, triggerPrice interface{}
		if s.Trigger != nil {
			triggerTime = s.Trigger.Time.Unix()
			triggerPrice = s.Trigger.Price
		}
		if _, err := stmt.Exec(symbol,
			ptrToNull(s.BandHigh), ptrToNull(s.BandLow),
			ptrToNull(s.LiveHigh), ptrToNull(s.LiveLow),
			ptrToNull(s.LastPrice), string(s.Status),
			unixOrZero(s.LastUpdate), unixOrZero(s.LastChecked),
			s.TradingDay, triggerTime, triggerPrice); err != nil {
			return fmt.Errorf("upsert %s: %w", symbol, err)
		}
	}
	return tx.Commit()
}

func (p *SQLitePersister) Close() error {
	log.Println("[INFO] closing sqlite persister")
	return p.db.Close()
}

func nullToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func ptrToNull(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
