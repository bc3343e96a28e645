// Package persistence provides SQLite-based campaign storage: the current
// state blob per campaign, tick history, and a log of emitted events.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/engine"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// ErrNotFound is returned when a campaign has no stored row.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for campaign persistence.
type DB struct {
	conn *sqlx.DB
}

var (
	_ engine.StateStore   = (*DB)(nil)
	_ engine.MemoryReader = (*DB)(nil)
)

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Campaign goroutines write concurrently; SQLite takes one writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		tick_mode TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		seed INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS campaign_state (
		campaign_id TEXT PRIMARY KEY REFERENCES campaigns(id) ON DELETE CASCADE,
		tick INTEGER NOT NULL,
		state_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tick_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		tick INTEGER NOT NULL,
		tick_id TEXT NOT NULL,
		trigger TEXT NOT NULL,
		seed TEXT NOT NULL,
		action_count INTEGER NOT NULL,
		actions_json TEXT NOT NULL,
		results_json TEXT NOT NULL,
		phases_json TEXT NOT NULL,
		processing_ms REAL NOT NULL,
		completed_at INTEGER NOT NULL,
		UNIQUE (campaign_id, tick)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		tick INTEGER NOT NULL,
		kind TEXT NOT NULL,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tick_memory (
		campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		tick INTEGER NOT NULL,
		continuity REAL NOT NULL,
		memory_json TEXT NOT NULL,
		PRIMARY KEY (campaign_id, tick)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_campaign ON tick_history(campaign_id, tick);
	CREATE INDEX IF NOT EXISTS idx_events_campaign ON events(campaign_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// EnsureCampaign creates the campaign with its initial state unless it
// already exists.
func (db *DB) EnsureCampaign(ctx context.Context, campaignID string, mode campaign.TickMode, initial campaign.State) error {
	stateJSON, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	now := time.Now().UnixMilli()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO campaigns
		(id, tick_mode, active, seed, created_at, updated_at) VALUES (?, ?, 0, ?, ?, ?)`,
		campaignID, mode, initial.Seed, now, now)
	if err != nil {
		return fmt.Errorf("insert campaign %s: %w", campaignID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO campaign_state (campaign_id, tick, state_json) VALUES (?, ?, ?)",
		campaignID, initial.Tick, string(stateJSON)); err != nil {
		return fmt.Errorf("insert state %s: %w", campaignID, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("campaign created", "campaign_id", campaignID, "seed", initial.Seed)
	return nil
}

// LoadState returns the campaign's committed state.
func (db *DB) LoadState(ctx context.Context, campaignID string) (campaign.State, error) {
	var raw string
	err := db.conn.GetContext(ctx, &raw, "SELECT state_json FROM campaign_state WHERE campaign_id = ?", campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.State{}, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	if err != nil {
		return campaign.State{}, err
	}
	var st campaign.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return campaign.State{}, fmt.Errorf("decode state %s: %w", campaignID, err)
	}
	return st, nil
}

// SaveTick commits a tick: the final state, the history row, the events,
// alerts and recommendations it emitted, and the tick memory. The state row
// only advances from the tick before report.Tick. A memory that cannot be
// stored is logged and skipped.
func (db *DB) SaveTick(ctx context.Context, report *engine.TickReport) error {
	if report.Results == nil {
		return errors.New("tick report has no results")
	}
	stateJSON, err := json.Marshal(report.Results.FinalCampaignState)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	actionsJSON, err := json.Marshal(report.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	resultsJSON, err := json.Marshal(report.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	phasesJSON, err := json.Marshal(report.Phases)
	if err != nil {
		return fmt.Errorf("encode phases: %w", err)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE campaign_state SET tick = ?, state_json = ? WHERE campaign_id = ? AND tick = ?",
		report.Tick, string(stateJSON), report.CampaignID, report.Tick-1)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("campaign %s: stored state is not at tick %d", report.CampaignID, report.Tick-1)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO tick_history
		(campaign_id, tick, tick_id, trigger, seed, action_count, actions_json,
		 results_json, phases_json, processing_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.CampaignID, report.Tick, report.TickID, report.Trigger, report.Seed,
		len(report.Actions), string(actionsJSON), string(resultsJSON), string(phasesJSON),
		float64(report.Duration)/float64(time.Millisecond), report.CompletedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	for _, e := range eventRows(report) {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO events
			(campaign_id, tick, kind, category, severity, title, description)
			VALUES (:campaign_id, :tick, :kind, :category, :severity, :title, :description)`, e); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if report.Memory != nil {
		if err := saveMemory(ctx, tx, report.Memory); err != nil {
			slog.Warn("tick memory not stored", "campaign_id", report.CampaignID, "tick", report.Tick, "error", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE campaigns SET updated_at = ? WHERE id = ?",
		time.Now().UnixMilli(), report.CampaignID); err != nil {
		return err
	}
	return tx.Commit()
}

// saveMemory writes m under a savepoint so a failed insert leaves the rest
// of the tick's transaction intact.
func saveMemory(ctx context.Context, tx *sqlx.Tx, m *hybrid.TickMemory) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT tick_memory"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO tick_memory (campaign_id, tick, continuity, memory_json) VALUES (?, ?, ?, ?)",
		m.CampaignID, m.Tick, m.Continuity, string(raw)); err != nil {
		if _, rerr := tx.ExecContext(ctx, "ROLLBACK TO tick_memory"); rerr != nil {
			return errors.Join(err, rerr)
		}
		tx.ExecContext(ctx, "RELEASE tick_memory")
		return fmt.Errorf("insert memory: %w", err)
	}
	_, err = tx.ExecContext(ctx, "RELEASE tick_memory")
	return err
}

// RecentMemories returns the campaign's latest tick memories, newest first.
func (db *DB) RecentMemories(ctx context.Context, campaignID string, limit int) ([]hybrid.TickMemory, error) {
	var raws []string
	if err := db.conn.SelectContext(ctx, &raws,
		"SELECT memory_json FROM tick_memory WHERE campaign_id = ? ORDER BY tick DESC LIMIT ?",
		campaignID, limit); err != nil {
		return nil, err
	}
	out := make([]hybrid.TickMemory, 0, len(raws))
	for _, raw := range raws {
		var m hybrid.TickMemory
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode memory: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func eventRows(report *engine.TickReport) []EventRecord {
	var rows []EventRecord
	add := func(kind, category, severity, title, desc string) {
		rows = append(rows, EventRecord{
			CampaignID:  report.CampaignID,
			Tick:        report.Tick,
			Kind:        kind,
			Category:    category,
			Severity:    severity,
			Title:       title,
			Description: desc,
		})
	}
	res := report.Results
	for _, e := range res.EmergentEvents {
		add("event", string(e.Type), e.Severity, e.Title, e.Description)
	}
	for _, a := range res.CrisisAlerts {
		add("alert", a.Type, a.Severity, a.Title, a.Description)
	}
	for _, p := range res.PolicyRecommendations {
		add("recommendation", p.Category, string(p.Priority), p.Title, p.Description)
	}
	return rows
}

// DeleteCampaign removes the campaign and everything recorded for it.
func (db *DB) DeleteCampaign(ctx context.Context, campaignID string) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM campaigns WHERE id = ?", campaignID)
	if err != nil {
		return fmt.Errorf("delete campaign %s: %w", campaignID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	slog.Info("campaign deleted", "campaign_id", campaignID)
	return nil
}

// SetActive records whether the campaign is running.
func (db *DB) SetActive(ctx context.Context, campaignID string, active bool) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE campaigns SET active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UnixMilli(), campaignID)
	return err
}

// SetMode records the campaign's tick mode.
func (db *DB) SetMode(ctx context.Context, campaignID string, mode campaign.TickMode) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE campaigns SET tick_mode = ?, updated_at = ? WHERE id = ?",
		mode, time.Now().UnixMilli(), campaignID)
	return err
}

// CampaignRecord is a stored campaign row.
type CampaignRecord struct {
	ID        string            `db:"id" json:"id"`
	Mode      campaign.TickMode `db:"tick_mode" json:"tick_mode"`
	Active    bool              `db:"active" json:"active"`
	Seed      int64             `db:"seed" json:"seed"`
	Tick      uint64            `db:"tick" json:"tick"`
	CreatedAt int64             `db:"created_at" json:"created_at_ms"`
	UpdatedAt int64             `db:"updated_at" json:"updated_at_ms"`
}

// ListCampaigns returns every stored campaign ordered by ID.
func (db *DB) ListCampaigns(ctx context.Context) ([]CampaignRecord, error) {
	var out []CampaignRecord
	err := db.conn.SelectContext(ctx, &out, `SELECT c.id, c.tick_mode, c.active, c.seed,
		COALESCE(s.tick, 0) AS tick, c.created_at, c.updated_at
		FROM campaigns c LEFT JOIN campaign_state s ON s.campaign_id = c.id
		ORDER BY c.id`)
	return out, err
}

// TickRecord summarizes one committed tick.
type TickRecord struct {
	Tick         uint64  `db:"tick" json:"tick"`
	TickID       string  `db:"tick_id" json:"tick_id"`
	Trigger      string  `db:"trigger" json:"trigger"`
	Seed         string  `db:"seed" json:"seed"`
	ActionCount  int     `db:"action_count" json:"action_count"`
	ProcessingMs float64 `db:"processing_ms" json:"processing_ms"`
	CompletedAt  int64   `db:"completed_at" json:"completed_at_ms"`
}

// History returns the most recent ticks of a campaign, newest first.
func (db *DB) History(ctx context.Context, campaignID string, limit int) ([]TickRecord, error) {
	var out []TickRecord
	err := db.conn.SelectContext(ctx, &out, `SELECT tick, tick_id, trigger, seed, action_count,
		processing_ms, completed_at FROM tick_history
		WHERE campaign_id = ? ORDER BY tick DESC LIMIT ?`, campaignID, limit)
	return out, err
}

// LatestResults returns the integrated results of the campaign's last
// committed tick.
func (db *DB) LatestResults(ctx context.Context, campaignID string) (*hybrid.HybridResults, error) {
	var raw string
	err := db.conn.GetContext(ctx, &raw,
		"SELECT results_json FROM tick_history WHERE campaign_id = ? ORDER BY tick DESC LIMIT 1", campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %s results: %w", campaignID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var res hybrid.HybridResults
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &res, nil
}

// EventRecord is one logged event, alert or recommendation.
type EventRecord struct {
	CampaignID  string `db:"campaign_id" json:"campaign_id"`
	Tick        uint64 `db:"tick" json:"tick"`
	Kind        string `db:"kind" json:"kind"`
	Category    string `db:"category" json:"category"`
	Severity    string `db:"severity" json:"severity"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
}

// RecentEvents returns the most recent N logged entries for a campaign.
func (db *DB) RecentEvents(ctx context.Context, campaignID string, limit int) ([]EventRecord, error) {
	var events []EventRecord
	err := db.conn.SelectContext(ctx, &events, `SELECT campaign_id, tick, kind, category, severity,
		title, description FROM events WHERE campaign_id = ? ORDER BY id DESC LIMIT ?`,
		campaignID, limit)
	return events, err
}

// SaveMeta stores a key-value pair in service metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
