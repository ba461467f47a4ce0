// Package sqlbridge persists the master's durable tables to a
// relational database via sqlx. CreateSchema creates tables for
// TDevice, TGateway, TMeter and _Config, but save and load exist only
// for TDevice and _Config rows. It works the
// way the teacher's store/adapter package persists its own tables —
// except here there is a single concrete adapter instead of a plugin
// interface, since SMF only ever targets MySQL in production and
// SQLite in development.
package sqlbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/solostec/smf/internal/store"
)

// Bridge persists a *store.Store's durable tables to SQL and can
// reload them at boot.
type Bridge struct {
	db *sqlx.DB
}

// Open connects using driver ("mysql" or "sqlite") and dsn, grounded
// on the teacher's GetName()/Open(config string) adapter lifecycle.
func Open(driver, dsn string) (*Bridge, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlbridge: open %s: %w", driver, err)
	}
	return &Bridge{db: db}, nil
}

// Close releases the underlying connection pool.
func (b *Bridge) Close() error {
	return b.db.Close()
}

// CreateSchema creates the bridge's tables if they do not already
// exist. The column set is intentionally narrow: durable tables carry
// only the fields the gateway or dashboard need to reload on restart,
// not the full in-memory row (session/runtime-only tables are never
// persisted).
func (b *Bridge) CreateSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			uuid VARCHAR(36) PRIMARY KEY,
			name VARCHAR(128) NOT NULL,
			pwd VARCHAR(128) NOT NULL,
			number VARCHAR(64),
			descr TEXT,
			model VARCHAR(64),
			firmware VARCHAR(64),
			enabled BOOLEAN NOT NULL DEFAULT 1,
			created DATETIME NOT NULL,
			query_mask INT UNSIGNED NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS gateways (
			uuid VARCHAR(36) PRIMARY KEY,
			server_id VARCHAR(32) NOT NULL,
			manufacturer VARCHAR(64),
			made DATETIME,
			factory_nr VARCHAR(64),
			mac_service VARCHAR(32),
			mac_data VARCHAR(32),
			default_pwd VARCHAR(64),
			root_pwd VARCHAR(64),
			mbus_id VARCHAR(64),
			user VARCHAR(64),
			pwd VARCHAR(64)
		)`,
		`CREATE TABLE IF NOT EXISTS meters (
			uuid VARCHAR(36) PRIMARY KEY,
			ident VARCHAR(64) NOT NULL,
			manufacturer VARCHAR(64),
			factory_nr VARCHAR(64),
			age_seconds BIGINT,
			v_param TINYINT UNSIGNED,
			v_firmware TINYINT UNSIGNED,
			item VARCHAR(64),
			class VARCHAR(32),
			source VARCHAR(64)
		)`,
		`CREATE TABLE IF NOT EXISTS config (
			name VARCHAR(128) PRIMARY KEY,
			kind VARCHAR(32) NOT NULL,
			value TEXT
		)`,
	}
	for _, s := range stmts {
		if _, err := b.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlbridge: create schema: %w", err)
		}
	}
	return nil
}

type deviceRow struct {
	UUID      string    `db:"uuid"`
	Name      string    `db:"name"`
	Pwd       string    `db:"pwd"`
	Number    string    `db:"number"`
	Descr     string    `db:"descr"`
	Model     string    `db:"model"`
	Firmware  string    `db:"firmware"`
	Enabled   bool      `db:"enabled"`
	Created   time.Time `db:"created"`
	QueryMask uint32    `db:"query_mask"`
}

// SaveDevice upserts one TDevice row. The update-then-insert shape
// (rather than a dialect-specific ON DUPLICATE KEY / ON CONFLICT
// clause) is what lets the same statement run against both MySQL in
// production and SQLite in development.
func (b *Bridge) SaveDevice(ctx context.Context, id string, d store.Device) error {
	row := deviceRow{
		UUID: id, Name: d.Name, Pwd: d.Password, Number: d.Number, Descr: d.Descr,
		Model: d.Model, Firmware: d.Firmware, Enabled: d.Enabled, Created: d.Created,
		QueryMask: d.QueryMask,
	}
	res, err := b.db.NamedExecContext(ctx, `
		UPDATE devices SET name=:name, pwd=:pwd, number=:number, descr=:descr,
			model=:model, firmware=:firmware, enabled=:enabled, query_mask=:query_mask
		WHERE uuid=:uuid`, row)
	if err != nil {
		return fmt.Errorf("sqlbridge: save device %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := b.db.NamedExecContext(ctx, `
		INSERT INTO devices (uuid, name, pwd, number, descr, model, firmware, enabled, created, query_mask)
		VALUES (:uuid, :name, :pwd, :number, :descr, :model, :firmware, :enabled, :created, :query_mask)`, row); err != nil {
		return fmt.Errorf("sqlbridge: save device %s: %w", id, err)
	}
	return nil
}

// LoadDevices reloads every TDevice row for startup replay into an
// in-memory store.Table.
func (b *Bridge) LoadDevices(ctx context.Context) (map[string]store.Device, error) {
	var rows []deviceRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT * FROM devices`); err != nil {
		return nil, fmt.Errorf("sqlbridge: load devices: %w", err)
	}
	out := make(map[string]store.Device, len(rows))
	for _, r := range rows {
		out[r.UUID] = store.Device{
			Name: r.Name, Password: r.Pwd, Number: r.Number, Descr: r.Descr,
			Model: r.Model, Firmware: r.Firmware, Enabled: r.Enabled,
			Created: r.Created, QueryMask: r.QueryMask,
		}
	}
	return out, nil
}

type configRow struct {
	Name  string `db:"name"`
	Kind  string `db:"kind"`
	Value string `db:"value"`
}

// SaveConfig upserts one _Config row.
func (b *Bridge) SaveConfig(ctx context.Context, name string, v store.ConfigValue) error {
	row := configRow{Name: name, Kind: v.Kind, Value: v.Value}
	res, err := b.db.NamedExecContext(ctx, `UPDATE config SET kind=:kind, value=:value WHERE name=:name`, row)
	if err != nil {
		return fmt.Errorf("sqlbridge: save config %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := b.db.NamedExecContext(ctx, `INSERT INTO config (name, kind, value) VALUES (:name, :kind, :value)`, row); err != nil {
		return fmt.Errorf("sqlbridge: save config %s: %w", name, err)
	}
	return nil
}

// LoadConfig reloads every _Config row.
func (b *Bridge) LoadConfig(ctx context.Context) (map[string]store.ConfigValue, error) {
	var rows []configRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT * FROM config`); err != nil {
		return nil, fmt.Errorf("sqlbridge: load config: %w", err)
	}
	out := make(map[string]store.ConfigValue, len(rows))
	for _, r := range rows {
		out[r.Name] = store.ConfigValue{Kind: r.Kind, Value: r.Value}
	}
	return out, nil
}
