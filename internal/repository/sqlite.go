package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			disease TEXT NOT NULL,
			location TEXT NOT NULL,
			cases INTEGER NOT NULL DEFAULT 0,
			severity TEXT NOT NULL,
			message TEXT,
			precautions TEXT,
			source TEXT NOT NULL,
			verified INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS subscriptions (
			recipient TEXT NOT NULL,
			location TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (recipient, location)
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_location ON alerts(location);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_location ON subscriptions(location);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Add(ctx context.Context, a *models.Alert) error {
	precautions, err := json.Marshal(a.Precautions)
	if err != nil {
		return fmt.Errorf("error encoding precautions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, disease, location, cases, severity, message, precautions, source, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Disease, a.Location, a.Cases, string(a.Severity), a.Message,
		string(precautions), a.Source, a.Verified, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting alert: %w", err)
	}
	return nil
}

func (s *SQLiteDB) MarkVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET verified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error marking alert verified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no alert with id %s", id)
	}
	return nil
}

func (s *SQLiteDB) ListAlerts(ctx context.Context, opts Filter) ([]models.Alert, error) {
	query := `
		SELECT id, disease, location, cases, severity, message, precautions, source, verified, created_at
		FROM alerts WHERE 1=1`
	var args []any

	if opts.VerifiedOnly {
		query += ` AND verified = 1`
	}
	if opts.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *opts.Since)
	}
	if opts.Location != "" {
		query += ` AND instr(lower(location), lower(?)) > 0`
		args = append(args, opts.Location)
	}

	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var severity, precautions string
		if err := rows.Scan(&a.ID, &a.Disease, &a.Location, &a.Cases, &severity,
			&a.Message, &precautions, &a.Source, &a.Verified, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning alert row: %w", err)
		}
		a.Severity = models.Severity(severity)
		if precautions != "" {
			if err := json.Unmarshal([]byte(precautions), &a.Precautions); err != nil {
				return nil, fmt.Errorf("error decoding precautions for %s: %w", a.ID, err)
			}
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

func (s *SQLiteDB) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{
		ByDisease:   make(map[string]int),
		ByLocation:  make(map[string]int),
		BySeverity:  make(map[string]int),
		GeneratedAt: time.Now().UTC(),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT disease, location, severity FROM alerts
		WHERE verified = 1 AND created_at >= ?`, since)
	if err != nil {
		return nil, fmt.Errorf("error querying stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var disease, location, severity string
		if err := rows.Scan(&disease, &location, &severity); err != nil {
			return nil, fmt.Errorf("error scanning stats row: %w", err)
		}
		stats.Total++
		stats.ByDisease[disease]++
		stats.ByLocation[location]++
		stats.BySeverity[severity]++
	}

	return stats, rows.Err()
}

func (s *SQLiteDB) AddSubscription(ctx context.Context, sub *models.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (recipient, location, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (recipient, location) DO NOTHING`,
		sub.Recipient, sub.Location, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting subscription: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListRecipients(ctx context.Context, location string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recipient FROM subscriptions
		WHERE lower(location) = lower(?)`, location)
	if err != nil {
		return nil, fmt.Errorf("error querying recipients: %w", err)
	}
	defer rows.Close()

	var recipients []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("error scanning recipient row: %w", err)
		}
		recipients = append(recipients, r)
	}

	return recipients, rows.Err()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
