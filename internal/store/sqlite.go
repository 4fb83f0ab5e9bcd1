package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wildstyl3r/sensorprop/internal/model"
	"github.com/wildstyl3r/sensorprop/internal/output"
)

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path; ":memory:" keeps it in memory.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun registers a run and returns its id.
func (s *Store) BeginRun(ctx context.Context, config string, seed uint64, threads int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (config, seed, threads, started_at) VALUES (?, ?, ?, ?)`,
		config, int64(seed), threads, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	return id, nil
}

func (s *Store) FinishRun(ctx context.Context, runID int64, events int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET events = ?, finished_at = ? WHERE id = ?`,
		events, time.Now().UTC().Format(time.RFC3339), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", runID, err)
	}
	return nil
}

// SaveCharges inserts records in one transaction.
func (s *Store) SaveCharges(ctx context.Context, runID int64, records []output.ChargeRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO charges (run_id, event, detector, deposit, carrier, charge,
			x, y, z, global_x, global_y, global_z, local_time, global_time, pixel_x, pixel_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, runID, int64(r.Event), r.Detector, r.Deposit, r.Carrier, int64(r.Charge),
			r.X, r.Y, r.Z, r.GlobalX, r.GlobalY, r.GlobalZ, r.LocalTime, r.GlobalTime, r.PixelX, r.PixelY); err != nil {
			return fmt.Errorf("failed to insert charge: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit charges: %w", err)
	}
	return nil
}

func (s *Store) SaveTallies(ctx context.Context, runID int64, tallies map[string]model.Tally) error {
	for name, t := range tallies {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO tallies (run_id, detector, deposited, propagated, recombined,
				missed_integration, undepleted, skipped, batches)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, name, int64(t.Deposited), int64(t.Propagated), int64(t.Recombined),
			int64(t.MissedIntegration), int64(t.Undepleted), int64(t.Skipped), int64(t.Batches))
		if err != nil {
			return fmt.Errorf("failed to save tally of %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Tallies(ctx context.Context, runID int64) (map[string]model.Tally, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT detector, deposited, propagated, recombined, missed_integration, undepleted, skipped, batches
		FROM tallies WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tallies: %w", err)
	}
	defer rows.Close()

	tallies := map[string]model.Tally{}
	for rows.Next() {
		var name string
		var t model.Tally
		if err := rows.Scan(&name, &t.Deposited, &t.Propagated, &t.Recombined,
			&t.MissedIntegration, &t.Undepleted, &t.Skipped, &t.Batches); err != nil {
			return nil, fmt.Errorf("failed to scan tally: %w", err)
		}
		tallies[name] = t
	}
	return tallies, rows.Err()
}

// ChargeTotal sums the stored charge of a run per detector.
func (s *Store) ChargeTotal(ctx context.Context, runID int64, detector string) (uint64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(charge) FROM charges WHERE run_id = ? AND detector = ?`, runID, detector).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum charges: %w", err)
	}
	return uint64(total.Int64), nil
}
