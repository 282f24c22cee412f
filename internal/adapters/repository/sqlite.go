package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/risk"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// BackendSQLite names the SQLite store.
const BackendSQLite = "sqlite"

// SQLiteStore keeps each record as a JSON document next to the columns it is
// queried by. Read-modify-write updates run inside a transaction.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens (or creates) the database at path and migrates it.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, model.StorageError("open sqlite", err)
	}
	// A single connection serialises writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, model.StorageError("sqlite pragma", err)
		}
	}

	s := &SQLiteStore{db: db, opts: buildOptions(opts)}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, model.StorageError("migrate sqlite", err)
	}
	return s, nil
}

// Backend implements Store.
func (s *SQLiteStore) Backend() string { return BackendSQLite }

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return model.StorageError("ping sqlite", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListSpots implements SpotStore.
func (s *SQLiteStore) ListSpots(ctx context.Context) ([]model.SurfSpot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM surf_spots ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, model.StorageError("list spots", err)
	}
	defer rows.Close()

	out := []model.SurfSpot{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, model.StorageError("scan spot", err)
		}
		sp, err := decodeSpot(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError("list spots", err)
	}
	return out, nil
}

// GetSpot implements SpotStore.
func (s *SQLiteStore) GetSpot(ctx context.Context, id string) (model.SurfSpot, error) {
	return getSpot(ctx, s.db, id)
}

// UpsertSpot implements SpotStore.
func (s *SQLiteStore) UpsertSpot(ctx context.Context, spot model.SurfSpot) (model.SurfSpot, error) {
	if err := spot.Validate(); err != nil {
		return model.SurfSpot{}, err
	}

	var out model.SurfSpot
	err := s.inTx(ctx, "upsert spot", func(tx *sql.Tx) error {
		var doc string
		err := tx.QueryRowContext(ctx, `SELECT doc FROM surf_spots WHERE name = ?`, spot.Name).Scan(&doc)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out = spot.Clone()
			out.Derive()
			return insertSpot(ctx, tx, out)
		case err != nil:
			return model.StorageError("find spot by name", err)
		}

		existing, err := decodeSpot(doc)
		if err != nil {
			return err
		}
		existing.Location = spot.Location
		existing.Coordinates = spot.Coordinates
		out = existing
		return updateSpot(ctx, tx, out)
	})
	return out, err
}

// ApplyScore implements SpotStore.
func (s *SQLiteStore) ApplyScore(ctx context.Context, id string, skill risk.SkillLevel, score float64, incidents *int) (model.SurfSpot, error) {
	var out model.SurfSpot
	err := s.mutateSpot(ctx, "apply score", id, func(sp *model.SurfSpot) error {
		if err := sp.ApplySkillScore(skill, score, incidents, s.opts.clock.Now()); err != nil {
			return err
		}
		out = sp.Clone()
		return nil
	})
	return out, err
}

// AppendRecentReport implements SpotStore.
func (s *SQLiteStore) AppendRecentReport(ctx context.Context, spotID, ref string) error {
	return s.mutateSpot(ctx, "append recent report", spotID, func(sp *model.SurfSpot) error {
		sp.PushRecentReport(ref)
		return nil
	})
}

// IncrementIncidents implements SpotStore.
func (s *SQLiteStore) IncrementIncidents(ctx context.Context, spotID string) error {
	return s.mutateSpot(ctx, "increment incidents", spotID, func(sp *model.SurfSpot) error {
		sp.TotalIncidents++
		return nil
	})
}

// CountSpots implements SpotStore.
func (s *SQLiteStore) CountSpots(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM surf_spots`).Scan(&n); err != nil {
		return 0, model.StorageError("count spots", err)
	}
	return n, nil
}

// CreateReport implements ReportStore.
func (s *SQLiteStore) CreateReport(ctx context.Context, r model.HazardReport) error {
	return s.inTx(ctx, "create report", func(tx *sql.Tx) error {
		if _, err := getSpot(ctx, tx, r.SurfSpotID); err != nil {
			return err
		}
		doc, err := json.Marshal(r)
		if err != nil {
			return model.StorageError("encode report", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hazard_reports (id, surf_spot_id, status, report_date, doc) VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.SurfSpotID, string(r.Status), r.ReportDate.UnixNano(), string(doc),
		); err != nil {
			return model.StorageError("insert report", err)
		}
		return nil
	})
}

// GetReport implements ReportStore.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (model.HazardReport, error) {
	return getReport(ctx, s.db, id)
}

// RecentReports implements ReportStore.
func (s *SQLiteStore) RecentReports(ctx context.Context, spotID string, since time.Time) ([]model.HazardReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM hazard_reports
		WHERE surf_spot_id = ? AND status != ? AND report_date >= ?
		ORDER BY report_date DESC, rowid DESC
	`, spotID, string(model.StatusRejected), since.UnixNano())
	if err != nil {
		return nil, model.StorageError("recent reports", err)
	}
	defer rows.Close()

	out := []model.HazardReport{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, model.StorageError("scan report", err)
		}
		var r model.HazardReport
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, model.StorageError("decode report", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError("recent reports", err)
	}
	return out, nil
}

// SetAnalysis implements ReportStore.
func (s *SQLiteStore) SetAnalysis(ctx context.Context, id string, a model.Analysis) error {
	return s.mutateReport(ctx, "set analysis", id, func(r *model.HazardReport) {
		r.Analysis = &a
	})
}

// SetStatus implements ReportStore.
func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status model.Status) (model.HazardReport, error) {
	var out model.HazardReport
	err := s.mutateReport(ctx, "set status", id, func(r *model.HazardReport) {
		r.SetStatus(status)
		out = r.Clone()
	})
	return out, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.StorageError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return model.StorageError(op, err)
	}
	return nil
}

func (s *SQLiteStore) mutateSpot(ctx context.Context, op, id string, fn func(*model.SurfSpot) error) error {
	return s.inTx(ctx, op, func(tx *sql.Tx) error {
		sp, err := getSpot(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&sp); err != nil {
			return err
		}
		return updateSpot(ctx, tx, sp)
	})
}

func (s *SQLiteStore) mutateReport(ctx context.Context, op, id string, fn func(*model.HazardReport)) error {
	return s.inTx(ctx, op, func(tx *sql.Tx) error {
		r, err := getReport(ctx, tx, id)
		if err != nil {
			return err
		}
		fn(&r)
		doc, err := json.Marshal(r)
		if err != nil {
			return model.StorageError("encode report", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE hazard_reports SET status = ?, doc = ? WHERE id = ?`,
			string(r.Status), string(doc), r.ID,
		); err != nil {
			return model.StorageError(op, err)
		}
		return nil
	})
}

func getSpot(ctx context.Context, q queryer, id string) (model.SurfSpot, error) {
	var doc string
	err := q.QueryRowContext(ctx, `SELECT doc FROM surf_spots WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SurfSpot{}, model.NotFoundf("surf spot %q", id)
	}
	if err != nil {
		return model.SurfSpot{}, model.StorageError("get spot", err)
	}
	return decodeSpot(doc)
}

func getReport(ctx context.Context, q queryer, id string) (model.HazardReport, error) {
	var doc string
	err := q.QueryRowContext(ctx, `SELECT doc FROM hazard_reports WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.HazardReport{}, model.NotFoundf("hazard report %q", id)
	}
	if err != nil {
		return model.HazardReport{}, model.StorageError("get report", err)
	}
	var r model.HazardReport
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return model.HazardReport{}, model.StorageError("decode report", err)
	}
	return r, nil
}

func decodeSpot(doc string) (model.SurfSpot, error) {
	var sp model.SurfSpot
	if err := json.Unmarshal([]byte(doc), &sp); err != nil {
		return model.SurfSpot{}, model.StorageError("decode spot", err)
	}
	sp.Derive()
	return sp, nil
}

func insertSpot(ctx context.Context, tx *sql.Tx, sp model.SurfSpot) error {
	doc, err := json.Marshal(sp)
	if err != nil {
		return model.StorageError("encode spot", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO surf_spots (id, name, doc, updated_at) VALUES (?, ?, ?, ?)`,
		sp.ID, sp.Name, string(doc), sp.LastUpdated.UTC(),
	); err != nil {
		return model.StorageError("insert spot", err)
	}
	return nil
}

func updateSpot(ctx context.Context, tx *sql.Tx, sp model.SurfSpot) error {
	doc, err := json.Marshal(sp)
	if err != nil {
		return model.StorageError("encode spot", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE surf_spots SET name = ?, doc = ?, updated_at = ? WHERE id = ?`,
		sp.Name, string(doc), sp.LastUpdated.UTC(), sp.ID,
	); err != nil {
		return model.StorageError(fmt.Sprintf("update spot %s", sp.ID), err)
	}
	return nil
}
