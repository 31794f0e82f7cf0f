package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no prediction has the requested ID.
var ErrNotFound = errors.New("prediction not found")

// Prediction is one row of prediction history.
type Prediction struct {
	ID           string
	CreatedAt    time.Time
	Style        string
	Backend      string
	Device       string
	Strength     float64
	InputRef     string
	InputWidth   int
	InputHeight  int
	OutputWidth  int
	OutputHeight int
	OutputPath   string
	OutputBytes  int64
	Duration     time.Duration
	Status       string
	ErrorKind    string
	ErrorMessage string
}

// Succeeded reports whether the prediction produced an artifact.
func (p Prediction) Succeeded() bool {
	return p.Status == "succeeded"
}

// Repository reads and writes prediction history.
type Repository struct {
	db *Database
}

// NewRepository returns a repository backed by database.
func NewRepository(database *Database) *Repository {
	return &Repository{db: database}
}

const predictionColumns = `id, created_at, style, backend, device, strength, input_ref,
	input_width, input_height, output_width, output_height, output_path, output_bytes,
	duration_ms, status, error_kind, error_message`

// InsertPrediction stores p. A zero CreatedAt is set to now.
func (r *Repository) InsertPrediction(ctx context.Context, p Prediction) error {
	if p.ID == "" {
		return fmt.Errorf("prediction ID is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	return r.db.with(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO predictions (`+predictionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.CreatedAt.UnixMilli(), p.Style, p.Backend, p.Device, p.Strength, p.InputRef,
			p.InputWidth, p.InputHeight, p.OutputWidth, p.OutputHeight, p.OutputPath, p.OutputBytes,
			p.Duration.Milliseconds(), p.Status, p.ErrorKind, p.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("insert prediction %s: %w", p.ID, err)
		}
		return nil
	})
}

// GetPrediction returns the prediction with id or ErrNotFound.
func (r *Repository) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	var p *Prediction
	err := r.db.with(func(conn *sql.DB) error {
		row := conn.QueryRowContext(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = ?`, id)
		var err error
		p, err = scanPrediction(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListRecent returns up to limit predictions, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 20
	}

	var out []Prediction
	err := r.db.with(func(conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT `+predictionColumns+` FROM predictions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query predictions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPrediction(rows)
			if err != nil {
				return err
			}
			out = append(out, *p)
		}
		return rows.Err()
	})
	return out, err
}

// Count returns the number of stored predictions.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.with(func(conn *sql.DB) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n)
	})
	return n, err
}

// DeleteOlderThan removes predictions created before cutoff and returns how many were deleted.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.db.with(func(conn *sql.DB) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM predictions WHERE created_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return fmt.Errorf("delete old predictions: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(s rowScanner) (*Prediction, error) {
	var (
		p          Prediction
		createdAt  int64
		durationMS int64
	)
	err := s.Scan(&p.ID, &createdAt, &p.Style, &p.Backend, &p.Device, &p.Strength, &p.InputRef,
		&p.InputWidth, &p.InputHeight, &p.OutputWidth, &p.OutputHeight, &p.OutputPath, &p.OutputBytes,
		&durationMS, &p.Status, &p.ErrorKind, &p.ErrorMessage)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	p.Duration = time.Duration(durationMS) * time.Millisecond
	return &p, nil
}
