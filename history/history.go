// Package history records completed training runs in a local SQLite
// database, one row per sweep iteration plus its per-epoch metrics, so
// batch size sweeps can be compared after the fact.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/tsawler/wastenet/training"
)

var (
	// ErrRunNotFound is returned when a run id has no row.
	ErrRunNotFound = errors.New("run not found")
)

// Timestamps are stored as UnixNano so runs started within the same second
// still order correctly.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    model_name    TEXT NOT NULL,
    batch_size    INTEGER NOT NULL,
    learning_rate REAL NOT NULL,
    seed          INTEGER NOT NULL,
    epochs_run    INTEGER NOT NULL,
    stopped_early INTEGER NOT NULL,
    best_val_loss REAL NOT NULL,
    accuracy      REAL NOT NULL,
    mean_accuracy REAL NOT NULL,
    started_at    INTEGER NOT NULL,
    finished_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS epochs (
    run_id        TEXT NOT NULL,
    epoch         INTEGER NOT NULL,
    loss          REAL NOT NULL,
    accuracy      REAL NOT NULL,
    val_loss      REAL NOT NULL,
    val_accuracy  REAL NOT NULL,
    learning_rate REAL NOT NULL,
    PRIMARY KEY (run_id, epoch),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

// Run is one completed sweep iteration. Accuracy is the evaluator's blended
// headline figure; MeanAccuracy is the plain mean over the same rounds.
type Run struct {
	ID           string
	ModelName    string
	BatchSize    int
	LearningRate float64
	Seed         int64
	EpochsRun    int
	StoppedEarly bool
	BestValLoss  float64
	Accuracy     float64
	MeanAccuracy float64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// EpochMetrics is one epoch row of a run. Runs without validation data
// record zero val columns.
type EpochMetrics struct {
	Epoch        int
	Loss         float64
	Accuracy     float64
	ValLoss      float64
	ValAccuracy  float64
	LearningRate float64
}

// Store is the run history database. SQLite allows one writer at a time, so
// the connection pool is pinned to a single connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RecordRun writes a run and its epoch rows in one transaction and returns
// the run id, generating one when the caller left it empty.
func (s *Store) RecordRun(ctx context.Context, run *Run, epochs []EpochMetrics) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run cannot be nil")
	}
	if run.BatchSize < 1 {
		return "", fmt.Errorf("batch size must be positive, got %d", run.BatchSize)
	}
	if run.StartedAt.IsZero() {
		return "", fmt.Errorf("run has no start time")
	}

	id := run.ID
	if id == "" {
		id = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, model_name, batch_size, learning_rate, seed,
			epochs_run, stopped_early, best_val_loss, accuracy, mean_accuracy,
			started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, run.ModelName, run.BatchSize, run.LearningRate, run.Seed,
		run.EpochsRun, run.StoppedEarly, run.BestValLoss, run.Accuracy, run.MeanAccuracy,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, e := range epochs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO epochs (run_id, epoch, loss, accuracy, val_loss, val_accuracy, learning_rate)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, e.Epoch, e.Loss, e.Accuracy, e.ValLoss, e.ValAccuracy, e.LearningRate)
		if err != nil {
			return "", fmt.Errorf("failed to insert epoch %d: %w", e.Epoch, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// Run returns a single run by id.
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model_name, batch_size, learning_rate, seed, epochs_run,
			stopped_early, best_val_loss, accuracy, mean_accuracy, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	return run, nil
}

// Runs returns every recorded run ordered by start time, oldest first,
// which is the order the driver prints its sweep summary in.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_name, batch_size, learning_rate, seed, epochs_run,
			stopped_early, best_val_loss, accuracy, mean_accuracy, started_at, finished_at
		FROM runs ORDER BY started_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Epochs returns a run's per-epoch metrics in epoch order.
func (s *Store) Epochs(ctx context.Context, runID string) ([]EpochMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT epoch, loss, accuracy, val_loss, val_accuracy, learning_rate
		FROM epochs WHERE run_id = ? ORDER BY epoch
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var epochs []EpochMetrics
	for rows.Next() {
		var e EpochMetrics
		if err := rows.Scan(&e.Epoch, &e.Loss, &e.Accuracy, &e.ValLoss, &e.ValAccuracy, &e.LearningRate); err != nil {
			return nil, fmt.Errorf("failed to read epoch: %w", err)
		}
		epochs = append(epochs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate epochs: %w", err)
	}
	return epochs, nil
}

// EpochsFromHistory flattens a training history into epoch rows, numbering
// epochs from 1. Missing series leave their columns at zero.
func EpochsFromHistory(h *training.History) []EpochMetrics {
	if h == nil {
		return nil
	}
	epochs := make([]EpochMetrics, 0, len(h.Loss))
	for i := range h.Loss {
		e := EpochMetrics{
			Epoch:    i + 1,
			Loss:     h.Loss[i],
			Accuracy: h.Accuracy[i],
		}
		if i < len(h.ValLoss) {
			e.ValLoss = h.ValLoss[i]
			e.ValAccuracy = h.ValAccuracy[i]
		}
		if i < len(h.LearningRate) {
			e.LearningRate = h.LearningRate[i]
		}
		epochs = append(epochs, e)
	}
	return epochs
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedNs, finishedNs int64
	err := row.Scan(&run.ID, &run.ModelName, &run.BatchSize, &run.LearningRate,
		&run.Seed, &run.EpochsRun, &run.StoppedEarly, &run.BestValLoss,
		&run.Accuracy, &run.MeanAccuracy, &startedNs, &finishedNs)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedNs)
	run.FinishedAt = time.Unix(0, finishedNs)
	return &run, nil
}
