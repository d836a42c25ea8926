package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/labwire/workcell/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements core.RunStore on a local SQLite database. Records
// are stored as JSON blobs alongside the columns needed for listing and
// lock arbitration; SQLite's transaction serialization provides the per-key
// atomicity the contract requires.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs
// migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single writer keeps lock CAS simple and is plenty for lab scale.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		seq INTEGER,
		data BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS workflow_seq (
		n INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		data BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS locks (
		resource_id TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		acquired_at TIMESTAMP NOT NULL,
		ttl_seconds INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO workflow_seq (n) SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM workflow_seq)`); err != nil {
		return fmt.Errorf("seeding sequence: %w", err)
	}
	return nil
}

// PutWorkflow inserts or replaces a workflow, assigning a submission
// sequence number on first insert.
func (s *SQLiteStore) PutWorkflow(ctx context.Context, wf *core.Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return core.ErrInternal("encoding workflow", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, `SELECT seq FROM workflows WHERE id = ?`, string(wf.ID)).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.QueryRowContext(ctx, `UPDATE workflow_seq SET n = n + 1 RETURNING n`).Scan(&seq); err != nil {
			return fmt.Errorf("allocating sequence: %w", err)
		}
	} else if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO workflows (id, name, status, created_at, seq, data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(wf.ID), wf.Definition.Name, string(wf.Status), wf.CreatedAt, seq, data)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetWorkflow returns the stored workflow.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM workflows WHERE id = ?`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("workflow", string(id))
	}
	if err != nil {
		return nil, err
	}
	var wf core.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, core.ErrInternal("decoding workflow", err)
	}
	return &wf, nil
}

// DeleteWorkflow removes a workflow.
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id core.WorkflowID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound("workflow", string(id))
	}
	return nil
}

// ListWorkflows returns all workflows in submission order.
func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]*core.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM workflows ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Workflow
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var wf core.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, core.ErrInternal("decoding workflow", err)
		}
		out = append(out, &wf)
	}
	return out, rows.Err()
}

// UpdateWorkflow applies fn inside a transaction.
func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, id core.WorkflowID, fn func(*core.Workflow) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var data []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM workflows WHERE id = ?`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound("workflow", string(id))
	}
	if err != nil {
		return err
	}

	var wf core.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return core.ErrInternal("decoding workflow", err)
	}
	if err := fn(&wf); err != nil {
		return err
	}
	updated, err := json.Marshal(&wf)
	if err != nil {
		return core.ErrInternal("encoding workflow", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE workflows SET status = ?, data = ? WHERE id = ?`,
		string(wf.Status), updated, string(id)); err != nil {
		return err
	}
	return tx.Commit()
}

// PutLocation inserts or replaces a location.
func (s *SQLiteStore) PutLocation(ctx context.Context, loc *core.Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return core.ErrInternal("encoding location", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO locations (id, data) VALUES (?, ?)`,
		string(loc.ID), data)
	return err
}

// GetLocation returns the stored location.
func (s *SQLiteStore) GetLocation(ctx context.Context, id core.LocationID) (*core.Location, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM locations WHERE id = ?`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("location", string(id))
	}
	if err != nil {
		return nil, err
	}
	var loc core.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, core.ErrInternal("decoding location", err)
	}
	return &loc, nil
}

// DeleteLocation removes a location.
func (s *SQLiteStore) DeleteLocation(ctx context.Context, id core.LocationID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound("location", string(id))
	}
	return nil
}

// ListLocations returns all locations ordered by id.
func (s *SQLiteStore) ListLocations(ctx context.Context) ([]*core.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM locations ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Location
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var loc core.Location
		if err := json.Unmarshal(data, &loc); err != nil {
			return nil, core.ErrInternal("decoding location", err)
		}
		out = append(out, &loc)
	}
	return out, rows.Err()
}

// UpdateLocation applies fn inside a transaction.
func (s *SQLiteStore) UpdateLocation(ctx context.Context, id core.LocationID, fn func(*core.Location) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var data []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM locations WHERE id = ?`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound("location", string(id))
	}
	if err != nil {
		return err
	}

	var loc core.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return core.ErrInternal("decoding location", err)
	}
	if err := fn(&loc); err != nil {
		return err
	}
	updated, err := json.Marshal(&loc)
	if err != nil {
		return core.ErrInternal("encoding location", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE locations SET data = ? WHERE id = ?`, updated, string(id)); err != nil {
		return err
	}
	return tx.Commit()
}

// AcquireLock is a compare-and-set inside a transaction: expired rows are
// overwritten, unexpired rows owned by another holder refuse the claim.
func (s *SQLiteStore) AcquireLock(ctx context.Context, resourceID, holderID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = core.DefaultLockTTL
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var holder string
	var acquiredAt time.Time
	var ttlSeconds int64
	err = tx.QueryRowContext(ctx,
		`SELECT holder_id, acquired_at, ttl_seconds FROM locks WHERE resource_id = ?`,
		resourceID).Scan(&holder, &acquiredAt, &ttlSeconds)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, err
	default:
		existing := core.ResourceLock{
			ResourceID: resourceID,
			HolderID:   holder,
			AcquiredAt: acquiredAt,
			TTL:        time.Duration(ttlSeconds) * time.Second,
		}
		if !existing.Expired(time.Now()) && holder != holderID {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO locks (resource_id, holder_id, acquired_at, ttl_seconds)
		VALUES (?, ?, ?, ?)`,
		resourceID, holderID, time.Now(), int64(ttl/time.Second))
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ReleaseLock deletes the lock row if held by the given holder.
func (s *SQLiteStore) ReleaseLock(ctx context.Context, resourceID, holderID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var holder string
	var acquiredAt time.Time
	var ttlSeconds int64
	err = tx.QueryRowContext(ctx,
		`SELECT holder_id, acquired_at, ttl_seconds FROM locks WHERE resource_id = ?`,
		resourceID).Scan(&holder, &acquiredAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	existing := core.ResourceLock{
		ResourceID: resourceID,
		HolderID:   holder,
		AcquiredAt: acquiredAt,
		TTL:        time.Duration(ttlSeconds) * time.Second,
	}
	if existing.Expired(time.Now()) || holder != holderID {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE resource_id = ?`, resourceID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// IsLocked reports whether an unexpired lock exists and who holds it.
func (s *SQLiteStore) IsLocked(ctx context.Context, resourceID string) (bool, string, error) {
	var holder string
	var acquiredAt time.Time
	var ttlSeconds int64
	err := s.db.QueryRowContext(ctx,
		`SELECT holder_id, acquired_at, ttl_seconds FROM locks WHERE resource_id = ?`,
		resourceID).Scan(&holder, &acquiredAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}

	lock := core.ResourceLock{
		ResourceID: resourceID,
		HolderID:   holder,
		AcquiredAt: acquiredAt,
		TTL:        time.Duration(ttlSeconds) * time.Second,
	}
	if lock.Expired(time.Now()) {
		return false, "", nil
	}
	return true, holder, nil
}

var _ core.RunStore = (*SQLiteStore)(nil)
