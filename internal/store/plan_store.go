// Package store persists execution plans and run reports in SQLite. Plans
// are stored with their integrity hash and re-verified on load, so a plan
// read back from disk is guaranteed to be the plan that was written.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"scoreflow/internal/logging"
	"scoreflow/internal/plan"
	"scoreflow/internal/types"
)

// PlanStore is a SQLite-backed store for plans and run reports.
type PlanStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewPlanStore opens (creating if needed) the SQLite database at path and
// ensures the schema exists.
func NewPlanStore(path string) (*PlanStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewPlanStore")
	defer timer.Stop()

	logging.Store("opening plan store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &PlanStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PlanStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		plan_id        TEXT PRIMARY KEY,
		integrity_hash TEXT NOT NULL,
		correlation_id TEXT NOT NULL,
		creation_time  TEXT NOT NULL,
		task_count     INTEGER NOT NULL,
		tasks_json     TEXT NOT NULL,
		stored_at      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_reports (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		plan_id        TEXT NOT NULL,
		correlation_id TEXT NOT NULL,
		mode           TEXT NOT NULL,
		batch_size     INTEGER NOT NULL,
		total_items    INTEGER NOT NULL,
		succeeded      INTEGER NOT NULL,
		failed         INTEGER NOT NULL,
		success_rate   REAL NOT NULL,
		report_json    TEXT NOT NULL,
		stored_at      TEXT NOT NULL,
		FOREIGN KEY (plan_id) REFERENCES plans(plan_id)
	);

	CREATE INDEX IF NOT EXISTS idx_run_reports_plan ON run_reports(plan_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	logging.StoreDebug("plan store schema ready")
	return nil
}

// SavePlan persists a plan. Saving the same plan id again replaces the
// previous row.
func (s *PlanStore) SavePlan(p *types.ExecutionPlan) error {
	if p == nil {
		return fmt.Errorf("nil execution plan")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tasksJSON, err := json.Marshal(p.Tasks)
	if err != nil {
		return fmt.Errorf("failed to serialize tasks: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO plans
			(plan_id, integrity_hash, correlation_id, creation_time, task_count, tasks_json, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PlanID, p.IntegrityHash, p.CorrelationID, p.CreationTime,
		len(p.Tasks), string(tasksJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save plan %s: %w", p.PlanID, err)
	}
	logging.Store("saved plan %s (%d tasks)", p.PlanID, len(p.Tasks))
	return nil
}

// LoadPlan reads a plan back and re-verifies its integrity hash against the
// stored tasks. A tampered or corrupted row fails the load.
func (s *PlanStore) LoadPlan(planID string) (*types.ExecutionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		integrityHash, correlationID, creationTime, tasksJSON string
		taskCount                                             int
	)
	err := s.db.QueryRow(`
		SELECT integrity_hash, correlation_id, creation_time, task_count, tasks_json
		FROM plans WHERE plan_id = ?`, planID).
		Scan(&integrityHash, &correlationID, &creationTime, &taskCount, &tasksJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan %s not found", planID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", planID, err)
	}

	var tasks []types.Task
	if err := json.Unmarshal([]byte(tasksJSON), &tasks); err != nil {
		return nil, fmt.Errorf("failed to deserialize tasks for plan %s: %w", planID, err)
	}

	p, err := types.NewExecutionPlan(planID, tasks, taskCount, integrityHash, creationTime, correlationID)
	if err != nil {
		return nil, fmt.Errorf("stored plan %s is inconsistent: %w", planID, err)
	}

	ok, err := plan.VerifyIntegrity(p)
	if err != nil {
		return nil, fmt.Errorf("integrity verification of plan %s failed: %w", planID, err)
	}
	if !ok {
		return nil, fmt.Errorf("plan %s failed integrity verification: stored hash does not match tasks", planID)
	}
	logging.StoreDebug("loaded plan %s (%d tasks), integrity verified", planID, len(tasks))
	return p, nil
}

// ListPlans returns stored plan ids, newest first.
func (s *PlanStore) ListPlans() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT plan_id FROM plans ORDER BY stored_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RunRecord is a stored run report row.
type RunRecord struct {
	PlanID        string
	CorrelationID string
	Mode          string
	BatchSize     int
	TotalItems    int
	Succeeded     int
	Failed        int
	SuccessRate   float64
	StoredAt      string
}

// SaveRunReport persists the aggregated outcome of one plan execution.
// full is the complete report value, serialized to JSON alongside the
// queryable summary columns.
func (s *PlanStore) SaveRunReport(rec RunRecord, full any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reportJSON, err := json.Marshal(full)
	if err != nil {
		return fmt.Errorf("failed to serialize run report: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO run_reports
			(plan_id, correlation_id, mode, batch_size, total_items, succeeded, failed, success_rate, report_json, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PlanID, rec.CorrelationID, rec.Mode, rec.BatchSize,
		rec.TotalItems, rec.Succeeded, rec.Failed, rec.SuccessRate,
		string(reportJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save run report for plan %s: %w", rec.PlanID, err)
	}
	logging.Store("saved run report for plan %s (%d/%d succeeded)", rec.PlanID, rec.Succeeded, rec.TotalItems)
	return nil
}

// RunReports returns stored run summaries for a plan, newest first.
func (s *PlanStore) RunReports(planID string) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT plan_id, correlation_id, mode, batch_size, total_items, succeeded, failed, success_rate, stored_at
		FROM run_reports WHERE plan_id = ? ORDER BY stored_at DESC`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run reports: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.PlanID, &r.CorrelationID, &r.Mode, &r.BatchSize,
			&r.TotalItems, &r.Succeeded, &r.Failed, &r.SuccessRate, &r.StoredAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close flushes and closes the underlying database.
func (s *PlanStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
