// Package state persists missions, steps, and approval history to
// SQLite so a mission can be inspected and resumed across restarts.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"forgeline/pkg/types"

	_ "github.com/glebarez/go-sqlite"
)

// ErrNotFound marks lookups for missions that were never saved
var ErrNotFound = errors.New("mission not found")

// Store manages mission persistence
type Store struct {
	DB *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-mission write serialization
}

// Open opens a SQLite database at the given path and prepares the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Handle lock contention gracefully
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	store := &Store{DB: db, locks: make(map[string]*sync.Mutex)}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS missions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		total_steps INTEGER DEFAULT 0,
		completed_steps INTEGER DEFAULT 0,
		last_error TEXT,
		metadata TEXT
	);

	CREATE TABLE IF NOT EXISTS steps (
		step_id TEXT NOT NULL,
		mission_id TEXT NOT NULL,
		status TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT,
		started_at TEXT,
		completed_at TEXT,
		error TEXT,
		inputs TEXT,
		outputs TEXT,
		PRIMARY KEY (mission_id, step_id),
		FOREIGN KEY (mission_id) REFERENCES missions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		description TEXT,
		risk_level TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		resolved_at TEXT,
		resolved_by TEXT,
		reason TEXT,
		context TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_missions_status ON missions(status);
	CREATE INDEX IF NOT EXISTS idx_steps_mission ON steps(mission_id);
	CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);
	`

	if _, err := s.DB.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// missionLock returns the write lock for a mission id
func (s *Store) missionLock(missionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, exists := s.locks[missionID]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[missionID] = lock
	}
	return lock
}

// SaveMission inserts or replaces a mission record
func (s *Store) SaveMission(mission *types.MissionState) error {
	lock := s.missionLock(mission.ID)
	lock.Lock()
	defer lock.Unlock()

	metadata, err := encodeMap(mission.Metadata)
	if err != nil {
		return fmt.Errorf("encoding mission metadata: %w", err)
	}

	_, err = s.DB.Exec(`
		INSERT INTO missions (id, status, description, created_at, started_at, completed_at,
			total_steps, completed_steps, last_error, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			description = excluded.description,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			total_steps = excluded.total_steps,
			completed_steps = excluded.completed_steps,
			last_error = excluded.last_error,
			metadata = excluded.metadata
	`, mission.ID, mission.Status, mission.Description,
		mission.CreatedAt.UTC().Format(time.RFC3339Nano),
		encodeTime(mission.StartedAt), encodeTime(mission.CompletedAt),
		mission.TotalSteps, mission.CompletedSteps, mission.LastError, metadata)
	if err != nil {
		return fmt.Errorf("saving mission %s: %w", mission.ID, err)
	}
	return nil
}

// LoadMission loads a mission by id
func (s *Store) LoadMission(missionID string) (*types.MissionState, error) {
	row := s.DB.QueryRow(`
		SELECT id, status, description, created_at, started_at, completed_at,
			total_steps, completed_steps, last_error, metadata
		FROM missions WHERE id = ?
	`, missionID)

	mission, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loading mission %s: %w", missionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading mission %s: %w", missionID, err)
	}
	return mission, nil
}

// ListMissions returns all missions, newest first
func (s *Store) ListMissions() ([]types.MissionState, error) {
	rows, err := s.DB.Query(`
		SELECT id, status, description, created_at, started_at, completed_at,
			total_steps, completed_steps, last_error, metadata
		FROM missions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing missions: %w", err)
	}
	defer rows.Close()

	var missions []types.MissionState
	for rows.Next() {
		mission, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mission: %w", err)
		}
		missions = append(missions, *mission)
	}
	return missions, rows.Err()
}

// SaveStep inserts or replaces a step record
func (s *Store) SaveStep(step *types.StepState) error {
	lock := s.missionLock(step.MissionID)
	lock.Lock()
	defer lock.Unlock()

	inputs, err := encodeMap(step.Inputs)
	if err != nil {
		return fmt.Errorf("encoding step inputs: %w", err)
	}
	outputs, err := encodeMap(step.Outputs)
	if err != nil {
		return fmt.Errorf("encoding step outputs: %w", err)
	}

	_, err = s.DB.Exec(`
		INSERT INTO steps (step_id, mission_id, status, type, description,
			started_at, completed_at, error, inputs, outputs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mission_id, step_id) DO UPDATE SET
			status = excluded.status,
			type = excluded.type,
			description = excluded.description,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error,
			inputs = excluded.inputs,
			outputs = excluded.outputs
	`, step.StepID, step.MissionID, step.Status, step.Type, step.Description,
		encodeTime(step.StartedAt), encodeTime(step.CompletedAt),
		step.Error, inputs, outputs)
	if err != nil {
		return fmt.Errorf("saving step %s: %w", step.StepID, err)
	}
	return nil
}

// LoadSteps returns all steps of a mission in step id order
func (s *Store) LoadSteps(missionID string) ([]types.StepState, error) {
	rows, err := s.DB.Query(`
		SELECT step_id, mission_id, status, type, description,
			started_at, completed_at, error, inputs, outputs
		FROM steps WHERE mission_id = ? ORDER BY step_id
	`, missionID)
	if err != nil {
		return nil, fmt.Errorf("loading steps for %s: %w", missionID, err)
	}
	defer rows.Close()

	var steps []types.StepState
	for rows.Next() {
		var step types.StepState
		var startedAt, completedAt, inputs, outputs sql.NullString
		if err := rows.Scan(&step.StepID, &step.MissionID, &step.Status, &step.Type,
			&step.Description, &startedAt, &completedAt, &step.Error, &inputs, &outputs); err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		if step.StartedAt, err = decodeTime(startedAt); err != nil {
			return nil, err
		}
		if step.CompletedAt, err = decodeTime(completedAt); err != nil {
			return nil, err
		}
		if step.Inputs, err = decodeMap(inputs); err != nil {
			return nil, err
		}
		if step.Outputs, err = decodeMap(outputs); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// RecordApproval appends a resolved approval request to the durable
// history.
func (s *Store) RecordApproval(request types.ApprovalRequest) error {
	context, err := encodeMap(request.Context)
	if err != nil {
		return fmt.Errorf("encoding approval context: %w", err)
	}

	_, err = s.DB.Exec(`
		INSERT INTO approvals (id, operation, description, risk_level, status,
			created_at, resolved_at, resolved_by, reason, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			resolved_at = excluded.resolved_at,
			resolved_by = excluded.resolved_by,
			reason = excluded.reason
	`, request.ID, request.Operation, request.Description, request.RiskLevel,
		request.Status, request.CreatedAt.UTC().Format(time.RFC3339Nano),
		encodeTime(request.ResolvedAt), request.ResolvedBy, request.Reason, context)
	if err != nil {
		return fmt.Errorf("recording approval %s: %w", request.ID, err)
	}
	return nil
}

// ListApprovals returns the durable approval history, oldest first
func (s *Store) ListApprovals() ([]types.ApprovalRequest, error) {
	rows, err := s.DB.Query(`
		SELECT id, operation, description, risk_level, status,
			created_at, resolved_at, resolved_by, reason, context
		FROM approvals ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("listing approvals: %w", err)
	}
	defer rows.Close()

	var requests []types.ApprovalRequest
	for rows.Next() {
		var request types.ApprovalRequest
		var createdAt string
		var resolvedAt, context sql.NullString
		if err := rows.Scan(&request.ID, &request.Operation, &request.Description,
			&request.RiskLevel, &request.Status, &createdAt, &resolvedAt,
			&request.ResolvedBy, &request.Reason, &context); err != nil {
			return nil, fmt.Errorf("scanning approval: %w", err)
		}
		if request.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if request.ResolvedAt, err = decodeTime(resolvedAt); err != nil {
			return nil, err
		}
		if request.Context, err = decodeMap(context); err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (*types.MissionState, error) {
	var mission types.MissionState
	var createdAt string
	var startedAt, completedAt, metadata sql.NullString

	err := row.Scan(&mission.ID, &mission.Status, &mission.Description, &createdAt,
		&startedAt, &completedAt, &mission.TotalSteps, &mission.CompletedSteps,
		&mission.LastError, &metadata)
	if err != nil {
		return nil, err
	}

	if mission.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if mission.StartedAt, err = decodeTime(startedAt); err != nil {
		return nil, err
	}
	if mission.CompletedAt, err = decodeTime(completedAt); err != nil {
		return nil, err
	}
	if mission.Metadata, err = decodeMap(metadata); err != nil {
		return nil, err
	}
	return &mission, nil
}

func encodeTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t, nil
}

func encodeMap(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeMap(value sql.NullString) (map[string]any, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(value.String), &m); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return m, nil
}
