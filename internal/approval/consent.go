package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"forgeline/pkg/types"

	"github.com/google/uuid"
)

// ConsentStore holds standing grants keyed by operation type and
// scope. Grants are persisted to a JSON file so consent survives
// restarts; an expired grant is treated exactly like an absent one.
type ConsentStore struct {
	mu      sync.Mutex
	path    string
	records map[string]*types.ConsentRecord // key: operationType|scope
}

func consentKey(operationType, scope string) string {
	return operationType + "|" + scope
}

// NewConsentStore loads existing consent records from path, creating
// an empty store if the file does not exist yet.
func NewConsentStore(path string) (*ConsentStore, error) {
	store := &ConsentStore{
		path:    path,
		records: make(map[string]*types.ConsentRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading consent file: %w", err)
	}

	var records []*types.ConsentRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing consent file: %w", err)
	}
	for _, record := range records {
		store.records[consentKey(record.OperationType, record.Scope)] = record
	}
	return store, nil
}

// Grant records standing consent for an operation type within a
// scope. Scope "*" covers every scope. A later grant for the same
// operation and scope replaces the earlier one.
func (s *ConsentStore) Grant(operationType, scope string, expiresAt *time.Time, conditions map[string]any) (*types.ConsentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &types.ConsentRecord{
		ID:            uuid.New().String(),
		OperationType: operationType,
		Scope:         scope,
		Granted:       true,
		GrantedAt:     time.Now().UTC(),
		ExpiresAt:     expiresAt,
		Conditions:    conditions,
	}
	s.records[consentKey(operationType, scope)] = record

	if err := s.save(); err != nil {
		return nil, err
	}
	return record, nil
}

// Revoke removes consent for an operation type within a scope.
// Revoking a grant that does not exist is a no-op.
func (s *ConsentStore) Revoke(operationType, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := consentKey(operationType, scope)
	if _, exists := s.records[key]; !exists {
		return nil
	}
	delete(s.records, key)
	return s.save()
}

// Check reports whether standing consent covers the operation in the
// given scope, consulting the exact scope first and the "*" wildcard
// second.
func (s *ConsentStore) Check(operationType, scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid(consentKey(operationType, scope)) {
		return true
	}
	return s.valid(consentKey(operationType, "*"))
}

func (s *ConsentStore) valid(key string) bool {
	record, exists := s.records[key]
	if !exists || !record.Granted {
		return false
	}
	if record.ExpiresAt != nil && time.Now().After(*record.ExpiresAt) {
		return false
	}
	return true
}

// List returns all stored consent records, including expired ones
func (s *ConsentStore) List() []types.ConsentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.ConsentRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, *record)
	}
	return out
}

func (s *ConsentStore) save() error {
	records := make([]*types.ConsentRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding consent records: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating consent dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing consent file: %w", err)
	}
	return nil
}
