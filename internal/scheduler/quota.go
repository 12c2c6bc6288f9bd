package scheduler

import (
	"fmt"
	"sync"
)

type quota struct {
	limit int
	used  int
}

// QuotaManager tracks per-resource-type limits. CheckQuota is a pure
// read; callers that admit work must call Consume, and Release when
// the work finishes. An unknown resource type is unlimited.
type QuotaManager struct {
	mu     sync.Mutex
	quotas map[string]*quota
}

// NewQuotaManager creates a manager with no limits set
func NewQuotaManager() *QuotaManager {
	return &QuotaManager{quotas: make(map[string]*quota)}
}

// SetQuota sets the limit for a resource type, resetting usage
func (m *QuotaManager) SetQuota(resourceType string, limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas[resourceType] = &quota{limit: limit}
}

// CheckQuota reports whether amount units of the resource type fit
// within the remaining quota. It does not reserve anything.
func (m *QuotaManager) CheckQuota(resourceType string, amount int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, exists := m.quotas[resourceType]
	if !exists {
		return true
	}
	return q.used+amount <= q.limit
}

// Consume reserves amount units of the resource type
func (m *QuotaManager) Consume(resourceType string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, exists := m.quotas[resourceType]
	if !exists {
		return nil
	}
	if q.used+amount > q.limit {
		return fmt.Errorf("quota exceeded for %s: %d used + %d requested > %d limit",
			resourceType, q.used, amount, q.limit)
	}
	q.used += amount
	return nil
}

// Release returns amount units of the resource type. Usage never goes
// below zero.
func (m *QuotaManager) Release(resourceType string, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, exists := m.quotas[resourceType]
	if !exists {
		return
	}
	q.used -= amount
	if q.used < 0 {
		q.used = 0
	}
}

// Used returns the current usage for a resource type
func (m *QuotaManager) Used(resourceType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, exists := m.quotas[resourceType]; exists {
		return q.used
	}
	return 0
}
