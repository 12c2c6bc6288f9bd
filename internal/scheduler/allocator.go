package scheduler

import "sync"

// ResourceSpec describes what a mission holds while executing
type ResourceSpec struct {
	CPU         int
	MemoryMB    int
	RunnerSlots int
}

// ResourceAllocator records which resources each mission currently
// holds, keyed by mission id.
type ResourceAllocator struct {
	mu          sync.Mutex
	allocations map[string]ResourceSpec
}

// NewResourceAllocator creates an empty allocator
func NewResourceAllocator() *ResourceAllocator {
	return &ResourceAllocator{allocations: make(map[string]ResourceSpec)}
}

// Allocate records the resources held by a mission, replacing any
// prior record for the same id.
func (a *ResourceAllocator) Allocate(missionID string, spec ResourceSpec) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocations[missionID] = spec
}

// Deallocate removes the record for a mission. Removing an unknown id
// is a no-op.
func (a *ResourceAllocator) Deallocate(missionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocations, missionID)
}

// Get returns the resources held by a mission
func (a *ResourceAllocator) Get(missionID string) (ResourceSpec, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	spec, exists := a.allocations[missionID]
	return spec, exists
}

// Count returns the number of missions holding resources
func (a *ResourceAllocator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.allocations)
}
