package scheduler

import (
	"fmt"
	"log"
	"sync"
)

// Resource type names used by quota bookkeeping
const (
	ResourceCPU         = "cpu"
	ResourceMemoryMB    = "memory_mb"
	ResourceRunnerSlots = "runner_slots"
)

// Admission composes the queue, quotas, and allocator into a single
// gate in front of mission start. Admit either reserves everything a
// mission needs or leaves it queued; Finish releases the reservation.
type Admission struct {
	mu        sync.Mutex
	queue     *MissionQueue
	quotas    *QuotaManager
	allocator *ResourceAllocator
}

// NewAdmission creates an admission gate with the given quota limits.
// A zero limit means the resource type is unlimited.
func NewAdmission(maxCPU, maxMemoryMB, maxRunnerSlots int) *Admission {
	quotas := NewQuotaManager()
	if maxCPU > 0 {
		quotas.SetQuota(ResourceCPU, maxCPU)
	}
	if maxMemoryMB > 0 {
		quotas.SetQuota(ResourceMemoryMB, maxMemoryMB)
	}
	if maxRunnerSlots > 0 {
		quotas.SetQuota(ResourceRunnerSlots, maxRunnerSlots)
	}
	return &Admission{
		queue:     NewMissionQueue(),
		quotas:    quotas,
		allocator: NewResourceAllocator(),
	}
}

// Submit queues a mission for admission
func (a *Admission) Submit(missionID string, priority int) {
	a.queue.Enqueue(missionID, priority)
	log.Printf("[scheduler] queued mission %s priority=%d depth=%d", missionID, priority, a.queue.Len())
}

// Admit checks every quota the request touches and, only if all pass,
// consumes them and records the allocation. On failure nothing is
// consumed and the mission stays wherever the caller had it.
func (a *Admission) Admit(missionID string, spec ResourceSpec) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	checks := []struct {
		resource string
		amount   int
	}{
		{ResourceCPU, spec.CPU},
		{ResourceMemoryMB, spec.MemoryMB},
		{ResourceRunnerSlots, spec.RunnerSlots},
	}

	for _, c := range checks {
		if c.amount > 0 && !a.quotas.CheckQuota(c.resource, c.amount) {
			return fmt.Errorf("admitting mission %s: %s quota exhausted", missionID, c.resource)
		}
	}

	for _, c := range checks {
		if c.amount > 0 {
			if err := a.quotas.Consume(c.resource, c.amount); err != nil {
				return fmt.Errorf("admitting mission %s: %w", missionID, err)
			}
		}
	}
	a.allocator.Allocate(missionID, spec)
	return nil
}

// NextAdmissible dequeues the highest-priority mission and tries to
// admit it against the given spec. A mission that does not fit is
// requeued at its original priority, so failing admission never
// demotes it. Returns false when nothing was admitted.
func (a *Admission) NextAdmissible(spec ResourceSpec) (string, bool) {
	missionID, priority, ok := a.queue.DequeueEntry()
	if !ok {
		return "", false
	}
	if err := a.Admit(missionID, spec); err != nil {
		log.Printf("[scheduler] %v", err)
		a.queue.Enqueue(missionID, priority)
		return "", false
	}
	return missionID, true
}

// Finish releases everything a mission holds
func (a *Admission) Finish(missionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	spec, exists := a.allocator.Get(missionID)
	if !exists {
		return
	}
	if spec.CPU > 0 {
		a.quotas.Release(ResourceCPU, spec.CPU)
	}
	if spec.MemoryMB > 0 {
		a.quotas.Release(ResourceMemoryMB, spec.MemoryMB)
	}
	if spec.RunnerSlots > 0 {
		a.quotas.Release(ResourceRunnerSlots, spec.RunnerSlots)
	}
	a.allocator.Deallocate(missionID)
}

// QueueDepth returns the number of missions waiting for admission
func (a *Admission) QueueDepth() int {
	return a.queue.Len()
}

// Holding returns the resources currently held by a mission
func (a *Admission) Holding(missionID string) (ResourceSpec, bool) {
	return a.allocator.Get(missionID)
}
