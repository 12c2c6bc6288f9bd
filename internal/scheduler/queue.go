// Package scheduler gates mission admission: a priority queue of
// waiting missions, resource quotas with explicit consume/release
// bookkeeping, and an allocator tracking what each mission holds.
package scheduler

import (
	"sort"
	"sync"
)

type queuedMission struct {
	missionID string
	priority  int
	seq       uint64
}

// MissionQueue orders waiting missions by descending priority.
// Missions at the same priority dequeue in arrival order.
type MissionQueue struct {
	mu      sync.Mutex
	entries []queuedMission
	nextSeq uint64
}

// NewMissionQueue creates an empty queue
func NewMissionQueue() *MissionQueue {
	return &MissionQueue{}
}

// Enqueue adds a mission at the given priority
func (q *MissionQueue) Enqueue(missionID string, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, queuedMission{
		missionID: missionID,
		priority:  priority,
		seq:       q.nextSeq,
	})
	q.nextSeq++

	sort.SliceStable(q.entries, func(i, j int) bool {
		if q.entries[i].priority != q.entries[j].priority {
			return q.entries[i].priority > q.entries[j].priority
		}
		return q.entries[i].seq < q.entries[j].seq
	})
}

// Dequeue removes and returns the highest-priority mission id. The
// second return is false when the queue is empty.
func (q *MissionQueue) Dequeue() (string, bool) {
	id, _, ok := q.DequeueEntry()
	return id, ok
}

// DequeueEntry removes and returns the highest-priority mission id
// along with the priority it was queued at, so a caller that cannot
// act on the mission can requeue it without losing its position.
func (q *MissionQueue) DequeueEntry() (string, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return "", 0, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head.missionID, head.priority, true
}

// Len returns the number of queued missions
func (q *MissionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Empty reports whether the queue has no missions
func (q *MissionQueue) Empty() bool {
	return q.Len() == 0
}
