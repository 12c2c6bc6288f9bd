// Package approval gates risky operations behind pending/approved/denied
// decisions and standing consent grants.
package approval

import (
	"log"
	"sync"
	"time"

	"forgeline/pkg/types"

	"github.com/google/uuid"
)

// riskRank orders risk levels for the auto-approve comparison
var riskRank = map[types.RiskLevel]int{
	types.RiskLow:      0,
	types.RiskMedium:   1,
	types.RiskHigh:     2,
	types.RiskCritical: 3,
}

// Recorder receives every resolved request. The state store implements
// it so approval history survives restarts; the pending table stays
// process-local.
type Recorder interface {
	RecordApproval(types.ApprovalRequest) error
}

// Options configures the engine. AutoApproveMax is the highest risk
// level resolved without a human; it is a security-relevant policy
// knob, so it comes from configuration rather than being hardcoded.
type Options struct {
	AutoApprove    bool
	AutoApproveMax types.RiskLevel
	Recorder       Recorder
}

// Engine turns risk classifications into approval decisions. Pending
// requests live in an in-memory table until resolved, then move to an
// append-only history.
type Engine struct {
	mu      sync.Mutex
	opts    Options
	pending map[string]*types.ApprovalRequest
	history []types.ApprovalRequest
	byID    map[string]int // request id -> history index
}

// NewEngine creates an approval engine
func NewEngine(opts Options) *Engine {
	if opts.AutoApproveMax == "" {
		opts.AutoApproveMax = types.RiskLow
	}
	return &Engine{
		opts:    opts,
		pending: make(map[string]*types.ApprovalRequest),
		byID:    make(map[string]int),
	}
}

// RequestApproval creates a request for the operation. Requests at or
// below the auto-approve level are finalized as auto_approved
// synchronously and never enter the pending table.
func (e *Engine) RequestApproval(operation, description string, level types.RiskLevel, context map[string]any) types.ApprovalRequest {
	request := types.ApprovalRequest{
		ID:          uuid.New().String(),
		Operation:   operation,
		Description: description,
		RiskLevel:   level,
		Context:     context,
		Status:      types.ApprovalStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.AutoApprove && riskRank[level] <= riskRank[e.opts.AutoApproveMax] {
		now := request.CreatedAt
		request.Status = types.ApprovalStatusAutoApproved
		request.ResolvedAt = &now
		request.Reason = "auto-approved low-risk operation"
		e.appendHistory(request)
		return request
	}

	e.pending[request.ID] = &request
	return request
}

// Approve resolves a pending request. Resolving an unknown id is a
// no-op returning nil.
func (e *Engine) Approve(requestID, approvedBy, reason string) *types.ApprovalRequest {
	return e.resolve(requestID, types.ApprovalStatusApproved, approvedBy, reason)
}

// Deny resolves a pending request. Resolving an unknown id is a no-op
// returning nil.
func (e *Engine) Deny(requestID, deniedBy, reason string) *types.ApprovalRequest {
	return e.resolve(requestID, types.ApprovalStatusDenied, deniedBy, reason)
}

func (e *Engine) resolve(requestID string, status types.ApprovalStatus, by, reason string) *types.ApprovalRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	request, exists := e.pending[requestID]
	if !exists {
		return nil
	}
	delete(e.pending, requestID)

	now := time.Now().UTC()
	request.Status = status
	request.ResolvedAt = &now
	request.ResolvedBy = by
	request.Reason = reason
	e.appendHistory(*request)
	return request
}

func (e *Engine) appendHistory(request types.ApprovalRequest) {
	e.byID[request.ID] = len(e.history)
	e.history = append(e.history, request)
	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.RecordApproval(request); err != nil {
			log.Printf("[approval] recording %s: %v", request.ID, err)
		}
	}
}

// Pending returns all unresolved requests
func (e *Engine) Pending() []types.ApprovalRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.ApprovalRequest, 0, len(e.pending))
	for _, request := range e.pending {
		out = append(out, *request)
	}
	return out
}

// Get returns a pending request by id, or nil
func (e *Engine) Get(requestID string) *types.ApprovalRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	if request, exists := e.pending[requestID]; exists {
		snapshot := *request
		return &snapshot
	}
	return nil
}

// IsApproved consults history only: a request still pending is not
// approved.
func (e *Engine) IsApproved(requestID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx, exists := e.byID[requestID]; exists {
		return e.history[idx].Status.Granted()
	}
	return false
}

// History returns a copy of the resolved request history in resolution
// order.
func (e *Engine) History() []types.ApprovalRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.ApprovalRequest, len(e.history))
	copy(out, e.history)
	return out
}
