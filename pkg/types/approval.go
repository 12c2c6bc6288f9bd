package types

import "time"

// ApprovalStatus represents the resolution state of an approval request
type ApprovalStatus string

const (
	ApprovalStatusPending      ApprovalStatus = "pending"
	ApprovalStatusApproved     ApprovalStatus = "approved"
	ApprovalStatusDenied       ApprovalStatus = "denied"
	ApprovalStatusExpired      ApprovalStatus = "expired"
	ApprovalStatusAutoApproved ApprovalStatus = "auto_approved"
)

// Resolved reports whether the request has left the pending table.
func (s ApprovalStatus) Resolved() bool {
	return s != ApprovalStatusPending
}

// Granted reports whether the resolution permits the operation.
func (s ApprovalStatus) Granted() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusAutoApproved
}

// ApprovalRequest gates a risky operation on a human (or policy) decision.
// Pending requests live in memory; resolved requests move to history.
type ApprovalRequest struct {
	ID          string         `json:"request_id"`
	Operation   string         `json:"operation"`
	Description string         `json:"description"`
	RiskLevel   RiskLevel      `json:"risk_level"`
	Context     map[string]any `json:"context,omitempty"`
	Status      ApprovalStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy  string         `json:"resolved_by,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// ConsentRecord is a standing, scope-based grant that lets an operation
// class bypass the request/approve cycle. Scope "*" matches everything.
type ConsentRecord struct {
	ID            string         `json:"consent_id"`
	OperationType string         `json:"operation_type"`
	Scope         string         `json:"scope"`
	Granted       bool           `json:"granted"`
	GrantedAt     time.Time      `json:"granted_at"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	Conditions    map[string]any `json:"conditions,omitempty"`
}
