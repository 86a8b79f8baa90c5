package models

import (
	"encoding/json"
	"time"
)

// AuditAction enumerates actions recorded in the audit trail.
type AuditAction string

const (
	AuditActionUpload     AuditAction = "upload"
	AuditActionView       AuditAction = "view"
	AuditActionEdit       AuditAction = "edit"
	AuditActionSubmit     AuditAction = "submit"
	AuditActionWithdraw   AuditAction = "withdraw"
	AuditActionApprove    AuditAction = "approve"
	AuditActionReject     AuditAction = "reject"
	AuditActionDownload   AuditAction = "download"
	AuditActionPrint      AuditAction = "print"
	AuditActionObsolete   AuditAction = "obsolete"
	AuditActionRestore    AuditAction = "restore"
	AuditActionDelete     AuditAction = "delete"
	AuditActionList       AuditAction = "list"
	AuditActionStatsView  AuditAction = "stats_view"
	AuditActionRoleAssign AuditAction = "role_assign"
	AuditActionRoleRevoke AuditAction = "role_revoke"

	AuditActionDepartmentCreate AuditAction = "department_create"
)

// Valid reports whether the action is known.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionUpload, AuditActionView, AuditActionEdit, AuditActionSubmit, AuditActionWithdraw,
		AuditActionApprove, AuditActionReject, AuditActionDownload, AuditActionPrint, AuditActionObsolete,
		AuditActionRestore, AuditActionDelete, AuditActionList, AuditActionStatsView,
		AuditActionRoleAssign, AuditActionRoleRevoke, AuditActionDepartmentCreate:
		return true
	}
	return false
}

// AuditLog is an append-only audit trail record.
type AuditLog struct {
	ID          string          `db:"id" json:"id"`
	DocumentID  *string         `db:"document_id" json:"documentId,omitempty"`
	ActorUserID string          `db:"actor_user_id" json:"actorUserId"`
	Action      AuditAction     `db:"action" json:"action"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// AuditFilter constrains audit queries.
type AuditFilter struct {
	Action        AuditAction
	ActorContains string
	ActorExact    string
	DocumentID    string
	From          *time.Time
	To            *time.Time
	Limit         int
}
