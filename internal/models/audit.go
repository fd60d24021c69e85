package models

import "time"

// AuditAction names a state change recorded in the audit trail.
type AuditAction string

const (
	AuditActionRoundAssign    AuditAction = "ROUND_ASSIGN"
	AuditActionAttendanceMark AuditAction = "ATTENDANCE_MARK"
	AuditActionStatusUpdate   AuditAction = "APPLICATION_STATUS_UPDATE"
	AuditActionFinalize       AuditAction = "APPLICATION_FINALIZE"
	AuditActionBulkAdvance    AuditAction = "BULK_ADVANCE"
	AuditActionSessionStart   AuditAction = "ATTENDANCE_SESSION_START"
	AuditActionSessionStop    AuditAction = "ATTENDANCE_SESSION_STOP"
	AuditActionStudentCheckIn AuditAction = "ATTENDANCE_CHECKIN"
)

// AuditResource is the kind of record an audit entry points at.
type AuditResource string

const (
	AuditResourceApplication       AuditResource = "application"
	AuditResourceJob               AuditResource = "job"
	AuditResourceAttendanceSession AuditResource = "attendance_session"
)

// AuditEntry is one append-only row of the audit trail. Before and After hold JSON snapshots.
type AuditEntry struct {
	ID         string        `db:"id" json:"id"`
	ActorID    *string       `db:"actor_id" json:"actorId,omitempty"`
	ActorRole  string        `db:"actor_role" json:"actorRole,omitempty"`
	Action     AuditAction   `db:"action" json:"action"`
	Resource   AuditResource `db:"resource" json:"resource"`
	ResourceID *string       `db:"resource_id" json:"resourceId,omitempty"`
	Before     []byte        `db:"before_state" json:"before,omitempty"`
	After      []byte        `db:"after_state" json:"after,omitempty"`
	IPAddress  string        `db:"ip_address" json:"ipAddress"`
	UserAgent  string        `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
}
