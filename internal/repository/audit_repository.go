package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/placement-rounds-api/internal/models"
)

// AuditRepository appends to the audit trail. Rows are never updated.
type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const insertAuditEntry = `
INSERT INTO audit_logs (id, actor_id, actor_role, action, resource, resource_id, before_state, after_state, ip_address, user_agent, created_at)
VALUES (:id, :actor_id, :actor_role, :action, :resource, :resource_id, :before_state, :after_state, :ip_address, :user_agent, :created_at)
ON CONFLICT (id) DO NOTHING`

// Append inserts entry. Replays of the same id are ignored so queue retries stay idempotent.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, insertAuditEntry, entry); err != nil {
		return fmt.Errorf("append audit %s on %s: %w", entry.Action, entry.Resource, err)
	}
	return nil
}
