package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/pkg/jobs"
)

type auditLogger interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

// Actor is the authenticated caller of an operation as seen by the audit trail.
type Actor struct {
	UserID    string
	Role      models.UserRole
	IPAddress string
	UserAgent string
}

// AuditConfig sizes the background writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

const auditJobType = "audit_log"

// AuditService writes audit rows off the request path through an in-memory queue.
// When the queue is not running entries are written inline.
type AuditService struct {
	store  auditLogger
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs the service and its queue. Call Start to run the workers.
func NewAuditService(store auditLogger, cfg AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AuditService{store: store, logger: logger}
	svc.queue = jobs.NewQueue("audit", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logger,
	})
	return svc
}

// Start launches the queue workers.
func (s *AuditService) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop flushes buffered entries and waits for the workers to exit.
func (s *AuditService) Stop() {
	if s == nil {
		return
	}
	s.queue.Stop()
}

// Record builds an audit entry for the actor and hands it to the queue.
func (s *AuditService) Record(ctx context.Context, actor Actor, action models.AuditAction, resource models.AuditResource, resourceID string, before, after interface{}) {
	if s == nil || s.store == nil {
		return
	}
	entry := &models.AuditEntry{
		ID:        uuid.NewString(),
		ActorRole: string(actor.Role),
		Action:    action,
		Resource:  resource,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
	if actor.UserID != "" {
		userID := actor.UserID
		entry.ActorID = &userID
	}
	if resourceID != "" {
		id := resourceID
		entry.ResourceID = &id
	}
	entry.Before = s.encode(before)
	entry.After = s.encode(after)

	if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: auditJobType, Payload: entry}); err != nil {
		if err := s.store.Append(context.WithoutCancel(ctx), entry); err != nil {
			s.logger.Warn("failed to write audit log", zap.String("action", string(action)), zap.Error(err))
		}
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditEntry)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return s.store.Append(ctx, entry)
}

func (s *AuditService) encode(value interface{}) []byte {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("failed to encode audit payload", zap.Error(err))
		return nil
	}
	return raw
}
