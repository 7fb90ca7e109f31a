package feedback

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/feedback"
	"github.com/feedsync/backend/internal/domain/integration"
)

// IngestInput is one piece of feedback found by a connector
type IngestInput struct {
	TenantID  uuid.UUID
	Connector integration.ConnectorName
	PersonID  *uuid.UUID
	Content   string
	SourceURL string
	Metadata  map[string]string
}

// Service records feedback found by connectors
type Service struct {
	repo   feedback.Repository
	logger *zap.Logger
}

// NewService creates a new feedback Service
func NewService(repo feedback.Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Ingest stores the feedback unless the tenant already has the same text.
// Redeliveries and the tag/note pair of one conversation collapse onto the
// first record; its source URL and person are kept.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*feedback.Record, bool, error) {
	rec, err := feedback.NewRecord(in.TenantID, in.Connector, in.Content)
	if err != nil {
		return nil, false, err
	}
	rec.PersonID = in.PersonID
	rec.SourceURL = in.SourceURL
	for k, v := range in.Metadata {
		rec.Metadata[k] = v
	}

	stored, created, err := s.repo.GetOrCreate(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("Feedback recorded",
			zap.String("tenant_id", in.TenantID.String()),
			zap.String("connector", in.Connector.String()),
			zap.String("feedback_id", stored.ID.String()))
	} else {
		s.logger.Debug("Feedback already recorded",
			zap.String("tenant_id", in.TenantID.String()),
			zap.String("feedback_id", stored.ID.String()))
	}
	return stored, created, nil
}

// ListForPerson returns a person's feedback, oldest first
func (s *Service) ListForPerson(ctx context.Context, tenantID, personID uuid.UUID) ([]feedback.Record, error) {
	return s.repo.FindByPerson(ctx, tenantID, personID)
}
