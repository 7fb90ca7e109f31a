package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feedsync/backend/internal/domain/feedback"
	"github.com/feedsync/backend/internal/infrastructure/persistence/models"
)

// GormFeedbackRepository implements feedback.Repository using GORM
type GormFeedbackRepository struct {
	db *gorm.DB
}

// NewGormFeedbackRepository creates a new GormFeedbackRepository
func NewGormFeedbackRepository(db *gorm.DB) *GormFeedbackRepository {
	return &GormFeedbackRepository{db: db}
}

// GetOrCreate inserts rec unless (tenant, content) already exists, in which
// case the stored record is returned untouched
func (r *GormFeedbackRepository) GetOrCreate(ctx context.Context, rec *feedback.Record) (*feedback.Record, bool, error) {
	model := models.FeedbackRecordModelFromDomain(rec)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "content_hash"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return model.ToDomain(), true, nil
	}

	var existing models.FeedbackRecordModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(rec.TenantID)).
		Where("content_hash = ?", model.ContentHash).
		First(&existing).Error; err != nil {
		return nil, false, notFound(err)
	}
	return existing.ToDomain(), false, nil
}

// FindByID finds a record within a tenant
func (r *GormFeedbackRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*feedback.Record, error) {
	var model models.FeedbackRecordModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByPerson lists a person's records, oldest first
func (r *GormFeedbackRepository) FindByPerson(ctx context.Context, tenantID, personID uuid.UUID) ([]feedback.Record, error) {
	var recordModels []models.FeedbackRecordModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("person_id = ?", personID).
		Order("created_at ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	records := make([]feedback.Record, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return records, nil
}

// ReassignPerson moves every record of one person to another
func (r *GormFeedbackRepository) ReassignPerson(ctx context.Context, tenantID, fromPersonID, toPersonID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FeedbackRecordModel{}).
		Scopes(tenantScope(tenantID)).
		Where("person_id = ?", fromPersonID).
		Update("person_id", toPersonID)
	return result.RowsAffected, result.Error
}

// Ensure GormFeedbackRepository implements feedback.Repository
var _ feedback.Repository = (*GormFeedbackRepository)(nil)
