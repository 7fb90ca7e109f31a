package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/persistence/models"
)

// GormPersonRepository implements customer.PersonRepository using GORM
type GormPersonRepository struct {
	db *gorm.DB
}

// NewGormPersonRepository creates a new GormPersonRepository
func NewGormPersonRepository(db *gorm.DB) *GormPersonRepository {
	return &GormPersonRepository{db: db}
}

// FindByID finds a person within a tenant
func (r *GormPersonRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*customer.Person, error) {
	return r.findOne(ctx, tenantID, "id = ?", id)
}

// FindBySourceID finds a person by the connector-assigned id
func (r *GormPersonRepository) FindBySourceID(ctx context.Context, tenantID uuid.UUID, sourceID string) (*customer.Person, error) {
	if sourceID == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, tenantID, "source_id = ?", sourceID)
}

// FindByExternalID finds a person by the tenant-assigned id
func (r *GormPersonRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*customer.Person, error) {
	if externalID == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, tenantID, "external_id = ?", externalID)
}

// FindByEmail finds a person by normalized email
func (r *GormPersonRepository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*customer.Person, error) {
	email = customer.NormalizeEmail(email)
	if email == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, tenantID, "email = ?", email)
}

// FindByEmailDomain lists the persons whose email is at the domain
func (r *GormPersonRepository) FindByEmailDomain(ctx context.Context, tenantID uuid.UUID, domain string) ([]customer.Person, error) {
	if domain == "" {
		return []customer.Person{}, nil
	}
	var personModels []models.PersonModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where(`email LIKE ? ESCAPE '\'`, "%@"+escapeLike(domain)).
		Order("created_at ASC").
		Find(&personModels).Error; err != nil {
		return nil, err
	}
	people := make([]customer.Person, len(personModels))
	for i := range personModels {
		people[i] = *personModels[i].ToDomain()
	}
	return people, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes s match itself literally in a LIKE pattern using the
// backslash escape
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// CountByOrganization counts the members of an organization
func (r *GormPersonRepository) CountByOrganization(ctx context.Context, tenantID, organizationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PersonModel{}).
		Scopes(tenantScope(tenantID)).
		Where("organization_id = ?", organizationID).
		Count(&count).Error
	return count, err
}

// Create inserts a person. A taken candidate key is customer.ErrIdentityConflict.
func (r *GormPersonRepository) Create(ctx context.Context, p *customer.Person) error {
	return identityConflict(r.db.WithContext(ctx).Create(models.PersonModelFromDomain(p)).Error)
}

// Update saves every column of a person. A taken candidate key is
// customer.ErrIdentityConflict.
func (r *GormPersonRepository) Update(ctx context.Context, p *customer.Person) error {
	return updatePerson(r.db.WithContext(ctx), p)
}

// ApplyMerge persists a merge in one transaction
func (r *GormPersonRepository) ApplyMerge(ctx context.Context, keep, discard *customer.Person) (bool, error) {
	orgDeleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.FeedbackRecordModel{}).
			Scopes(tenantScope(keep.TenantID)).
			Where("person_id = ?", discard.ID).
			Update("person_id", keep.ID).Error; err != nil {
			return fmt.Errorf("reassign feedback: %w", err)
		}

		// discard goes first so the keys keep absorbs are free
		result := tx.Scopes(tenantScope(discard.TenantID)).
			Where("id = ?", discard.ID).
			Delete(&models.PersonModel{})
		if result.Error != nil {
			return fmt.Errorf("delete discarded person: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}

		if err := updatePerson(tx, keep); err != nil {
			return fmt.Errorf("save kept person: %w", err)
		}

		if discard.OrganizationID == nil {
			return nil
		}
		var members int64
		if err := tx.Model(&models.PersonModel{}).
			Scopes(tenantScope(discard.TenantID)).
			Where("organization_id = ?", *discard.OrganizationID).
			Count(&members).Error; err != nil {
			return err
		}
		if members > 0 {
			return nil
		}
		if err := tx.Scopes(tenantScope(discard.TenantID)).
			Where("id = ?", *discard.OrganizationID).
			Delete(&models.OrganizationModel{}).Error; err != nil {
			return fmt.Errorf("delete empty organization: %w", err)
		}
		orgDeleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return orgDeleted, nil
}

func (r *GormPersonRepository) findOne(ctx context.Context, tenantID uuid.UUID, query string, arg any) (*customer.Person, error) {
	var model models.PersonModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where(query, arg).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

func updatePerson(db *gorm.DB, p *customer.Person) error {
	result := db.Model(&models.PersonModel{}).
		Scopes(tenantScope(p.TenantID)).
		Where("id = ?", p.ID).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(models.PersonModelFromDomain(p))
	if result.Error != nil {
		return identityConflict(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormPersonRepository implements customer.PersonRepository
var _ customer.PersonRepository = (*GormPersonRepository)(nil)
