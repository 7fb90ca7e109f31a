// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Optional identity keys are stored as NULL when absent so the partial unique
// indexes (tenant_id, key) WHERE key IS NOT NULL only constrain present keys.
// The same tags work on PostgreSQL and on the SQLite databases used in tests.
package models

// All returns every model, in dependency order, for AutoMigrate
func All() []any {
	return []any{
		&TenantModel{},
		&OrganizationModel{},
		&PersonModel{},
		&AttributeDefinitionModel{},
		&ImporterConfigModel{},
		&FeedbackRecordModel{},
	}
}
