package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/shared"
)

func TestGormAttributeRepository_SaveExclusive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormAttributeRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	otherTenant := uuid.New()

	first, err := catalog.NewStockDefinition(tenantID, "intercom", catalog.StockMapping{
		Name: "monthly_spend", Kind: catalog.EntityKindOrganization, ValueType: catalog.ValueTypeFloat, IsMRR: true,
	})
	require.NoError(t, err)
	require.NoError(t, repo.SaveExclusive(ctx, first, catalog.FlagMRR))

	foreign, err := catalog.NewStockDefinition(otherTenant, "intercom", catalog.StockMapping{
		Name: "monthly_spend", Kind: catalog.EntityKindOrganization, ValueType: catalog.ValueTypeFloat, IsMRR: true,
	})
	require.NoError(t, err)
	require.NoError(t, repo.SaveExclusive(ctx, foreign, catalog.FlagMRR))

	second, err := catalog.NewStockDefinition(tenantID, "segment", catalog.StockMapping{
		Name: "total billed", Kind: catalog.EntityKindOrganization, ValueType: catalog.ValueTypeFloat, IsMRR: true,
	})
	require.NoError(t, err)
	require.NoError(t, repo.SaveExclusive(ctx, second, catalog.FlagMRR))

	holder, err := repo.FindFlagHolder(ctx, tenantID, catalog.FlagMRR)
	require.NoError(t, err)
	assert.Equal(t, second.ID, holder.ID)

	reloaded, err := repo.FindByID(ctx, tenantID, first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsMRR, "previous holder is cleared")

	foreignHolder, err := repo.FindFlagHolder(ctx, otherTenant, catalog.FlagMRR)
	require.NoError(t, err)
	assert.Equal(t, foreign.ID, foreignHolder.ID, "other tenants keep their holder")

	var count int64
	require.NoError(t, db.Table("attribute_definitions").Where("tenant_id = ? AND is_mrr = ?", tenantID, true).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormAttributeRepository_FindByKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormAttributeRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	key := catalog.AttributeKey{TenantID: tenantID, Connector: "segment", Kind: catalog.EntityKindPerson, Name: "seats"}
	def, err := catalog.NewAttributeDefinition(key, catalog.ValueTypeInteger)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, def))

	found, err := repo.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, def.ID, found.ID)
	assert.Equal(t, catalog.ValueTypeInteger, found.ValueType)

	_, err = repo.FindByKey(ctx, catalog.AttributeKey{TenantID: tenantID, Connector: "segment", Kind: catalog.EntityKindOrganization, Name: "seats"})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	dup, err := catalog.NewAttributeDefinition(key, catalog.ValueTypeString)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Save(ctx, dup), shared.ErrAlreadyExists)

	_, err = repo.FindFlagHolder(ctx, tenantID, catalog.FlagPlan)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormAttributeRepository_FindAllForTenant(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormAttributeRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	for _, name := range []string{"seats", "plan_name", "company_size"} {
		def, err := catalog.NewAttributeDefinition(catalog.AttributeKey{TenantID: tenantID, Connector: "segment", Kind: catalog.EntityKindPerson, Name: name}, catalog.ValueTypeString)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, def))
	}

	filter := shared.Filter{Page: 1, PageSize: 2, OrderBy: "name", OrderDir: "asc"}
	defs, err := repo.FindAllForTenant(ctx, tenantID, filter)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "company_size", defs[0].Name)

	total, err := repo.CountForTenant(ctx, tenantID, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	filter.Search = "PLAN"
	total, err = repo.CountForTenant(ctx, tenantID, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
