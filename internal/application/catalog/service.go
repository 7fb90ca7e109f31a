package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
)

// ErrUnsupportedValue is returned when a sample value cannot seed a definition
var ErrUnsupportedValue = errors.New("catalog: unsupported attribute value")

// Service manages the per-tenant attribute catalog
type Service struct {
	repo   catalog.AttributeRepository
	logger *zap.Logger
}

// NewService creates a new catalog Service
func NewService(repo catalog.AttributeRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// EnsureDefinition returns the definition for key, creating it with the type
// inferred from sample on first sight. An existing definition is never
// re-typed.
func (s *Service) EnsureDefinition(ctx context.Context, key catalog.AttributeKey, sample any) (*catalog.AttributeDefinition, error) {
	def, err := s.repo.FindByKey(ctx, key)
	if err == nil {
		return def, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	shape := catalog.ClassifyValue(sample)
	valueType, ok := shape.ValueType()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, key.Name)
	}
	def, err = catalog.NewAttributeDefinition(key, valueType)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, def); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// another writer created it first; its type stands
			return s.repo.FindByKey(ctx, key)
		}
		return nil, err
	}

	s.logger.Info("Attribute definition created",
		zap.String("tenant_id", key.TenantID.String()),
		zap.String("connector", key.Connector.String()),
		zap.String("entity_kind", string(key.Kind)),
		zap.String("name", key.Name),
		zap.String("value_type", string(valueType)))
	return def, nil
}

// ApplyStockMapping creates or updates the stock definition for a mapping.
// A new definition takes the mapping's singleton flags from their previous
// holders in the same transaction. An existing one only has its presentation
// refreshed, so a flag moved by SetMRR or SetPlan stays where it was put.
func (s *Service) ApplyStockMapping(ctx context.Context, tenantID uuid.UUID, connector integration.ConnectorName, m catalog.StockMapping) (*catalog.AttributeDefinition, error) {
	key := catalog.AttributeKey{TenantID: tenantID, Connector: connector, Kind: m.Kind, Name: m.Name}

	def, err := s.repo.FindByKey(ctx, key)
	switch {
	case err == nil:
		if matchesStock(def, m) {
			return def, nil
		}
		def.ApplyStock(m)
		if err := s.repo.Save(ctx, def); err != nil {
			return nil, err
		}
		return def, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	def, err = catalog.NewStockDefinition(tenantID, connector, m)
	if err != nil {
		return nil, err
	}
	flags := m.Flags()
	if len(flags) == 0 {
		err = s.repo.Save(ctx, def)
	}
	for _, flag := range flags {
		if err = s.repo.SaveExclusive(ctx, def, flag); err != nil {
			break
		}
	}
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// created concurrently; the winner holds the flags
			return s.repo.FindByKey(ctx, key)
		}
		return nil, fmt.Errorf("save stock definition %s: %w", m.Name, err)
	}

	s.logger.Info("Stock attribute definition created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("connector", connector.String()),
		zap.String("name", m.Name))
	return def, nil
}

// SetMRR makes the definition the tenant's MRR attribute
func (s *Service) SetMRR(ctx context.Context, tenantID, definitionID uuid.UUID) (*catalog.AttributeDefinition, error) {
	return s.setFlag(ctx, tenantID, definitionID, catalog.FlagMRR)
}

// SetPlan makes the definition the tenant's plan attribute
func (s *Service) SetPlan(ctx context.Context, tenantID, definitionID uuid.UUID) (*catalog.AttributeDefinition, error) {
	return s.setFlag(ctx, tenantID, definitionID, catalog.FlagPlan)
}

func (s *Service) setFlag(ctx context.Context, tenantID, definitionID uuid.UUID, flag catalog.Flag) (*catalog.AttributeDefinition, error) {
	def, err := s.repo.FindByID(ctx, tenantID, definitionID)
	if err != nil {
		return nil, err
	}
	if err := def.SetFlag(flag); err != nil {
		return nil, err
	}
	if err := s.repo.SaveExclusive(ctx, def, flag); err != nil {
		return nil, err
	}

	s.logger.Info("Attribute flag moved",
		zap.String("tenant_id", tenantID.String()),
		zap.String("flag", string(flag)),
		zap.String("definition_id", definitionID.String()))
	return def, nil
}

// ListDefinitions returns a page of the tenant's definitions and the total
func (s *Service) ListDefinitions(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]catalog.AttributeDefinition, int64, error) {
	defs, err := s.repo.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	return defs, total, nil
}

// matchesStock reports whether applying m would change nothing. Flags are
// not compared: they are only set when the definition is created.
func matchesStock(def *catalog.AttributeDefinition, m catalog.StockMapping) bool {
	if def.IsCustom || def.ValueType != m.ValueType {
		return false
	}
	if m.Widget.IsValid() && def.Widget != m.Widget {
		return false
	}
	return m.FriendlyName == "" || def.FriendlyName == m.FriendlyName
}
