package catalog

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/integration"
)

// NormalizeInput is one entity's raw traits from a connector
type NormalizeInput struct {
	TenantID  uuid.UUID
	Connector integration.ConnectorName
	Kind      catalog.EntityKind
	Traits    map[string]any
	// Reserved names are carried by the entity itself (email, name, ids)
	Reserved map[string]struct{}
	Stock    catalog.StockMappings
}

// Normalizer turns raw traits into typed attribute values
type Normalizer struct {
	catalog *Service
	logger  *zap.Logger
}

// NewNormalizer creates a Normalizer backed by the catalog service
func NewNormalizer(svc *Service, logger *zap.Logger) *Normalizer {
	return &Normalizer{catalog: svc, logger: logger}
}

// Normalize returns the traits that survive exclusion, coerced to their
// definitions' types. Values that do not coerce are dropped; the catalog
// type never changes because of data.
func (n *Normalizer) Normalize(ctx context.Context, in NormalizeInput) (map[string]any, error) {
	names := make([]string, 0, len(in.Traits))
	for name := range in.Traits {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]any, len(names))
	for _, name := range names {
		if _, reserved := in.Reserved[name]; reserved {
			continue
		}
		value := in.Traits[name]
		if catalog.ClassifyValue(value) == catalog.ValueShapeUnsupported {
			continue
		}

		def, err := n.definition(ctx, in, name, value)
		if err != nil {
			return nil, err
		}

		coerced, err := catalog.Coerce(def.ValueType, value)
		if err != nil {
			if errors.Is(err, catalog.ErrCoercion) {
				n.logger.Debug("Attribute value dropped",
					zap.String("tenant_id", in.TenantID.String()),
					zap.String("connector", in.Connector.String()),
					zap.String("name", name),
					zap.String("value_type", string(def.ValueType)),
					zap.Any("value", value))
				continue
			}
			return nil, err
		}
		out[name] = coerced
	}
	return out, nil
}

func (n *Normalizer) definition(ctx context.Context, in NormalizeInput, name string, value any) (*catalog.AttributeDefinition, error) {
	if m, ok := in.Stock.Lookup(in.Kind, name); ok {
		return n.catalog.ApplyStockMapping(ctx, in.TenantID, in.Connector, m)
	}
	return n.catalog.EnsureDefinition(ctx, catalog.AttributeKey{
		TenantID:  in.TenantID,
		Connector: in.Connector,
		Kind:      in.Kind,
		Name:      name,
	}, value)
}

// NameSet builds a Reserved set
func NameSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
