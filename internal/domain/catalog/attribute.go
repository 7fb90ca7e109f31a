// Package catalog holds the per-tenant attribute catalog: the typed definitions
// every normalized person and organization trait is coerced against.
package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// ValueType is the declared type of an attribute. It never changes once set.
type ValueType string

const (
	ValueTypeString  ValueType = "string"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeFloat   ValueType = "float"
	ValueTypeInteger ValueType = "integer"
)

// IsValid returns true if the value type is known
func (t ValueType) IsValid() bool {
	switch t {
	case ValueTypeString, ValueTypeBoolean, ValueTypeFloat, ValueTypeInteger:
		return true
	default:
		return false
	}
}

// IsNumeric returns true for integer and float
func (t ValueType) IsNumeric() bool {
	return t == ValueTypeFloat || t == ValueTypeInteger
}

// Widget is how the attribute is rendered as a filter
type Widget string

const (
	WidgetSelect        Widget = "select"
	WidgetGroupedSelect Widget = "grouped_select"
	WidgetText          Widget = "text"
	WidgetCheckbox      Widget = "checkbox"
	WidgetRange         Widget = "range"
)

// IsValid returns true if the widget is known
func (w Widget) IsValid() bool {
	switch w {
	case WidgetSelect, WidgetGroupedSelect, WidgetText, WidgetCheckbox, WidgetRange:
		return true
	default:
		return false
	}
}

// IsFilterable reports whether the widget can be offered as a filter.
// Free text cannot.
func (w Widget) IsFilterable() bool {
	return w.IsValid() && w != WidgetText
}

// DefaultWidget picks the widget for a lazily created definition
func DefaultWidget(t ValueType) Widget {
	switch t {
	case ValueTypeBoolean:
		return WidgetCheckbox
	case ValueTypeInteger, ValueTypeFloat:
		return WidgetRange
	default:
		return WidgetText
	}
}

// EntityKind is the record type an attribute belongs to
type EntityKind string

const (
	EntityKindPerson       EntityKind = "person"
	EntityKindOrganization EntityKind = "organization"
)

// IsValid returns true if the entity kind is known
func (k EntityKind) IsValid() bool {
	return k == EntityKindPerson || k == EntityKindOrganization
}

// Flag is a tenant-wide singleton marker on a definition
type Flag string

const (
	// FlagMRR marks the attribute holding monthly recurring revenue
	FlagMRR Flag = "is_mrr"
	// FlagPlan marks the attribute holding the subscription plan
	FlagPlan Flag = "is_plan"
)

// IsValid returns true if the flag is known
func (f Flag) IsValid() bool {
	return f == FlagMRR || f == FlagPlan
}

// ---------------------------------------------------------------------------
// AttributeKey
// ---------------------------------------------------------------------------

// AttributeKey identifies a definition: unique per (tenant, connector, kind, name)
type AttributeKey struct {
	TenantID  uuid.UUID
	Connector integration.ConnectorName
	Kind      EntityKind
	Name      string
}

// ---------------------------------------------------------------------------
// AttributeDefinition
// ---------------------------------------------------------------------------

// AttributeDefinition declares the type and presentation of one attribute
type AttributeDefinition struct {
	shared.TenantEntity
	Connector     integration.ConnectorName
	EntityKind    EntityKind
	Name          string
	FriendlyName  string
	ValueType     ValueType
	Widget        Widget
	IsMRR         bool
	IsPlan        bool
	IsCustom      bool
	ShowInFilters bool
}

// NewAttributeDefinition creates a custom definition inferred from first sight
func NewAttributeDefinition(key AttributeKey, valueType ValueType) (*AttributeDefinition, error) {
	name := strings.TrimSpace(key.Name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_ATTRIBUTE", "Attribute name cannot be empty")
	}
	if !key.Kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_ATTRIBUTE", "Invalid entity kind")
	}
	if !valueType.IsValid() {
		return nil, shared.NewDomainError("INVALID_ATTRIBUTE", "Invalid value type")
	}
	d := &AttributeDefinition{
		TenantEntity: shared.NewTenantEntity(key.TenantID),
		Connector:    key.Connector,
		EntityKind:   key.Kind,
		Name:         name,
		FriendlyName: FriendlyName(name),
		ValueType:    valueType,
		Widget:       DefaultWidget(valueType),
		IsCustom:     true,
	}
	d.refreshShowInFilters()
	return d, nil
}

// NewStockDefinition creates a definition from a connector's stock mapping
func NewStockDefinition(tenantID uuid.UUID, connector integration.ConnectorName, m StockMapping) (*AttributeDefinition, error) {
	d, err := NewAttributeDefinition(AttributeKey{
		TenantID:  tenantID,
		Connector: connector,
		Kind:      m.Kind,
		Name:      m.Name,
	}, m.ValueType)
	if err != nil {
		return nil, err
	}
	d.ApplyStock(m)
	d.IsMRR = m.IsMRR
	d.IsPlan = m.IsPlan
	return d, nil
}

// Key returns the unique key of the definition
func (d *AttributeDefinition) Key() AttributeKey {
	return AttributeKey{TenantID: d.TenantID, Connector: d.Connector, Kind: d.EntityKind, Name: d.Name}
}

// ApplyStock overwrites presentation with the stock mapping. The singleton
// flags are left alone: a stock definition claims them only when created,
// after which they belong to whoever the operator picks.
func (d *AttributeDefinition) ApplyStock(m StockMapping) {
	d.IsCustom = false
	d.ValueType = m.ValueType
	if m.Widget.IsValid() {
		d.Widget = m.Widget
	}
	if m.FriendlyName != "" {
		d.FriendlyName = m.FriendlyName
	} else {
		d.FriendlyName = FriendlyName(d.Name)
	}
	d.refreshShowInFilters()
	d.Touch()
}

// HasFlag reports whether the definition holds the singleton flag
func (d *AttributeDefinition) HasFlag(f Flag) bool {
	switch f {
	case FlagMRR:
		return d.IsMRR
	case FlagPlan:
		return d.IsPlan
	default:
		return false
	}
}

// SetFlag marks the definition as the holder of the flag. Clearing the
// previous holder is the repository's job (SaveExclusive).
func (d *AttributeDefinition) SetFlag(f Flag) error {
	switch f {
	case FlagMRR:
		if !d.ValueType.IsNumeric() {
			return shared.NewDomainError("INVALID_MRR_ATTRIBUTE", "MRR attribute must be numeric")
		}
		d.IsMRR = true
	case FlagPlan:
		d.IsPlan = true
	default:
		return shared.NewDomainError("INVALID_FLAG", "Unknown attribute flag")
	}
	d.Touch()
	return nil
}

func (d *AttributeDefinition) refreshShowInFilters() {
	d.ShowInFilters = !d.IsCustom || d.Widget.IsFilterable()
}

// ---------------------------------------------------------------------------
// StockMapping
// ---------------------------------------------------------------------------

// StockMapping pins a known source trait to a fixed definition
type StockMapping struct {
	Name         string
	Kind         EntityKind
	FriendlyName string
	ValueType    ValueType
	Widget       Widget
	IsMRR        bool
	IsPlan       bool
}

// Flags returns the singleton flags the mapping claims on creation
func (m StockMapping) Flags() []Flag {
	var flags []Flag
	if m.IsMRR {
		flags = append(flags, FlagMRR)
	}
	if m.IsPlan {
		flags = append(flags, FlagPlan)
	}
	return flags
}

// StockMappings indexes stock mappings by trait name
type StockMappings map[string]StockMapping

// Lookup finds the mapping for a trait of the given kind
func (s StockMappings) Lookup(kind EntityKind, name string) (StockMapping, bool) {
	m, ok := s[name]
	if !ok || m.Kind != kind {
		return StockMapping{}, false
	}
	return m, true
}

// FriendlyName turns a trait name into a label: "monthly_spend" -> "Monthly Spend"
func FriendlyName(name string) string {
	name = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
	// a Caser is stateful, so one per call
	return cases.Title(language.English, cases.NoLower).String(strings.Join(strings.Fields(name), " "))
}
