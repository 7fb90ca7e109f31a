// Package feedback holds feedback records extracted from connector
// conversations and tickets.
package feedback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
)

// Record is one piece of customer feedback. (tenant, content) is its natural key,
// so redelivered or out-of-order events collapse onto one record.
type Record struct {
	shared.TenantEntity
	PersonID    *uuid.UUID
	Connector   integration.ConnectorName
	Content     string
	ContentHash string
	SourceURL   string
	Metadata    map[string]string
}

// NewRecord creates a record; the content is stored verbatim
func NewRecord(tenantID uuid.UUID, connector integration.ConnectorName, content string) (*Record, error) {
	if strings.TrimSpace(content) == "" {
		return nil, shared.NewDomainError("INVALID_FEEDBACK", "Feedback content cannot be empty")
	}
	return &Record{
		TenantEntity: shared.NewTenantEntity(tenantID),
		Connector:    connector,
		Content:      content,
		ContentHash:  ContentHash(content),
		Metadata:     make(map[string]string),
	}, nil
}

// ContentHash is the hex SHA-256 of the verbatim content
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Repository persists feedback records
type Repository interface {
	// GetOrCreate returns the record with the same (tenant, content) or inserts rec.
	// The first writer's fields win; created reports whether rec was inserted.
	GetOrCreate(ctx context.Context, rec *Record) (*Record, bool, error)

	// FindByID finds a record within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Record, error)

	// FindByPerson lists a person's records
	FindByPerson(ctx context.Context, tenantID, personID uuid.UUID) ([]Record, error)

	// ReassignPerson moves every record of one person to another
	ReassignPerson(ctx context.Context, tenantID, fromPersonID, toPersonID uuid.UUID) (int64, error)
}
