package models

import (
	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/feedback"
	"github.com/feedsync/backend/internal/domain/integration"
)

// FeedbackRecordModel is the persistence model for the feedback Record entity.
// (tenant_id, content_hash) is the natural key.
type FeedbackRecordModel struct {
	BaseModel
	TenantID     uuid.UUID                 `gorm:"type:uuid;not null;index;uniqueIndex:idx_feedback_records_content,priority:1"`
	ContentHash  string                    `gorm:"type:char(64);not null;uniqueIndex:idx_feedback_records_content,priority:2"`
	PersonID     *uuid.UUID                `gorm:"type:uuid;index"`
	Connector    integration.ConnectorName `gorm:"type:varchar(32);not null"`
	Content      string                    `gorm:"type:text;not null"`
	SourceURL    string                    `gorm:"type:varchar(1024)"`
	MetadataJSON string                    `gorm:"type:jsonb;column:metadata;not null;default:'{}'"`
}

// TableName returns the table name for GORM
func (FeedbackRecordModel) TableName() string {
	return "feedback_records"
}

// ToDomain converts the persistence model to a domain feedback Record
func (m *FeedbackRecordModel) ToDomain() *feedback.Record {
	return &feedback.Record{
		TenantEntity: tenantEntity(&m.BaseModel, m.TenantID),
		PersonID:     m.PersonID,
		Connector:    m.Connector,
		Content:      m.Content,
		ContentHash:  m.ContentHash,
		SourceURL:    m.SourceURL,
		Metadata:     decodeStrings(m.MetadataJSON),
	}
}

// FromDomain populates the persistence model from a domain feedback Record
func (m *FeedbackRecordModel) FromDomain(r *feedback.Record) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.TenantID = r.TenantID
	m.ContentHash = r.ContentHash
	if m.ContentHash == "" {
		m.ContentHash = feedback.ContentHash(r.Content)
	}
	m.PersonID = r.PersonID
	m.Connector = r.Connector
	m.Content = r.Content
	m.SourceURL = r.SourceURL
	m.MetadataJSON = encodeStrings(r.Metadata)
}

// FeedbackRecordModelFromDomain creates a persistence model from a domain feedback Record
func FeedbackRecordModelFromDomain(r *feedback.Record) *FeedbackRecordModel {
	m := &FeedbackRecordModel{}
	m.FromDomain(r)
	return m
}
