package integration

import (
	"context"
	"time"
)

// ArchiveReason says why a webhook payload was kept for inspection
type ArchiveReason string

const (
	ArchiveMalformed ArchiveReason = "malformed"
	ArchiveUnknown   ArchiveReason = "unknown"
)

// ArchivedPayload is a raw webhook body the gateway could not use
type ArchivedPayload struct {
	Connector  ConnectorName
	TenantSlug string
	EventType  string
	Reason     ArchiveReason
	ReceivedAt time.Time
	Body       []byte
}

// PayloadArchive stores rejected webhook payloads
type PayloadArchive interface {
	Archive(ctx context.Context, p ArchivedPayload) (string, error)
}
