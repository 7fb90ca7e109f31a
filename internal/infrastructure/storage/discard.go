package storage

import (
	"context"

	"github.com/feedsync/backend/internal/domain/integration"
)

// DiscardArchive is used when payload archiving is disabled
type DiscardArchive struct{}

func (DiscardArchive) Archive(context.Context, integration.ArchivedPayload) (string, error) {
	return "", nil
}

var _ integration.PayloadArchive = DiscardArchive{}
