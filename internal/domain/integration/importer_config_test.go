package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImporterConfig(t *testing.T) {
	cfg, err := NewImporterConfig(uuid.New(), ConnectorSegment)
	require.NoError(t, err)
	assert.Len(t, cfg.WebhookSecret, 64)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, SyncStatusNever, cfg.LastSyncStatus)
	assert.Nil(t, cfg.LastSyncedAt)

	other, err := NewImporterConfig(uuid.New(), ConnectorSegment)
	require.NoError(t, err)
	assert.NotEqual(t, cfg.WebhookSecret, other.WebhookSecret)

	_, err = NewImporterConfig(uuid.New(), "zendesk")
	assert.ErrorIs(t, err, ErrConnectorNotFound)

	_, err = NewImporterConfig(uuid.Nil, ConnectorSegment)
	assert.Error(t, err)
}

func TestImporterConfig_Watermark(t *testing.T) {
	cfg, err := NewImporterConfig(uuid.New(), ConnectorIntercom)
	require.NoError(t, err)

	assert.Nil(t, cfg.Watermark(false), "no watermark means everything")

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cfg.MarkSynced(start)
	require.NotNil(t, cfg.Watermark(false))
	assert.Equal(t, start, *cfg.Watermark(false))
	assert.Nil(t, cfg.Watermark(true), "full resync ignores the watermark")
	assert.Equal(t, SyncStatusSucceeded, cfg.LastSyncStatus)

	cfg.MarkAuthFailed(ErrAuth)
	assert.Equal(t, SyncStatusAuthFailed, cfg.LastSyncStatus)
	assert.Equal(t, start, *cfg.LastSyncedAt, "failure keeps the watermark")

	cfg.UpdateCredentials(Credentials{AccessToken: "new"})
	assert.Equal(t, SyncStatusNever, cfg.LastSyncStatus)
	assert.Equal(t, "new", cfg.Credentials.Token())
}

func TestImporterConfig_Settings(t *testing.T) {
	cfg, err := NewImporterConfig(uuid.New(), ConnectorHelpScout)
	require.NoError(t, err)

	assert.Equal(t, DefaultFeedbackTag, cfg.FeedbackTag())
	assert.Equal(t, DefaultNotePrefix, cfg.NotePrefix())

	cfg.Settings[SettingFeedbackTag] = "idea"
	cfg.Settings[SettingNotePrefix] = " "
	assert.Equal(t, "idea", cfg.FeedbackTag())
	assert.Equal(t, DefaultNotePrefix, cfg.NotePrefix(), "blank setting falls back")

	assert.Equal(t, time.Hour, cfg.SyncInterval())
	cfg.SyncIntervalMinutes = 15
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval())
}

func TestRateLimitError(t *testing.T) {
	err := error(&RateLimitError{RetryAfter: 11 * time.Second})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, IsExpected(err))

	d, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 11*time.Second, d)

	_, ok = RetryAfter(ErrRateLimited)
	assert.False(t, ok)

	assert.True(t, IsExpected(errors.Join(errors.New("page 3"), ErrAuth)))
	assert.False(t, IsExpected(ErrTransientIO))
}

func TestConnectorName(t *testing.T) {
	for _, n := range AllConnectorNames() {
		assert.True(t, n.IsValid())
		assert.NotEmpty(t, n.DisplayName())
	}
	assert.False(t, ConnectorName("zendesk").IsValid())
	assert.Equal(t, "Help Scout", ConnectorHelpScout.DisplayName())
}
