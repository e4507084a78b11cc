package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type installationRecord struct {
	bun.BaseModel `bun:"table:connector_installations,alias:ci"`

	ID                   string         `bun:"id,pk"`
	Connector            string         `bun:"connector,notnull"`
	ChannelID            string         `bun:"channel_id,notnull"`
	EncryptedCredentials []byte         `bun:"encrypted_credentials"`
	CredentialFormat     string         `bun:"credential_format"`
	CredentialVersion    int            `bun:"credential_version,notnull"`
	HasRefreshCredential bool           `bun:"has_refresh_credential,notnull"`
	Status               string         `bun:"status,notnull"`
	Metadata             map[string]any `bun:"metadata,type:jsonb,notnull"`
	InstalledAt          time.Time      `bun:"installed_at,nullzero,notnull"`
	LastActiveAt         *time.Time     `bun:"last_active_at,nullzero"`
	CreatedAt            time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:connector_deliveries,alias:cd"`

	ID            string     `bun:"id,pk"`
	DedupKey      string     `bun:"dedup_key,notnull"`
	Connector     string     `bun:"connector,notnull"`
	ChannelID     string     `bun:"channel_id,notnull"`
	DeliveryID    string     `bun:"delivery_id,notnull"`
	State         string     `bun:"state,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	LastError     string     `bun:"last_error"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	ExpiresAt     time.Time  `bun:"expires_at,nullzero,notnull"`
	ReceivedAt    time.Time  `bun:"received_at,nullzero,notnull"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
