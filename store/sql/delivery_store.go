package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultDeliveryTTL = time.Hour

// DeliveryStore is the durable dedup ledger. The unique dedup_key index makes
// Claim atomic across processes: the losing insert observes the winner's row.
type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *DeliveryStore) Claim(ctx context.Context, record core.DedupRecord) (core.ClaimOutcome, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("sqlstore: delivery store is not configured")
	}
	connector := strings.TrimSpace(strings.ToLower(record.Connector))
	channelID := strings.TrimSpace(record.ChannelID)
	deliveryID := strings.TrimSpace(record.DeliveryID)
	if connector == "" || channelID == "" || deliveryID == "" {
		return "", fmt.Errorf("sqlstore: connector, channel id and delivery id are required")
	}

	now := time.Now().UTC()
	seenAt := record.SeenAt
	if seenAt.IsZero() {
		seenAt = now
	}
	expiresAt := record.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = seenAt.Add(defaultDeliveryTTL)
	}

	row := &deliveryRecord{
		ID:         uuid.NewString(),
		DedupKey:   record.Key(),
		Connector:  connector,
		ChannelID:  channelID,
		DeliveryID: deliveryID,
		State:      string(core.DeliveryStateReceived),
		Attempts:   1,
		ExpiresAt:  expiresAt.UTC(),
		ReceivedAt: seenAt.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return "", err
		}
		existing, getErr := s.getByKey(ctx, record.Key())
		if getErr != nil {
			return "", getErr
		}
		if existing.ExpiresAt.After(now) && existing.State != string(core.DeliveryStateFailed) {
			return core.ClaimOutcomeDuplicate, nil
		}
		// expired or failed row: the delivery id is free to claim again
		row.Attempts = existing.Attempts + 1
		if reclaimErr := s.reclaim(ctx, existing.ID, row); reclaimErr != nil {
			return "", reclaimErr
		}
	}
	return core.ClaimOutcomeAccepted, nil
}

func (s *DeliveryStore) MarkProcessed(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	now := time.Now().UTC()
	_, err := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("state = ?", string(core.DeliveryStateProcessed)).
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", now).
		Where("dedup_key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	return err
}

func (s *DeliveryStore) MarkFailed(ctx context.Context, key string, cause error, nextAttemptAt *time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	now := time.Now().UTC()
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	query := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("state = ?", string(core.DeliveryStateFailed)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", now).
		Where("dedup_key = ?", strings.TrimSpace(key))
	if nextAttemptAt != nil {
		query = query.Set("next_attempt_at = ?", nextAttemptAt.UTC())
	} else {
		query = query.Set("next_attempt_at = NULL")
	}
	_, err := query.Exec(ctx)
	return err
}

func (s *DeliveryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if now.IsZero() {
		now = time.Now()
	}
	result, err := s.db.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

// Get returns the durable record for one delivery, for inspection and tests.
func (s *DeliveryStore) Get(ctx context.Context, connector, channelID, deliveryID string) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	key := core.DedupRecord{
		Connector:  connector,
		ChannelID:  channelID,
		DeliveryID: deliveryID,
	}.Key()
	record, err := s.getByKey(ctx, key)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryStore) getByKey(ctx context.Context, key string) (*deliveryRecord, error) {
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.dedup_key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlstore: delivery not found for key %q", key)
		}
		return nil, err
	}
	return record, nil
}

func (s *DeliveryStore) reclaim(ctx context.Context, existingID string, next *deliveryRecord) error {
	_, err := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("state = ?", next.State).
		Set("attempts = ?", next.Attempts).
		Set("last_error = ''").
		Set("next_attempt_at = NULL").
		Set("expires_at = ?", next.ExpiresAt).
		Set("received_at = ?", next.ReceivedAt).
		Set("updated_at = ?", next.UpdatedAt).
		Where("id = ?", existingID).
		Exec(ctx)
	return err
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
