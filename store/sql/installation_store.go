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

// InstallationStore persists connector installations in SQL. At most one
// live (non-uninstalled) row exists per (connector, channel); uninstall is
// terminal and a reinstall creates a fresh row.
type InstallationStore struct {
	db   *bun.DB
	repo repository.Repository[*installationRecord]
}

func NewInstallationStore(db *bun.DB) (*InstallationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*installationRecord](db, installationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid installation repository wiring: %w", err)
		}
	}
	return &InstallationStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *InstallationStore) Upsert(ctx context.Context, in core.UpsertInstallationInput) (core.Installation, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: installation store is not configured")
	}
	in.Connector = strings.TrimSpace(strings.ToLower(in.Connector))
	in.ChannelID = strings.TrimSpace(in.ChannelID)
	if in.Connector == "" || in.ChannelID == "" {
		return core.Installation{}, fmt.Errorf("sqlstore: connector and channel id are required")
	}
	status, statusErr := parseInstallationStatusValue(in.Status)
	if statusErr != nil {
		return core.Installation{}, statusErr
	}

	now := time.Now().UTC()
	var out core.Installation
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findLiveInstallationTx(ctx, tx, in.Connector, in.ChannelID)
		if err != nil {
			return err
		}
		if record == nil {
			if status != core.InstallationStatusActive {
				return fmt.Errorf("sqlstore: installation must be created with status active")
			}
			record = &installationRecord{
				ID:                   uuid.NewString(),
				Connector:            in.Connector,
				ChannelID:            in.ChannelID,
				EncryptedCredentials: append([]byte(nil), in.EncryptedCredentials...),
				CredentialFormat:     strings.TrimSpace(in.CredentialFormat),
				CredentialVersion:    in.CredentialVersion,
				HasRefreshCredential: in.HasRefreshCredential,
				Status:               string(status),
				Metadata:             copyAnyMap(in.Metadata),
				InstalledAt:          now,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		candidate := record.toDomain()
		if transitionErr := candidate.TransitionTo(status, now); transitionErr != nil {
			return transitionErr
		}

		record.Status = string(status)
		record.EncryptedCredentials = append([]byte(nil), in.EncryptedCredentials...)
		record.CredentialFormat = strings.TrimSpace(in.CredentialFormat)
		record.CredentialVersion = in.CredentialVersion
		record.HasRefreshCredential = in.HasRefreshCredential
		record.Metadata = copyAnyMap(in.Metadata)
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Installation{}, err
	}
	return out, nil
}

func (s *InstallationStore) Get(ctx context.Context, id string) (core.Installation, error) {
	if s == nil || s.repo == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: installation store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.Installation{}, err
	}
	return record.toDomain(), nil
}

func (s *InstallationStore) GetByChannel(ctx context.Context, connector, channelID string) (core.Installation, error) {
	if s == nil || s.db == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: installation store is not configured")
	}
	connector = strings.TrimSpace(strings.ToLower(connector))
	channelID = strings.TrimSpace(channelID)
	if connector == "" || channelID == "" {
		return core.Installation{}, fmt.Errorf("sqlstore: connector and channel id are required")
	}

	record := &installationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.connector = ?", connector).
		Where("?TableAlias.channel_id = ?", channelID).
		Where("?TableAlias.status != ?", string(core.InstallationStatusUninstalled)).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Installation{}, fmt.Errorf(
				"sqlstore: installation not found for connector %q channel %q",
				connector,
				channelID,
			)
		}
		return core.Installation{}, err
	}
	return record.toDomain(), nil
}

func (s *InstallationStore) ListByConnector(ctx context.Context, connector string) ([]core.Installation, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: installation store is not configured")
	}
	connector = strings.TrimSpace(strings.ToLower(connector))
	if connector == "" {
		return nil, fmt.Errorf("sqlstore: connector is required")
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("connector", "=", connector),
		repository.OrderBy("updated_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Installation, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *InstallationStore) UpdateStatus(ctx context.Context, id string, status core.InstallationStatus) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: installation store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: installation id is required")
	}
	targetStatus, parseErr := parseInstallationStatusValue(status)
	if parseErr != nil {
		return parseErr
	}

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	candidate := record.toDomain()
	if transitionErr := candidate.TransitionTo(targetStatus, now); transitionErr != nil {
		return transitionErr
	}
	record.Status = string(targetStatus)
	record.UpdatedAt = now
	record.Metadata = copyAnyMap(record.Metadata)
	_, err = s.repo.Update(ctx, record, repository.UpdateByID(id))
	return err
}

func (s *InstallationStore) PurgeCredentials(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: installation store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: installation id is required")
	}
	now := time.Now().UTC()
	_, err := s.db.NewUpdate().
		Model((*installationRecord)(nil)).
		Set("encrypted_credentials = NULL").
		Set("credential_format = ''").
		Set("credential_version = 0").
		Set("has_refresh_credential = ?", false).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *InstallationStore) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: installation store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: installation id is required")
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	_, err := s.db.NewUpdate().
		Model((*installationRecord)(nil)).
		Set("last_active_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func findLiveInstallationTx(
	ctx context.Context,
	tx bun.Tx,
	connector string,
	channelID string,
) (*installationRecord, error) {
	record := &installationRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.connector = ?", strings.TrimSpace(connector)).
		Where("?TableAlias.channel_id = ?", strings.TrimSpace(channelID)).
		Where("?TableAlias.status != ?", string(core.InstallationStatusUninstalled)).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func parseInstallationStatusValue(status core.InstallationStatus) (core.InstallationStatus, error) {
	normalized := core.InstallationStatus(strings.TrimSpace(strings.ToLower(string(status))))
	if normalized == "" {
		return core.InstallationStatusActive, nil
	}
	switch normalized {
	case core.InstallationStatusActive,
		core.InstallationStatusSuspended,
		core.InstallationStatusUninstalled:
		return normalized, nil
	default:
		return "", fmt.Errorf("sqlstore: invalid installation status %q", string(status))
	}
}
