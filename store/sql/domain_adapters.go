package sqlstore

import (
	"time"

	"github.com/goliatone/go-connectors/core"
)

func (r *installationRecord) toDomain() core.Installation {
	if r == nil {
		return core.Installation{}
	}
	installation := core.Installation{
		ID:                   r.ID,
		Connector:            r.Connector,
		ChannelID:            r.ChannelID,
		EncryptedCredentials: append([]byte(nil), r.EncryptedCredentials...),
		CredentialFormat:     r.CredentialFormat,
		CredentialVersion:    r.CredentialVersion,
		HasRefreshCredential: r.HasRefreshCredential,
		Status:               core.InstallationStatus(r.Status),
		Metadata:             copyAnyMap(r.Metadata),
		InstalledAt:          r.InstalledAt,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	installation.LastActiveAt = cloneTimePointer(r.LastActiveAt)
	return installation
}

func (r *deliveryRecord) toDomain() core.DeliveryRecord {
	if r == nil {
		return core.DeliveryRecord{}
	}
	record := core.DeliveryRecord{
		ID:         r.ID,
		Connector:  r.Connector,
		ChannelID:  r.ChannelID,
		DeliveryID: r.DeliveryID,
		State:      core.DeliveryState(r.State),
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		ExpiresAt:  r.ExpiresAt,
		ReceivedAt: r.ReceivedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	record.NextAttemptAt = cloneTimePointer(r.NextAttemptAt)
	return record
}

func copyAnyMap(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
