package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type InstallRequest struct {
	Connector  string
	ChannelID  string
	Credential ChannelCredential
	Metadata   map[string]any
}

type BeginAuthorizationRequest struct {
	Connector string
	ChannelID string
	Metadata  map[string]any
}

type BeginAuthorizationResponse struct {
	State     string
	ExpiresAt time.Time
}

type CompleteAuthorizationRequest struct {
	State      string
	Credential ChannelCredential
	Metadata   map[string]any
}

// Install encrypts the credential payload and upserts the installation row
// for (connector, channel). Reinstalling an existing channel replaces the
// credential material in place.
func (s *Service) Install(ctx context.Context, req InstallRequest) (installation Installation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"connector":  req.Connector,
		"channel_id": req.ChannelID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "install", err, fields)
	}()

	if s == nil || s.installationStore == nil {
		err = fmt.Errorf("core: installation store is not configured")
		return Installation{}, s.mapError(err)
	}
	ref := ChannelRef{Connector: req.Connector, ChannelID: req.ChannelID}
	if err = ref.Validate(); err != nil {
		err = s.mapError(err)
		return Installation{}, err
	}

	encrypted, encryptErr := s.sealCredential(ctx, req.Credential)
	if encryptErr != nil {
		err = s.mapError(encryptErr)
		return Installation{}, err
	}

	installation, err = s.installationStore.Upsert(ctx, UpsertInstallationInput{
		Connector:            strings.TrimSpace(strings.ToLower(req.Connector)),
		ChannelID:            strings.TrimSpace(req.ChannelID),
		EncryptedCredentials: encrypted,
		CredentialFormat:     s.credentialCodec.Format(),
		CredentialVersion:    s.credentialCodec.Version(),
		HasRefreshCredential: strings.TrimSpace(req.Credential.RefreshToken) != "",
		Status:               InstallationStatusActive,
		Metadata:             RedactSensitiveMap(req.Metadata),
	})
	if err != nil {
		err = s.mapError(err)
		return Installation{}, err
	}
	fields["installation_id"] = installation.ID
	return installation, nil
}

// Uninstall purges credential bytes and marks the row uninstalled. The row
// itself survives for audit.
func (s *Service) Uninstall(ctx context.Context, connector, channelID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"connector":  connector,
		"channel_id": channelID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "uninstall", err, fields)
	}()

	if s == nil || s.installationStore == nil {
		err = fmt.Errorf("core: installation store is not configured")
		return s.mapError(err)
	}
	installation, lookupErr := s.installationStore.GetByChannel(ctx, connector, channelID)
	if lookupErr != nil {
		err = s.mapError(lookupErr)
		return err
	}
	if purgeErr := s.installationStore.PurgeCredentials(ctx, installation.ID); purgeErr != nil {
		err = s.mapError(purgeErr)
		return err
	}
	if statusErr := s.installationStore.UpdateStatus(ctx, installation.ID, InstallationStatusUninstalled); statusErr != nil {
		err = s.mapError(statusErr)
		return err
	}
	fields["installation_id"] = installation.ID
	return nil
}

func (s *Service) SuspendInstallation(ctx context.Context, connector, channelID string) error {
	return s.setInstallationStatus(ctx, connector, channelID, InstallationStatusSuspended)
}

func (s *Service) ResumeInstallation(ctx context.Context, connector, channelID string) error {
	return s.setInstallationStatus(ctx, connector, channelID, InstallationStatusActive)
}

func (s *Service) setInstallationStatus(ctx context.Context, connector, channelID string, status InstallationStatus) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"connector":  connector,
		"channel_id": channelID,
		"to_status":  string(status),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "installation_status", err, fields)
	}()

	if s == nil || s.installationStore == nil {
		err = fmt.Errorf("core: installation store is not configured")
		return s.mapError(err)
	}
	installation, lookupErr := s.installationStore.GetByChannel(ctx, connector, channelID)
	if lookupErr != nil {
		err = s.mapError(lookupErr)
		return err
	}
	if statusErr := s.installationStore.UpdateStatus(ctx, installation.ID, status); statusErr != nil {
		err = s.mapError(statusErr)
		return err
	}
	return nil
}

func (s *Service) GetInstallation(ctx context.Context, connector, channelID string) (Installation, error) {
	if s == nil || s.installationStore == nil {
		return Installation{}, s.mapError(fmt.Errorf("core: installation store is not configured"))
	}
	installation, err := s.installationStore.GetByChannel(ctx, connector, channelID)
	if err != nil {
		return Installation{}, s.mapError(err)
	}
	return installation, nil
}

func (s *Service) ListInstallations(ctx context.Context, connector string) ([]Installation, error) {
	if s == nil || s.installationStore == nil {
		return nil, s.mapError(fmt.Errorf("core: installation store is not configured"))
	}
	installations, err := s.installationStore.ListByConnector(ctx, connector)
	if err != nil {
		return nil, s.mapError(err)
	}
	return installations, nil
}

// Credentials returns the decrypted credential for one active installation.
func (s *Service) Credentials(ctx context.Context, connector, channelID string) (ChannelCredential, error) {
	if s == nil || s.installationStore == nil {
		return ChannelCredential{}, s.mapError(fmt.Errorf("core: installation store is not configured"))
	}
	installation, err := s.installationStore.GetByChannel(ctx, connector, channelID)
	if err != nil {
		return ChannelCredential{}, s.mapError(err)
	}
	if installation.Status != InstallationStatusActive {
		return ChannelCredential{}, s.mapError(fmt.Errorf("core: installation %s is not active", installation.ID))
	}
	credential, err := s.openCredential(ctx, installation)
	if err != nil {
		return ChannelCredential{}, s.mapError(err)
	}
	return credential, nil
}

// BeginAuthorization issues a single-use state token for the platform's
// authorization callback.
func (s *Service) BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (response BeginAuthorizationResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"connector":  req.Connector,
		"channel_id": req.ChannelID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_authorization", err, fields)
	}()

	if s == nil || s.authStateStore == nil {
		err = fmt.Errorf("core: auth state store is not configured")
		return BeginAuthorizationResponse{}, s.mapError(err)
	}
	ref := ChannelRef{Connector: req.Connector, ChannelID: req.ChannelID}
	if err = ref.Validate(); err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}
	state, generateErr := GenerateAuthState()
	if generateErr != nil {
		err = s.mapError(generateErr)
		return BeginAuthorizationResponse{}, err
	}
	record := AuthStateRecord{
		State:     state,
		Connector: strings.TrimSpace(strings.ToLower(req.Connector)),
		ChannelID: strings.TrimSpace(req.ChannelID),
		Metadata:  copyAnyMap(req.Metadata),
		ExpiresAt: time.Now().UTC().Add(defaultAuthStateTTL),
	}
	if saveErr := s.authStateStore.Put(ctx, record); saveErr != nil {
		err = s.mapError(saveErr)
		return BeginAuthorizationResponse{}, err
	}
	return BeginAuthorizationResponse{State: state, ExpiresAt: record.ExpiresAt}, nil
}

// CompleteAuthorization consumes the state token and installs the credential
// the callback delivered.
func (s *Service) CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (installation Installation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_authorization", err, fields)
	}()

	if s == nil || s.authStateStore == nil {
		err = fmt.Errorf("core: auth state store is not configured")
		return Installation{}, s.mapError(err)
	}
	record, consumeErr := s.authStateStore.Consume(ctx, req.State)
	if consumeErr != nil {
		err = s.mapError(consumeErr)
		return Installation{}, err
	}
	fields["connector"] = record.Connector
	fields["channel_id"] = record.ChannelID

	metadata := copyAnyMap(record.Metadata)
	for key, value := range req.Metadata {
		metadata[key] = value
	}
	installation, err = s.Install(ctx, InstallRequest{
		Connector:  record.Connector,
		ChannelID:  record.ChannelID,
		Credential: req.Credential,
		Metadata:   metadata,
	})
	if err != nil {
		return Installation{}, err
	}
	return installation, nil
}

// ResolveCaller maps a channel sender to a core caller identity. Unresolved
// senders come back anonymous rather than erroring.
func (s *Service) ResolveCaller(ctx context.Context, channel ChannelRef, senderID string) (CallerIdentity, error) {
	if s == nil || s.identityResolver == nil {
		return CallerIdentity{
			Channel:   channel,
			SenderID:  senderID,
			Anonymous: true,
		}, nil
	}
	identity, err := s.identityResolver.Resolve(ctx, channel, senderID)
	if err != nil {
		return CallerIdentity{}, s.mapError(err)
	}
	return identity, nil
}

func (s *Service) InvokeAction(ctx context.Context, req ActionRequest) ActionResult {
	if s == nil || s.actionInvoker == nil {
		return ActionResult{
			Success:   false,
			Error:     "action invoker is not configured",
			ErrorCode: RuntimeErrorActionFailure,
		}
	}
	return s.actionInvoker.Invoke(ctx, req)
}

func (s *Service) sealCredential(ctx context.Context, credential ChannelCredential) ([]byte, error) {
	payload, err := s.credentialCodec.Encode(credential)
	if err != nil {
		return nil, err
	}
	if s.secretProvider == nil {
		return payload, nil
	}
	encrypted, err := s.secretProvider.Encrypt(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("core: encrypt credential payload: %w", err)
	}
	return encrypted, nil
}

func (s *Service) openCredential(ctx context.Context, installation Installation) (ChannelCredential, error) {
	payload := installation.EncryptedCredentials
	if len(payload) == 0 {
		return ChannelCredential{}, fmt.Errorf("core: installation %s has no credential payload", installation.ID)
	}
	if s.secretProvider != nil {
		decrypted, err := s.secretProvider.Decrypt(ctx, payload)
		if err != nil {
			return ChannelCredential{}, fmt.Errorf("core: decrypt credential payload: %w", err)
		}
		payload = decrypted
	}
	return s.credentialCodec.Decode(payload)
}
