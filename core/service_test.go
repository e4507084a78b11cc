package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeInstallationStore struct {
	mu      sync.Mutex
	rows    map[string]*Installation
	byRef   map[string]string
	upserts int
}

func newFakeInstallationStore() *fakeInstallationStore {
	return &fakeInstallationStore{
		rows:  map[string]*Installation{},
		byRef: map[string]string{},
	}
}

func (s *fakeInstallationStore) refKey(connector, channelID string) string {
	return strings.TrimSpace(strings.ToLower(connector)) + ":" + strings.TrimSpace(channelID)
}

func (s *fakeInstallationStore) Upsert(_ context.Context, in UpsertInstallationInput) (Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	key := s.refKey(in.Connector, in.ChannelID)
	id, ok := s.byRef[key]
	if !ok {
		id = uuid.NewString()
		s.byRef[key] = id
	}
	now := time.Now().UTC()
	row := &Installation{
		ID:                   id,
		Connector:            in.Connector,
		ChannelID:            in.ChannelID,
		EncryptedCredentials: append([]byte(nil), in.EncryptedCredentials...),
		CredentialFormat:     in.CredentialFormat,
		CredentialVersion:    in.CredentialVersion,
		HasRefreshCredential: in.HasRefreshCredential,
		Status:               in.Status,
		Metadata:             in.Metadata,
		InstalledAt:          now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.rows[id] = row
	return *row, nil
}

func (s *fakeInstallationStore) Get(_ context.Context, id string) (Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		return *row, nil
	}
	return Installation{}, fmt.Errorf("installation not found: %s", id)
}

func (s *fakeInstallationStore) GetByChannel(_ context.Context, connector, channelID string) (Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byRef[s.refKey(connector, channelID)]; ok {
		return *s.rows[id], nil
	}
	return Installation{}, fmt.Errorf("installation not found for %s:%s", connector, channelID)
}

func (s *fakeInstallationStore) ListByConnector(_ context.Context, connector string) ([]Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Installation
	for _, row := range s.rows {
		if row.Connector == strings.TrimSpace(strings.ToLower(connector)) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *fakeInstallationStore) UpdateStatus(_ context.Context, id string, status InstallationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("installation not found: %s", id)
	}
	return row.TransitionTo(status, time.Now().UTC())
}

func (s *fakeInstallationStore) PurgeCredentials(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("installation not found: %s", id)
	}
	row.EncryptedCredentials = nil
	return nil
}

func (s *fakeInstallationStore) TouchLastActive(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		stamp := at.UTC()
		row.LastActiveAt = &stamp
	}
	return nil
}

var _ InstallationStore = (*fakeInstallationStore)(nil)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	service, err := NewService(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestService_InstallEncryptsAndUninstallPurges(t *testing.T) {
	store := newFakeInstallationStore()
	service := newTestService(t, WithInstallationStore(store))

	installation, err := service.Install(context.Background(), InstallRequest{
		Connector: "demo",
		ChannelID: "C1",
		Credential: ChannelCredential{
			BotToken:      "xoxb-123",
			SigningSecret: "hush",
		},
		Metadata: map[string]any{"bot_token": "raw", "team": "T1"},
	})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if installation.Status != InstallationStatusActive {
		t.Fatalf("expected active installation, got %s", installation.Status)
	}
	if len(installation.EncryptedCredentials) == 0 {
		t.Fatalf("expected credential payload stored")
	}
	if installation.Metadata["bot_token"] != RedactedValue {
		t.Fatalf("expected metadata credential keys redacted, got %v", installation.Metadata)
	}

	credential, err := service.Credentials(context.Background(), "demo", "C1")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if credential.BotToken != "xoxb-123" || credential.SigningSecret != "hush" {
		t.Fatalf("round trip mismatch: %+v", credential)
	}

	if err := service.Uninstall(context.Background(), "demo", "C1"); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	row, err := store.Get(context.Background(), installation.ID)
	if err != nil {
		t.Fatalf("get row: %v", err)
	}
	if row.Status != InstallationStatusUninstalled {
		t.Fatalf("expected uninstalled status, got %s", row.Status)
	}
	if len(row.EncryptedCredentials) != 0 {
		t.Fatalf("expected credentials purged")
	}
	if _, err := service.Credentials(context.Background(), "demo", "C1"); err == nil {
		t.Fatalf("expected credentials unavailable after uninstall")
	}
}

func TestService_SuspendAndResume(t *testing.T) {
	store := newFakeInstallationStore()
	service := newTestService(t, WithInstallationStore(store))

	if _, err := service.Install(context.Background(), InstallRequest{
		Connector:  "demo",
		ChannelID:  "C1",
		Credential: ChannelCredential{BotToken: "t"},
	}); err != nil {
		t.Fatalf("install: %v", err)
	}

	if err := service.SuspendInstallation(context.Background(), "demo", "C1"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := service.Credentials(context.Background(), "demo", "C1"); err == nil {
		t.Fatalf("expected suspended installation to refuse credentials")
	}
	if err := service.ResumeInstallation(context.Background(), "demo", "C1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := service.Credentials(context.Background(), "demo", "C1"); err != nil {
		t.Fatalf("credentials after resume: %v", err)
	}
}

func TestService_AuthorizationFlow(t *testing.T) {
	store := newFakeInstallationStore()
	service := newTestService(t, WithInstallationStore(store))

	begin, err := service.BeginAuthorization(context.Background(), BeginAuthorizationRequest{
		Connector: "demo",
		ChannelID: "C1",
		Metadata:  map[string]any{"origin": "settings"},
	})
	if err != nil {
		t.Fatalf("begin authorization: %v", err)
	}
	if begin.State == "" {
		t.Fatalf("expected generated state")
	}

	installation, err := service.CompleteAuthorization(context.Background(), CompleteAuthorizationRequest{
		State:      begin.State,
		Credential: ChannelCredential{BotToken: "xoxb-123"},
	})
	if err != nil {
		t.Fatalf("complete authorization: %v", err)
	}
	if installation.Connector != "demo" || installation.ChannelID != "C1" {
		t.Fatalf("unexpected installation: %+v", installation)
	}

	// state is single use
	if _, err := service.CompleteAuthorization(context.Background(), CompleteAuthorizationRequest{
		State:      begin.State,
		Credential: ChannelCredential{BotToken: "xoxb-123"},
	}); err == nil {
		t.Fatalf("expected replayed state to fail")
	}
}

func TestService_PublishEventFansOut(t *testing.T) {
	service := newTestService(t)
	registry := service.Registry()
	connector := &testConnector{name: "demo"}
	if err := registry.RegisterFactory("demo", func(map[string]any) (Connector, error) {
		return connector, nil
	}); err != nil {
		t.Fatalf("register factory: %v", err)
	}
	if _, err := service.LoadConnector(context.Background(), LoadRequest{Name: "demo"}); err != nil {
		t.Fatalf("load connector: %v", err)
	}

	busDeliveries := 0
	if _, err := service.EventBus().Subscribe("task.completed", EventHandlerFunc(func(context.Context, CoreEvent) error {
		busDeliveries++
		return nil
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	report, err := service.PublishEvent(context.Background(), CoreEvent{Type: "task.completed"})
	if err != nil {
		t.Fatalf("publish event: %v", err)
	}
	if report.Delivered != 1 {
		t.Fatalf("expected one connector delivery, got %d", report.Delivered)
	}
	if busDeliveries != 1 {
		t.Fatalf("expected one bus delivery, got %d", busDeliveries)
	}
	if len(connector.events) != 1 {
		t.Fatalf("expected connector to receive the event")
	}
	if connector.events[0].ID == "" {
		t.Fatalf("expected event id assigned")
	}
}

func TestService_RouteMessageTouchesInstallation(t *testing.T) {
	store := newFakeInstallationStore()
	service := newTestService(t, WithInstallationStore(store))
	connector := &testConnector{name: "demo"}
	if err := service.Registry().RegisterFactory("demo", func(map[string]any) (Connector, error) {
		return connector, nil
	}); err != nil {
		t.Fatalf("register factory: %v", err)
	}
	if _, err := service.LoadConnector(context.Background(), LoadRequest{Name: "demo"}); err != nil {
		t.Fatalf("load connector: %v", err)
	}
	installation, err := service.Install(context.Background(), InstallRequest{
		Connector:  "demo",
		ChannelID:  "C1",
		Credential: ChannelCredential{BotToken: "t"},
	})
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	result, err := service.RouteMessage(context.Background(), NormalizedMessage{
		Channel:  ChannelRef{Connector: "demo", ChannelID: "C1"},
		SenderID: "U1",
		Text:     "plan my week",
	})
	if err != nil {
		t.Fatalf("route message: %v", err)
	}
	if !result.Handled {
		t.Fatalf("expected message handled")
	}
	row, _ := store.Get(context.Background(), installation.ID)
	if row.LastActiveAt == nil {
		t.Fatalf("expected last active timestamp")
	}
}

func TestService_ResolveCallerWithoutResolver(t *testing.T) {
	service := newTestService(t)
	identity, err := service.ResolveCaller(context.Background(), ChannelRef{Connector: "demo", ChannelID: "C1"}, "U1")
	if err != nil {
		t.Fatalf("resolve caller: %v", err)
	}
	if !identity.Anonymous {
		t.Fatalf("expected anonymous identity, got %+v", identity)
	}
}

func TestService_InvokeActionWithoutInvoker(t *testing.T) {
	service := newTestService(t)
	result := service.InvokeAction(context.Background(), ActionRequest{Name: "create_task"})
	if result.Success {
		t.Fatalf("expected failure result")
	}
	if result.ErrorCode != RuntimeErrorActionFailure {
		t.Fatalf("expected action failure code, got %s", result.ErrorCode)
	}
}

func TestService_ShutdownStopsAndDrains(t *testing.T) {
	service := newTestService(t)
	connector := &testConnector{name: "demo"}
	if err := service.Registry().RegisterFactory("demo", func(map[string]any) (Connector, error) {
		return connector, nil
	}); err != nil {
		t.Fatalf("register factory: %v", err)
	}
	if _, err := service.LoadConnector(context.Background(), LoadRequest{Name: "demo"}); err != nil {
		t.Fatalf("load connector: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := service.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !connector.stopped {
		t.Fatalf("expected connector stopped")
	}
}
