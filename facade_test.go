package connectors

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	connectorscommand "github.com/goliatone/go-connectors/command"
	"github.com/goliatone/go-connectors/core"
	connectorsquery "github.com/goliatone/go-connectors/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.LoadConnector == nil || commands.RouteMessage == nil || commands.CompleteAuthorization == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetInstallation == nil || queries.ConnectorStatus == nil || queries.HealthReport == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	collector := gocmd.NewResult[core.RouteResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := facade.Commands().RouteMessage.Execute(ctx, connectorscommand.RouteMessageMessage{
		Message: core.NormalizedMessage{
			Channel:  core.ChannelRef{Connector: "demo", ChannelID: "c1"},
			SenderID: "u1",
			Text:     "hello",
		},
	}); err != nil {
		t.Fatalf("execute route message command: %v", err)
	}
	if svc.lastRoutedSender != "u1" {
		t.Fatalf("unexpected route delegation payload")
	}
	result, ok := collector.Load()
	if !ok || !result.Handled {
		t.Fatalf("expected routed result in collector, got %#v", result)
	}

	installation, err := facade.Queries().GetInstallation.Query(context.Background(), connectorsquery.GetInstallationMessage{
		Connector: "demo",
		ChannelID: "c1",
	})
	if err != nil {
		t.Fatalf("query get installation: %v", err)
	}
	if installation.ID != "ins_1" {
		t.Fatalf("unexpected installation query result: %#v", installation)
	}

	status, err := facade.Queries().ConnectorStatus.Query(context.Background(), connectorsquery.ConnectorStatusMessage{Name: "demo"})
	if err != nil {
		t.Fatalf("query connector status: %v", err)
	}
	if status.State != core.ConnectorStateStarted {
		t.Fatalf("unexpected connector status result: %#v", status)
	}
}

func TestNewFacade_ConnectorReaderOverride(t *testing.T) {
	svc := &stubFacadeService{}
	reader := stubFacadeConnectorReader{statuses: map[string]core.ConnectorStatus{
		"override": {Name: "override", State: core.ConnectorStateDegraded},
	}}

	facade, err := NewFacade(svc, WithConnectorReader(reader))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	status, err := facade.Queries().ConnectorStatus.Query(context.Background(), connectorsquery.ConnectorStatusMessage{Name: "override"})
	if err != nil {
		t.Fatalf("query connector status: %v", err)
	}
	if status.State != core.ConnectorStateDegraded {
		t.Fatalf("expected override reader to serve status, got %#v", status)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubFacadeService struct {
	lastRoutedSender string
}

func (s *stubFacadeService) LoadConnector(context.Context, core.LoadRequest) (core.ConnectorStatus, error) {
	return core.ConnectorStatus{Name: "demo", State: core.ConnectorStateStarted}, nil
}

func (s *stubFacadeService) StopConnector(context.Context, string) error { return nil }

func (s *stubFacadeService) RouteMessage(_ context.Context, msg core.NormalizedMessage) (core.RouteResult, error) {
	s.lastRoutedSender = msg.SenderID
	return core.RouteResult{Handled: true}, nil
}

func (s *stubFacadeService) PublishEvent(context.Context, core.CoreEvent) (core.BroadcastReport, error) {
	return core.BroadcastReport{Delivered: 1}, nil
}

func (s *stubFacadeService) Install(context.Context, core.InstallRequest) (core.Installation, error) {
	return core.Installation{ID: "ins_1"}, nil
}

func (s *stubFacadeService) Uninstall(context.Context, string, string) error { return nil }

func (s *stubFacadeService) SuspendInstallation(context.Context, string, string) error { return nil }

func (s *stubFacadeService) ResumeInstallation(context.Context, string, string) error { return nil }

func (s *stubFacadeService) BeginAuthorization(context.Context, core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error) {
	return core.BeginAuthorizationResponse{}, nil
}

func (s *stubFacadeService) CompleteAuthorization(context.Context, core.CompleteAuthorizationRequest) (core.Installation, error) {
	return core.Installation{ID: "ins_1"}, nil
}

func (s *stubFacadeService) GetInstallation(context.Context, string, string) (core.Installation, error) {
	return core.Installation{ID: "ins_1", Connector: "demo", ChannelID: "c1"}, nil
}

func (s *stubFacadeService) ListInstallations(context.Context, string) ([]core.Installation, error) {
	return []core.Installation{{ID: "ins_1"}}, nil
}

func (s *stubFacadeService) HealthCheckAll(context.Context) map[string]core.ConnectorStatus {
	return map[string]core.ConnectorStatus{"demo": {Name: "demo", State: core.ConnectorStateStarted}}
}

func (s *stubFacadeService) Status(name string) (core.ConnectorStatus, bool) {
	if name != "demo" {
		return core.ConnectorStatus{}, false
	}
	return core.ConnectorStatus{Name: "demo", State: core.ConnectorStateStarted}, true
}

func (s *stubFacadeService) List() []core.ConnectorStatus {
	return []core.ConnectorStatus{{Name: "demo", State: core.ConnectorStateStarted}}
}

type stubFacadeConnectorReader struct {
	statuses map[string]core.ConnectorStatus
}

func (s stubFacadeConnectorReader) Status(name string) (core.ConnectorStatus, bool) {
	status, ok := s.statuses[name]
	return status, ok
}

func (s stubFacadeConnectorReader) List() []core.ConnectorStatus {
	out := make([]core.ConnectorStatus, 0, len(s.statuses))
	for _, status := range s.statuses {
		out = append(out, status)
	}
	return out
}

var _ CommandQueryService = (*stubFacadeService)(nil)
