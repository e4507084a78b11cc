package command

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connectors/core"
)

type stubMutatingService struct {
	loadFn         func(ctx context.Context, req core.LoadRequest) (core.ConnectorStatus, error)
	stopFn         func(ctx context.Context, name string) error
	routeFn        func(ctx context.Context, msg core.NormalizedMessage) (core.RouteResult, error)
	publishFn      func(ctx context.Context, event core.CoreEvent) (core.BroadcastReport, error)
	installFn      func(ctx context.Context, req core.InstallRequest) (core.Installation, error)
	uninstallFn    func(ctx context.Context, connector, channelID string) error
	suspendFn      func(ctx context.Context, connector, channelID string) error
	resumeFn       func(ctx context.Context, connector, channelID string) error
	beginAuthFn    func(ctx context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error)
	completeAuthFn func(ctx context.Context, req core.CompleteAuthorizationRequest) (core.Installation, error)
}

func (s stubMutatingService) LoadConnector(ctx context.Context, req core.LoadRequest) (core.ConnectorStatus, error) {
	return s.loadFn(ctx, req)
}

func (s stubMutatingService) StopConnector(ctx context.Context, name string) error {
	return s.stopFn(ctx, name)
}

func (s stubMutatingService) RouteMessage(ctx context.Context, msg core.NormalizedMessage) (core.RouteResult, error) {
	return s.routeFn(ctx, msg)
}

func (s stubMutatingService) PublishEvent(ctx context.Context, event core.CoreEvent) (core.BroadcastReport, error) {
	return s.publishFn(ctx, event)
}

func (s stubMutatingService) Install(ctx context.Context, req core.InstallRequest) (core.Installation, error) {
	return s.installFn(ctx, req)
}

func (s stubMutatingService) Uninstall(ctx context.Context, connector, channelID string) error {
	return s.uninstallFn(ctx, connector, channelID)
}

func (s stubMutatingService) SuspendInstallation(ctx context.Context, connector, channelID string) error {
	return s.suspendFn(ctx, connector, channelID)
}

func (s stubMutatingService) ResumeInstallation(ctx context.Context, connector, channelID string) error {
	return s.resumeFn(ctx, connector, channelID)
}

func (s stubMutatingService) BeginAuthorization(ctx context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error) {
	return s.beginAuthFn(ctx, req)
}

func (s stubMutatingService) CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.Installation, error) {
	return s.completeAuthFn(ctx, req)
}

func TestLoadConnectorCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.ConnectorStatus{Name: "demo", State: core.ConnectorStateStarted}
	called := false

	svc := stubMutatingService{
		loadFn: func(_ context.Context, req core.LoadRequest) (core.ConnectorStatus, error) {
			called = true
			if req.Name != "demo" {
				t.Fatalf("expected connector demo, got %q", req.Name)
			}
			return expected, nil
		},
	}

	cmd := NewLoadConnectorCommand(svc)
	collector := gocmd.NewResult[core.ConnectorStatus]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, LoadConnectorMessage{Request: core.LoadRequest{
		Name:   "demo",
		Config: map[string]any{"secret": "s3cr3t"},
	}})
	if err != nil {
		t.Fatalf("execute load: %v", err)
	}
	if !called {
		t.Fatalf("expected load invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Name != expected.Name || result.State != expected.State {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			stopFn: func(_ context.Context, name string) error {
				called = true
				if name != "demo" {
					t.Fatalf("unexpected stop target %q", name)
				}
				return nil
			},
		}
		cmd := NewStopConnectorCommand(svc)
		if err := cmd.Execute(context.Background(), StopConnectorMessage{Name: "demo"}); err != nil {
			t.Fatalf("execute stop: %v", err)
		}
		if !called {
			t.Fatalf("expected stop invocation")
		}
	})

	t.Run("route message", func(t *testing.T) {
		expected := core.RouteResult{Handled: true, Response: core.NormalizedResponse{Text: "pong"}}
		svc := stubMutatingService{
			routeFn: func(_ context.Context, msg core.NormalizedMessage) (core.RouteResult, error) {
				if msg.Channel.Connector != "demo" {
					t.Fatalf("unexpected routing target: %#v", msg.Channel)
				}
				return expected, nil
			},
		}
		cmd := NewRouteMessageCommand(svc)
		collector := gocmd.NewResult[core.RouteResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := cmd.Execute(ctx, RouteMessageMessage{Message: core.NormalizedMessage{
			Channel:  core.ChannelRef{Connector: "demo", ChannelID: "c1"},
			SenderID: "u1",
			Text:     "ping",
		}})
		if err != nil {
			t.Fatalf("execute route: %v", err)
		}
		stored, ok := collector.Load()
		if !ok || !stored.Handled {
			t.Fatalf("expected handled route result, got %#v", stored)
		}
	})

	t.Run("installation lifecycle", func(t *testing.T) {
		calledUninstall := false
		calledSuspend := false
		calledResume := false
		svc := stubMutatingService{
			uninstallFn: func(_ context.Context, connector, channelID string) error {
				calledUninstall = true
				if connector != "demo" || channelID != "c1" {
					t.Fatalf("unexpected uninstall payload: %q %q", connector, channelID)
				}
				return nil
			},
			suspendFn: func(_ context.Context, connector, channelID string) error {
				calledSuspend = true
				return nil
			},
			resumeFn: func(_ context.Context, connector, channelID string) error {
				calledResume = true
				return nil
			},
		}
		if err := NewUninstallCommand(svc).Execute(context.Background(), UninstallMessage{Connector: "demo", ChannelID: "c1"}); err != nil {
			t.Fatalf("execute uninstall: %v", err)
		}
		if err := NewSuspendInstallationCommand(svc).Execute(context.Background(), SuspendInstallationMessage{Connector: "demo", ChannelID: "c1"}); err != nil {
			t.Fatalf("execute suspend: %v", err)
		}
		if err := NewResumeInstallationCommand(svc).Execute(context.Background(), ResumeInstallationMessage{Connector: "demo", ChannelID: "c1"}); err != nil {
			t.Fatalf("execute resume: %v", err)
		}
		if !calledUninstall || !calledSuspend || !calledResume {
			t.Fatalf("expected all lifecycle invocations")
		}
	})

	t.Run("authorization", func(t *testing.T) {
		svc := stubMutatingService{
			beginAuthFn: func(_ context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error) {
				return core.BeginAuthorizationResponse{State: "st_1"}, nil
			},
			completeAuthFn: func(_ context.Context, req core.CompleteAuthorizationRequest) (core.Installation, error) {
				if req.State != "st_1" {
					t.Fatalf("unexpected auth state %q", req.State)
				}
				return core.Installation{ID: "ins_1"}, nil
			},
		}

		beginCollector := gocmd.NewResult[core.BeginAuthorizationResponse]()
		ctx := gocmd.ContextWithResult(context.Background(), beginCollector)
		if err := NewBeginAuthorizationCommand(svc).Execute(ctx, BeginAuthorizationMessage{
			Request: core.BeginAuthorizationRequest{Connector: "demo", ChannelID: "c1"},
		}); err != nil {
			t.Fatalf("execute begin auth: %v", err)
		}
		begin, ok := beginCollector.Load()
		if !ok || begin.State != "st_1" {
			t.Fatalf("expected auth state result, got %#v", begin)
		}

		completeCollector := gocmd.NewResult[core.Installation]()
		ctx = gocmd.ContextWithResult(context.Background(), completeCollector)
		if err := NewCompleteAuthorizationCommand(svc).Execute(ctx, CompleteAuthorizationMessage{
			Request: core.CompleteAuthorizationRequest{State: "st_1"},
		}); err != nil {
			t.Fatalf("execute complete auth: %v", err)
		}
		installation, ok := completeCollector.Load()
		if !ok || installation.ID != "ins_1" {
			t.Fatalf("expected installation result, got %#v", installation)
		}
	})
}

func TestCommands_RequireService(t *testing.T) {
	if err := (&LoadConnectorCommand{}).Execute(context.Background(), LoadConnectorMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
	if err := (&InstallCommand{}).Execute(context.Background(), InstallMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
}

func TestMessageValidation(t *testing.T) {
	cases := []struct {
		name    string
		message interface{ Validate() error }
		wantErr bool
	}{
		{"load missing name", LoadConnectorMessage{}, true},
		{"load valid", LoadConnectorMessage{Request: core.LoadRequest{Name: "demo"}}, false},
		{"stop missing name", StopConnectorMessage{}, true},
		{"route missing channel", RouteMessageMessage{}, true},
		{"publish missing type", PublishEventMessage{}, true},
		{"publish valid", PublishEventMessage{Event: core.CoreEvent{Type: "demo.ping"}}, false},
		{"install missing channel", InstallMessage{Request: core.InstallRequest{Connector: "demo"}}, true},
		{"uninstall valid", UninstallMessage{Connector: "demo", ChannelID: "c1"}, false},
		{"complete auth missing state", CompleteAuthorizationMessage{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.message.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation failure")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
