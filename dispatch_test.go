package connectors

import (
	"context"
	"testing"

	gocommand "github.com/goliatone/go-connectors/adapters/gocommand"
	connectorscommand "github.com/goliatone/go-connectors/command"
	"github.com/goliatone/go-connectors/core"
	connectorsquery "github.com/goliatone/go-connectors/query"
)

func TestRegisterDispatch_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	registration, err := RegisterDispatch(facade, nil)
	if err != nil {
		t.Fatalf("register dispatch: %v", err)
	}
	defer registration.Unsubscribe()
	if registration.Adapter() == nil {
		t.Fatalf("expected a registry adapter")
	}

	if err := gocommand.Dispatch(context.Background(), connectorscommand.RouteMessageMessage{
		Message: core.NormalizedMessage{
			Channel:  core.ChannelRef{Connector: "demo", ChannelID: "c1"},
			SenderID: "u1",
			Text:     "hello",
		},
	}); err != nil {
		t.Fatalf("dispatch route message: %v", err)
	}
	if svc.lastRoutedSender != "u1" {
		t.Fatalf("expected dispatched message to reach the service")
	}

	status, err := gocommand.Query[connectorsquery.ConnectorStatusMessage, core.ConnectorStatus](
		context.Background(),
		connectorsquery.ConnectorStatusMessage{Name: "demo"},
	)
	if err != nil {
		t.Fatalf("query connector status: %v", err)
	}
	if status.State != core.ConnectorStateStarted {
		t.Fatalf("unexpected status through dispatcher: %#v", status)
	}
}

func TestRegisterDispatch_RequiresFacade(t *testing.T) {
	registration, err := RegisterDispatch(nil, nil)
	if err == nil {
		t.Fatalf("expected nil facade rejection")
	}
	if registration != nil {
		t.Fatalf("expected no registration on error")
	}
}
