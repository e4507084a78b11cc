package connectors

import (
	"fmt"

	connectorscommand "github.com/goliatone/go-connectors/command"
	"github.com/goliatone/go-connectors/core"
	connectorsquery "github.com/goliatone/go-connectors/query"
)

type CommandQueryService interface {
	connectorscommand.MutatingService
	connectorsquery.InstallationReader
	connectorsquery.HealthReader
}

type Commands struct {
	LoadConnector         *connectorscommand.LoadConnectorCommand
	StopConnector         *connectorscommand.StopConnectorCommand
	RouteMessage          *connectorscommand.RouteMessageCommand
	PublishEvent          *connectorscommand.PublishEventCommand
	Install               *connectorscommand.InstallCommand
	Uninstall             *connectorscommand.UninstallCommand
	SuspendInstallation   *connectorscommand.SuspendInstallationCommand
	ResumeInstallation    *connectorscommand.ResumeInstallationCommand
	BeginAuthorization    *connectorscommand.BeginAuthorizationCommand
	CompleteAuthorization *connectorscommand.CompleteAuthorizationCommand
}

type Queries struct {
	GetInstallation   *connectorsquery.GetInstallationQuery
	ListInstallations *connectorsquery.ListInstallationsQuery
	ConnectorStatus   *connectorsquery.ConnectorStatusQuery
	ListConnectors    *connectorsquery.ListConnectorsQuery
	HealthReport      *connectorsquery.HealthReportQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	connectorReader connectorsquery.ConnectorReader
}

func WithConnectorReader(reader connectorsquery.ConnectorReader) FacadeOption {
	return func(options *facadeOptions) {
		options.connectorReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("connectors: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.connectorReader
	if reader == nil {
		reader = resolveConnectorReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		LoadConnector:         connectorscommand.NewLoadConnectorCommand(service),
		StopConnector:         connectorscommand.NewStopConnectorCommand(service),
		RouteMessage:          connectorscommand.NewRouteMessageCommand(service),
		PublishEvent:          connectorscommand.NewPublishEventCommand(service),
		Install:               connectorscommand.NewInstallCommand(service),
		Uninstall:             connectorscommand.NewUninstallCommand(service),
		SuspendInstallation:   connectorscommand.NewSuspendInstallationCommand(service),
		ResumeInstallation:    connectorscommand.NewResumeInstallationCommand(service),
		BeginAuthorization:    connectorscommand.NewBeginAuthorizationCommand(service),
		CompleteAuthorization: connectorscommand.NewCompleteAuthorizationCommand(service),
	}
	facade.queries = Queries{
		GetInstallation:   connectorsquery.NewGetInstallationQuery(service),
		ListInstallations: connectorsquery.NewListInstallationsQuery(service),
		ConnectorStatus:   connectorsquery.NewConnectorStatusQuery(reader),
		ListConnectors:    connectorsquery.NewListConnectorsQuery(reader),
		HealthReport:      connectorsquery.NewHealthReportQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveConnectorReader pulls lifecycle state off the service's registry
// when no explicit reader is configured.
func resolveConnectorReader(service CommandQueryService) connectorsquery.ConnectorReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(connectorsquery.ConnectorReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Registry() core.Registry
	})
	if !ok {
		return nil
	}
	registry := provider.Registry()
	if registry == nil {
		return nil
	}
	return registry
}
