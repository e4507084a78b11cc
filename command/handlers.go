package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connectors/core"
)

// MutatingService is the slice of the runtime surface commands write
// through.
type MutatingService interface {
	LoadConnector(ctx context.Context, req core.LoadRequest) (core.ConnectorStatus, error)
	StopConnector(ctx context.Context, name string) error
	RouteMessage(ctx context.Context, msg core.NormalizedMessage) (core.RouteResult, error)
	PublishEvent(ctx context.Context, event core.CoreEvent) (core.BroadcastReport, error)
	Install(ctx context.Context, req core.InstallRequest) (core.Installation, error)
	Uninstall(ctx context.Context, connector, channelID string) error
	SuspendInstallation(ctx context.Context, connector, channelID string) error
	ResumeInstallation(ctx context.Context, connector, channelID string) error
	BeginAuthorization(ctx context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.Installation, error)
}

type LoadConnectorCommand struct {
	service MutatingService
}

func NewLoadConnectorCommand(service MutatingService) *LoadConnectorCommand {
	return &LoadConnectorCommand{service: service}
}

func (c *LoadConnectorCommand) Execute(ctx context.Context, msg LoadConnectorMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connector service is required")
	}
	out, err := c.service.LoadConnector(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type StopConnectorCommand struct {
	service MutatingService
}

func NewStopConnectorCommand(service MutatingService) *StopConnectorCommand {
	return &StopConnectorCommand{service: service}
}

func (c *StopConnectorCommand) Execute(ctx context.Context, msg StopConnectorMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connector service is required")
	}
	return c.service.StopConnector(ctx, msg.Name)
}

type RouteMessageCommand struct {
	service MutatingService
}

func NewRouteMessageCommand(service MutatingService) *RouteMessageCommand {
	return &RouteMessageCommand{service: service}
}

func (c *RouteMessageCommand) Execute(ctx context.Context, msg RouteMessageMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: routing service is required")
	}
	out, err := c.service.RouteMessage(ctx, msg.Message)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PublishEventCommand struct {
	service MutatingService
}

func NewPublishEventCommand(service MutatingService) *PublishEventCommand {
	return &PublishEventCommand{service: service}
}

func (c *PublishEventCommand) Execute(ctx context.Context, msg PublishEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event service is required")
	}
	out, err := c.service.PublishEvent(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type InstallCommand struct {
	service MutatingService
}

func NewInstallCommand(service MutatingService) *InstallCommand {
	return &InstallCommand{service: service}
}

func (c *InstallCommand) Execute(ctx context.Context, msg InstallMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	out, err := c.service.Install(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UninstallCommand struct {
	service MutatingService
}

func NewUninstallCommand(service MutatingService) *UninstallCommand {
	return &UninstallCommand{service: service}
}

func (c *UninstallCommand) Execute(ctx context.Context, msg UninstallMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	return c.service.Uninstall(ctx, msg.Connector, msg.ChannelID)
}

type SuspendInstallationCommand struct {
	service MutatingService
}

func NewSuspendInstallationCommand(service MutatingService) *SuspendInstallationCommand {
	return &SuspendInstallationCommand{service: service}
}

func (c *SuspendInstallationCommand) Execute(ctx context.Context, msg SuspendInstallationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	return c.service.SuspendInstallation(ctx, msg.Connector, msg.ChannelID)
}

type ResumeInstallationCommand struct {
	service MutatingService
}

func NewResumeInstallationCommand(service MutatingService) *ResumeInstallationCommand {
	return &ResumeInstallationCommand{service: service}
}

func (c *ResumeInstallationCommand) Execute(ctx context.Context, msg ResumeInstallationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	return c.service.ResumeInstallation(ctx, msg.Connector, msg.ChannelID)
}

type BeginAuthorizationCommand struct {
	service MutatingService
}

func NewBeginAuthorizationCommand(service MutatingService) *BeginAuthorizationCommand {
	return &BeginAuthorizationCommand{service: service}
}

func (c *BeginAuthorizationCommand) Execute(ctx context.Context, msg BeginAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.BeginAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteAuthorizationCommand struct {
	service MutatingService
}

func NewCompleteAuthorizationCommand(service MutatingService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.CompleteAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
