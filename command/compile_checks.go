package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[LoadConnectorMessage]         = (*LoadConnectorCommand)(nil)
	_ gocmd.Commander[StopConnectorMessage]         = (*StopConnectorCommand)(nil)
	_ gocmd.Commander[RouteMessageMessage]          = (*RouteMessageCommand)(nil)
	_ gocmd.Commander[PublishEventMessage]          = (*PublishEventCommand)(nil)
	_ gocmd.Commander[InstallMessage]               = (*InstallCommand)(nil)
	_ gocmd.Commander[UninstallMessage]             = (*UninstallCommand)(nil)
	_ gocmd.Commander[SuspendInstallationMessage]   = (*SuspendInstallationCommand)(nil)
	_ gocmd.Commander[ResumeInstallationMessage]    = (*ResumeInstallationCommand)(nil)
	_ gocmd.Commander[BeginAuthorizationMessage]    = (*BeginAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
)
