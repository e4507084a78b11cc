package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

const (
	TypeLoadConnector         = "connectors.command.load"
	TypeStopConnector         = "connectors.command.stop"
	TypeRouteMessage          = "connectors.command.message.route"
	TypePublishEvent          = "connectors.command.event.publish"
	TypeInstall               = "connectors.command.installation.install"
	TypeUninstall             = "connectors.command.installation.uninstall"
	TypeSuspendInstallation   = "connectors.command.installation.suspend"
	TypeResumeInstallation    = "connectors.command.installation.resume"
	TypeBeginAuthorization    = "connectors.command.authorization.begin"
	TypeCompleteAuthorization = "connectors.command.authorization.complete"
)

type LoadConnectorMessage struct {
	Request core.LoadRequest
}

func (LoadConnectorMessage) Type() string { return TypeLoadConnector }

func (m LoadConnectorMessage) Validate() error {
	if strings.TrimSpace(m.Request.Name) == "" {
		return fmt.Errorf("command: connector name is required")
	}
	return nil
}

type StopConnectorMessage struct {
	Name string
}

func (StopConnectorMessage) Type() string { return TypeStopConnector }

func (m StopConnectorMessage) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("command: connector name is required")
	}
	return nil
}

type RouteMessageMessage struct {
	Message core.NormalizedMessage
}

func (RouteMessageMessage) Type() string { return TypeRouteMessage }

func (m RouteMessageMessage) Validate() error {
	if err := m.Message.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}

type PublishEventMessage struct {
	Event core.CoreEvent
}

func (PublishEventMessage) Type() string { return TypePublishEvent }

func (m PublishEventMessage) Validate() error {
	if strings.TrimSpace(m.Event.Type) == "" {
		return fmt.Errorf("command: event type is required")
	}
	return nil
}

type InstallMessage struct {
	Request core.InstallRequest
}

func (InstallMessage) Type() string { return TypeInstall }

func (m InstallMessage) Validate() error {
	if strings.TrimSpace(m.Request.Connector) == "" {
		return fmt.Errorf("command: connector is required")
	}
	if strings.TrimSpace(m.Request.ChannelID) == "" {
		return fmt.Errorf("command: channel id is required")
	}
	return nil
}

type UninstallMessage struct {
	Connector string
	ChannelID string
}

func (UninstallMessage) Type() string { return TypeUninstall }

func (m UninstallMessage) Validate() error {
	return validateChannelAddress(m.Connector, m.ChannelID)
}

type SuspendInstallationMessage struct {
	Connector string
	ChannelID string
}

func (SuspendInstallationMessage) Type() string { return TypeSuspendInstallation }

func (m SuspendInstallationMessage) Validate() error {
	return validateChannelAddress(m.Connector, m.ChannelID)
}

type ResumeInstallationMessage struct {
	Connector string
	ChannelID string
}

func (ResumeInstallationMessage) Type() string { return TypeResumeInstallation }

func (m ResumeInstallationMessage) Validate() error {
	return validateChannelAddress(m.Connector, m.ChannelID)
}

type BeginAuthorizationMessage struct {
	Request core.BeginAuthorizationRequest
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	return validateChannelAddress(m.Request.Connector, m.Request.ChannelID)
}

type CompleteAuthorizationMessage struct {
	Request core.CompleteAuthorizationRequest
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.Request.State) == "" {
		return fmt.Errorf("command: authorization state is required")
	}
	return nil
}

func validateChannelAddress(connector, channelID string) error {
	if strings.TrimSpace(connector) == "" {
		return fmt.Errorf("command: connector is required")
	}
	if strings.TrimSpace(channelID) == "" {
		return fmt.Errorf("command: channel id is required")
	}
	return nil
}
