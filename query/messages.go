package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetInstallation   = "connectors.query.installation.get"
	TypeListInstallations = "connectors.query.installation.list"
	TypeConnectorStatus   = "connectors.query.connector.status"
	TypeListConnectors    = "connectors.query.connector.list"
	TypeHealthReport      = "connectors.query.health.report"
)

type GetInstallationMessage struct {
	Connector string
	ChannelID string
}

func (GetInstallationMessage) Type() string { return TypeGetInstallation }

func (m GetInstallationMessage) Validate() error {
	if strings.TrimSpace(m.Connector) == "" {
		return fmt.Errorf("query: connector is required")
	}
	if strings.TrimSpace(m.ChannelID) == "" {
		return fmt.Errorf("query: channel id is required")
	}
	return nil
}

type ListInstallationsMessage struct {
	Connector string
}

func (ListInstallationsMessage) Type() string { return TypeListInstallations }

func (m ListInstallationsMessage) Validate() error {
	if strings.TrimSpace(m.Connector) == "" {
		return fmt.Errorf("query: connector is required")
	}
	return nil
}

type ConnectorStatusMessage struct {
	Name string
}

func (ConnectorStatusMessage) Type() string { return TypeConnectorStatus }

func (m ConnectorStatusMessage) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("query: connector name is required")
	}
	return nil
}

type ListConnectorsMessage struct{}

func (ListConnectorsMessage) Type() string { return TypeListConnectors }

type HealthReportMessage struct{}

func (HealthReportMessage) Type() string { return TypeHealthReport }
