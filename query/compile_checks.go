package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connectors/core"
)

var (
	_ gocmd.Querier[GetInstallationMessage, core.Installation]            = (*GetInstallationQuery)(nil)
	_ gocmd.Querier[ListInstallationsMessage, []core.Installation]        = (*ListInstallationsQuery)(nil)
	_ gocmd.Querier[ConnectorStatusMessage, core.ConnectorStatus]         = (*ConnectorStatusQuery)(nil)
	_ gocmd.Querier[ListConnectorsMessage, []core.ConnectorStatus]        = (*ListConnectorsQuery)(nil)
	_ gocmd.Querier[HealthReportMessage, map[string]core.ConnectorStatus] = (*HealthReportQuery)(nil)
)
