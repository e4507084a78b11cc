package query

import (
	"context"
	"fmt"

	"github.com/goliatone/go-connectors/core"
)

// InstallationReader is the read slice of the installation surface.
type InstallationReader interface {
	GetInstallation(ctx context.Context, connector, channelID string) (core.Installation, error)
	ListInstallations(ctx context.Context, connector string) ([]core.Installation, error)
}

// ConnectorReader exposes connector lifecycle state without mutation.
type ConnectorReader interface {
	Status(name string) (core.ConnectorStatus, bool)
	List() []core.ConnectorStatus
}

type HealthReader interface {
	HealthCheckAll(ctx context.Context) map[string]core.ConnectorStatus
}

type GetInstallationQuery struct {
	reader InstallationReader
}

func NewGetInstallationQuery(reader InstallationReader) *GetInstallationQuery {
	return &GetInstallationQuery{reader: reader}
}

func (q *GetInstallationQuery) Query(ctx context.Context, msg GetInstallationMessage) (core.Installation, error) {
	if q == nil || q.reader == nil {
		return core.Installation{}, queryDependencyError("query: installation reader is required")
	}
	return q.reader.GetInstallation(ctx, msg.Connector, msg.ChannelID)
}

type ListInstallationsQuery struct {
	reader InstallationReader
}

func NewListInstallationsQuery(reader InstallationReader) *ListInstallationsQuery {
	return &ListInstallationsQuery{reader: reader}
}

func (q *ListInstallationsQuery) Query(ctx context.Context, msg ListInstallationsMessage) ([]core.Installation, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: installation reader is required")
	}
	return q.reader.ListInstallations(ctx, msg.Connector)
}

type ConnectorStatusQuery struct {
	reader ConnectorReader
}

func NewConnectorStatusQuery(reader ConnectorReader) *ConnectorStatusQuery {
	return &ConnectorStatusQuery{reader: reader}
}

func (q *ConnectorStatusQuery) Query(_ context.Context, msg ConnectorStatusMessage) (core.ConnectorStatus, error) {
	if q == nil || q.reader == nil {
		return core.ConnectorStatus{}, queryDependencyError("query: connector reader is required")
	}
	status, ok := q.reader.Status(msg.Name)
	if !ok {
		return core.ConnectorStatus{}, queryNotFoundError(fmt.Sprintf("query: connector %q not found", msg.Name))
	}
	return status, nil
}

type ListConnectorsQuery struct {
	reader ConnectorReader
}

func NewListConnectorsQuery(reader ConnectorReader) *ListConnectorsQuery {
	return &ListConnectorsQuery{reader: reader}
}

func (q *ListConnectorsQuery) Query(_ context.Context, _ ListConnectorsMessage) ([]core.ConnectorStatus, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: connector reader is required")
	}
	return q.reader.List(), nil
}

type HealthReportQuery struct {
	reader HealthReader
}

func NewHealthReportQuery(reader HealthReader) *HealthReportQuery {
	return &HealthReportQuery{reader: reader}
}

func (q *HealthReportQuery) Query(ctx context.Context, _ HealthReportMessage) (map[string]core.ConnectorStatus, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: health reader is required")
	}
	return q.reader.HealthCheckAll(ctx), nil
}
