package connectors

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	gocommand "github.com/goliatone/go-connectors/adapters/gocommand"
	connectorscommand "github.com/goliatone/go-connectors/command"
	"github.com/goliatone/go-connectors/core"
	connectorsquery "github.com/goliatone/go-connectors/query"
)

// DispatchRegistration owns the dispatcher subscriptions made for one
// facade. Unsubscribe tears the wiring down; the adapter stays usable.
type DispatchRegistration struct {
	adapter       *gocommand.RegistryAdapter
	subscriptions []commanddispatcher.Subscription
}

func (r *DispatchRegistration) Adapter() *gocommand.RegistryAdapter {
	if r == nil {
		return nil
	}
	return r.adapter
}

func (r *DispatchRegistration) Unsubscribe() {
	if r == nil {
		return
	}
	for _, sub := range r.subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	r.subscriptions = nil
}

// RegisterDispatch subscribes every facade command and query on the
// go-command dispatcher and records them in the registry adapter, so the
// runtime can be driven through dispatched messages. Partial failure unwinds
// whatever was already subscribed.
func RegisterDispatch(facade *Facade, adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (*DispatchRegistration, error) {
	if facade == nil {
		return nil, fmt.Errorf("connectors: facade is required")
	}
	if adapter == nil {
		adapter = gocommand.NewRegistryAdapter(nil)
	}

	registration := &DispatchRegistration{adapter: adapter}
	track := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			registration.Unsubscribe()
			return err
		}
		registration.subscriptions = append(registration.subscriptions, sub)
		return nil
	}

	commands := facade.Commands()
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.LoadConnectorMessage](adapter, commands.LoadConnector, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.StopConnectorMessage](adapter, commands.StopConnector, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.RouteMessageMessage](adapter, commands.RouteMessage, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.PublishEventMessage](adapter, commands.PublishEvent, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.InstallMessage](adapter, commands.Install, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.UninstallMessage](adapter, commands.Uninstall, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.SuspendInstallationMessage](adapter, commands.SuspendInstallation, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.ResumeInstallationMessage](adapter, commands.ResumeInstallation, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.BeginAuthorizationMessage](adapter, commands.BeginAuthorization, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribe[connectorscommand.CompleteAuthorizationMessage](adapter, commands.CompleteAuthorization, runnerOpts...)); err != nil {
		return nil, err
	}

	queries := facade.Queries()
	if err := track(gocommand.RegisterAndSubscribeQuery[connectorsquery.GetInstallationMessage, core.Installation](adapter, queries.GetInstallation, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribeQuery[connectorsquery.ListInstallationsMessage, []core.Installation](adapter, queries.ListInstallations, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribeQuery[connectorsquery.ConnectorStatusMessage, core.ConnectorStatus](adapter, queries.ConnectorStatus, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribeQuery[connectorsquery.ListConnectorsMessage, []core.ConnectorStatus](adapter, queries.ListConnectors, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(gocommand.RegisterAndSubscribeQuery[connectorsquery.HealthReportMessage, map[string]core.ConnectorStatus](adapter, queries.HealthReport, runnerOpts...)); err != nil {
		return nil, err
	}

	return registration, nil
}
