package sqlstore

import "github.com/goliatone/go-connectors/core"

var (
	_ core.InstallationStore      = (*InstallationStore)(nil)
	_ core.DeliveryLedgerStore    = (*DeliveryStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
