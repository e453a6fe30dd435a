package sqlstore

import "github.com/goliatone/go-helpdesk/core"

var (
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.StateStore             = (*StateStore)(nil)
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.ConnectionRegistry     = (*ConnectionStore)(nil)
	_ core.ConnectionRegistry     = (*CachedConnectionRegistry)(nil)
	_ core.TicketStore            = (*TicketStore)(nil)
)
