package sqlstore

import "github.com/goliatone/go-review/core"

var (
	_ core.StreamStore            = (*StreamStore)(nil)
	_ core.StorageSizer           = (*StreamStore)(nil)
	_ core.AuditStore             = (*AuditStore)(nil)
	_ core.AuditRetentionPruner   = (*AuditStore)(nil)
	_ core.StreamStore            = (*CachedStreamStore)(nil)
	_ core.StorageSizer           = (*CachedStreamStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
