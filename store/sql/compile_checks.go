package sqlstore

import "github.com/goliatone/go-billing-sync/core"

var (
	_ core.LedgerStore                = (*LedgerStore)(nil)
	_ core.CustomerStore              = (*CustomerStore)(nil)
	_ core.SubscriptionStore          = (*SubscriptionStore)(nil)
	_ core.ProductStore               = (*ProductStore)(nil)
	_ core.PriceStore                 = (*PriceStore)(nil)
	_ core.InvoiceStore               = (*InvoiceStore)(nil)
	_ core.UsageStore                 = (*UsageStore)(nil)
	_ core.SkipStore                  = (*SkipStore)(nil)
	_ core.NotificationDispatchLedger = (*NotificationDispatchStore)(nil)
	_ core.ProductStore               = (*CachedProductStore)(nil)
	_ core.PriceStore                 = (*CachedPriceStore)(nil)
	_ core.StoreProvider              = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory     = (*RepositoryFactory)(nil)
)
