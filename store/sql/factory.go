package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-billing-sync/core"
)

type RepositoryFactory struct {
	db           *bun.DB
	catalogCache repositorycache.CacheService

	ledgerStore               *LedgerStore
	customerStore             *CustomerStore
	subscriptionStore         *SubscriptionStore
	productStore              core.ProductStore
	priceStore                core.PriceStore
	invoiceStore              *InvoiceStore
	usageStore                *UsageStore
	skipStore                 *SkipStore
	notificationDispatchStore *NotificationDispatchStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

// WithCatalogCache fronts the product and price stores with a read-through
// cache. Catalog rows are read on every subscription and invoice sync but
// change rarely. Must be set before BuildStores.
func (f *RepositoryFactory) WithCatalogCache(cacheService repositorycache.CacheService) *RepositoryFactory {
	if f != nil {
		f.catalogCache = cacheService
	}
	return f
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.ledgerStore != nil && f.customerStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) LedgerStore() core.LedgerStore {
	if f == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) CustomerStore() core.CustomerStore {
	if f == nil {
		return nil
	}
	return f.customerStore
}

func (f *RepositoryFactory) SubscriptionStore() core.SubscriptionStore {
	if f == nil {
		return nil
	}
	return f.subscriptionStore
}

func (f *RepositoryFactory) ProductStore() core.ProductStore {
	if f == nil {
		return nil
	}
	return f.productStore
}

func (f *RepositoryFactory) PriceStore() core.PriceStore {
	if f == nil {
		return nil
	}
	return f.priceStore
}

func (f *RepositoryFactory) InvoiceStore() core.InvoiceStore {
	if f == nil {
		return nil
	}
	return f.invoiceStore
}

func (f *RepositoryFactory) UsageStore() core.UsageStore {
	if f == nil {
		return nil
	}
	return f.usageStore
}

func (f *RepositoryFactory) SkipStore() core.SkipStore {
	if f == nil {
		return nil
	}
	return f.skipStore
}

func (f *RepositoryFactory) NotificationDispatchLedger() core.NotificationDispatchLedger {
	if f == nil {
		return nil
	}
	return f.notificationDispatchStore
}

func (f *RepositoryFactory) initStores() error {
	ledgerStore, err := NewLedgerStore(f.db)
	if err != nil {
		return err
	}
	f.ledgerStore = ledgerStore
	customerStore, err := NewCustomerStore(f.db)
	if err != nil {
		return err
	}
	f.customerStore = customerStore
	subscriptionStore, err := NewSubscriptionStore(f.db)
	if err != nil {
		return err
	}
	f.subscriptionStore = subscriptionStore
	productStore, err := NewProductStore(f.db)
	if err != nil {
		return err
	}
	f.productStore = productStore
	priceStore, err := NewPriceStore(f.db)
	if err != nil {
		return err
	}
	f.priceStore = priceStore
	if f.catalogCache != nil {
		cachedProducts, err := NewCachedProductStore(productStore, f.catalogCache)
		if err != nil {
			return err
		}
		f.productStore = cachedProducts
		cachedPrices, err := NewCachedPriceStore(priceStore, f.catalogCache)
		if err != nil {
			return err
		}
		f.priceStore = cachedPrices
	}
	invoiceStore, err := NewInvoiceStore(f.db)
	if err != nil {
		return err
	}
	f.invoiceStore = invoiceStore
	usageStore, err := NewUsageStore(f.db)
	if err != nil {
		return err
	}
	f.usageStore = usageStore
	skipStore, err := NewSkipStore(f.db)
	if err != nil {
		return err
	}
	f.skipStore = skipStore
	notificationDispatchStore, err := NewNotificationDispatchStore(f.db)
	if err != nil {
		return err
	}
	f.notificationDispatchStore = notificationDispatchStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
