package services

import (
	"context"
	"strings"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/models"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
)

// CatalogLookup is the slice of the catalog client the classifier needs.
type CatalogLookup interface {
	IsCornerProduct(ctx context.Context, numericID string) (bool, error)
	StoreType(ctx context.Context, numericID string) (models.Store, error)
}

// StoreClassifier decides which store bucket owns a line item. It never
// fails: when neither catalog gives an authoritative answer the item is
// classified as adult. Catalog answers are cached so checkout does not pay
// two lookups per untagged item on every request.
type StoreClassifier struct {
	catalog CatalogLookup
	cache   *gocache.Cache
}

func NewStoreClassifier(catalog CatalogLookup, cacheTTL time.Duration) *StoreClassifier {
	return &StoreClassifier{
		catalog: catalog,
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// Classify returns the owning store for a line item. An explicit store tag
// on the item wins; otherwise the catalogs are consulted by numeric id
// prefix (cart ids look like "4-Blanc-XL").
func (c *StoreClassifier) Classify(ctx context.Context, item models.LineItem) models.Store {
	if item.Store.Valid() {
		return item.Store
	}
	return c.ClassifyProductID(ctx, item.ProductID)
}

// ClassifyProductID resolves a bare product identifier to a store bucket.
func (c *StoreClassifier) ClassifyProductID(ctx context.Context, productID string) models.Store {
	ctx, span := tracer.Start(ctx, "classifier.classify")
	defer span.End()

	numericID := strings.SplitN(productID, "-", 2)[0]
	span.SetAttributes(attribute.String("product.id", numericID))

	if cached, ok := c.cache.Get(numericID); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached.(models.Store)
	}

	store := c.lookup(ctx, numericID)
	c.cache.Set(numericID, store, gocache.DefaultExpiration)

	span.SetAttributes(attribute.String("store", string(store)))
	return store
}

func (c *StoreClassifier) lookup(ctx context.Context, numericID string) models.Store {
	isCorner, err := c.catalog.IsCornerProduct(ctx, numericID)
	if err != nil {
		logging.Warn(ctx).Err(err).Str("product_id", numericID).Msg("corner catalog lookup failed")
	}
	if isCorner {
		return models.StoreCorner
	}

	store, err := c.catalog.StoreType(ctx, numericID)
	if err == nil {
		return store
	}

	logging.Warn(ctx).
		Str("product_id", numericID).
		Msg("product not found in any catalog, defaulting to adult")
	return models.StoreAdult
}
