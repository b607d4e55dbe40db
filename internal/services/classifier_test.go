package services

import (
	"context"
	"testing"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHonorsExplicitTag(t *testing.T) {
	catalog := &fakeCatalog{corner: map[string]bool{"1": true}}
	c := NewStoreClassifier(catalog, time.Minute)

	// The tag wins even when the catalog disagrees.
	store := c.Classify(context.Background(), models.LineItem{
		ProductID: "1-Blanc-M",
		Store:     models.StoreKids,
	})
	assert.Equal(t, models.StoreKids, store)
	assert.Equal(t, 0, catalog.calls)
}

func TestClassifyProductIDCornerWins(t *testing.T) {
	catalog := &fakeCatalog{
		corner: map[string]bool{"4": true},
		stores: map[string]models.Store{"4": models.StoreSneakers},
	}
	c := NewStoreClassifier(catalog, time.Minute)

	assert.Equal(t, models.StoreCorner, c.ClassifyProductID(context.Background(), "4-Blanc-XL"))
}

func TestClassifyProductIDPrimaryStore(t *testing.T) {
	catalog := &fakeCatalog{stores: map[string]models.Store{"8": models.StoreSneakers}}
	c := NewStoreClassifier(catalog, time.Minute)

	assert.Equal(t, models.StoreSneakers, c.ClassifyProductID(context.Background(), "8"))
}

func TestClassifyProductIDDefaultsToAdult(t *testing.T) {
	c := NewStoreClassifier(&fakeCatalog{}, time.Minute)

	assert.Equal(t, models.StoreAdult, c.ClassifyProductID(context.Background(), "404-Gris-S"))
}

func TestClassifyProductIDCaches(t *testing.T) {
	catalog := &fakeCatalog{corner: map[string]bool{"4": true}}
	c := NewStoreClassifier(catalog, time.Minute)

	c.ClassifyProductID(context.Background(), "4-Blanc-XL")
	c.ClassifyProductID(context.Background(), "4-Noir-M")
	c.ClassifyProductID(context.Background(), "4")

	// All three share the numeric prefix, so the catalog was hit once.
	assert.Equal(t, 1, catalog.calls)
}
