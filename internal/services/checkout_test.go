package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCheckoutService(t *testing.T, provider *fakeProvider, catalog *fakeCatalog) *CheckoutService {
	t.Helper()
	db := newTestDB(t)
	classifier := NewStoreClassifier(catalog, time.Minute)
	return NewCheckoutService(db, provider, classifier, "https://reboul.example.com", "eur", "acct_corner")
}

func mixedCart() []models.LineItem {
	return []models.LineItem{
		{ProductID: "1-Blanc-M", Name: "Tee", Price: 49.99, Quantity: 2, Variant: models.VariantSelector{Size: "M", Color: "Blanc"}, Store: models.StoreAdult},
		{ProductID: "2-Noir-42", Name: "Runner", Price: 120, Quantity: 1, Variant: models.VariantSelector{Size: "42", Color: "Noir"}, Store: models.StoreSneakers},
		{ProductID: "3-Vert-L", Name: "Goggle Jacket", Price: 450, Quantity: 1, Variant: models.VariantSelector{Size: "L", Color: "Vert"}, Store: models.StoreCorner},
	}
}

func TestPartitionEveryItemInOneBucket(t *testing.T) {
	svc := newCheckoutService(t, newFakeProvider(), &fakeCatalog{})

	cart, err := svc.Partition(context.Background(), mixedCart())
	require.NoError(t, err)

	assert.Equal(t, 3, cart.Len())
	assert.Len(t, cart[models.StoreAdult], 1)
	assert.Len(t, cart[models.StoreSneakers], 1)
	assert.Len(t, cart[models.StoreKids], 0)
	assert.Len(t, cart[models.StoreCorner], 1)
}

func TestPartitionUsesCatalogForUntaggedItems(t *testing.T) {
	catalog := &fakeCatalog{
		corner: map[string]bool{"7": true},
		stores: map[string]models.Store{"8": models.StoreKids},
	}
	svc := newCheckoutService(t, newFakeProvider(), catalog)

	cart, err := svc.Partition(context.Background(), []models.LineItem{
		{ProductID: "7-Bleu-S", Name: "CP Shirt", Price: 90, Quantity: 1},
		{ProductID: "8-Rouge-6A", Name: "Kids Hoodie", Price: 45, Quantity: 1},
		{ProductID: "999", Name: "Mystery", Price: 10, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Len(t, cart[models.StoreCorner], 1)
	assert.Len(t, cart[models.StoreKids], 1)
	// Unknown products default to the adult store.
	assert.Len(t, cart[models.StoreAdult], 1)
}

func TestPartitionEmptyCart(t *testing.T) {
	svc := newCheckoutService(t, newFakeProvider(), &fakeCatalog{})

	_, err := svc.Partition(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoValidItems)
}

func TestCreateSessionsOnePerBucket(t *testing.T) {
	provider := newFakeProvider()
	svc := newCheckoutService(t, provider, &fakeCatalog{})

	result, err := svc.CreateSessions(context.Background(), CheckoutInput{
		Items:         mixedCart(),
		CartID:        "cart-1",
		CustomerEmail: "client@example.com",
	})
	require.NoError(t, err)

	require.Len(t, result.Sessions, 3)
	// Fixed bucket order: adult, sneakers, kids, the_corner.
	assert.Equal(t, models.StoreAdult, result.Sessions[0].Store)
	assert.Equal(t, models.StoreSneakers, result.Sessions[1].Store)
	assert.Equal(t, models.StoreCorner, result.Sessions[2].Store)
	assert.Equal(t, result.Sessions[0].SessionID, result.Primary().SessionID)

	var orders []models.Order
	require.NoError(t, svc.db.Find(&orders).Error)
	assert.Len(t, orders, 3)
	for _, o := range orders {
		assert.Equal(t, models.OrderPending, o.Status)
		assert.NotEmpty(t, o.ProviderSessionID)
	}
}

func TestCreateSessionsConserveCartTotal(t *testing.T) {
	provider := newFakeProvider()
	svc := newCheckoutService(t, provider, &fakeCatalog{})

	cart := mixedCart()
	var want int64
	for _, item := range cart {
		want += item.TotalCents()
	}

	result, err := svc.CreateSessions(context.Background(), CheckoutInput{Items: cart})
	require.NoError(t, err)

	// The buckets' session totals sum back to the cart total in cents.
	var got int64
	for _, desc := range result.Sessions {
		got += provider.sessions[desc.SessionID].AmountTotal
	}
	assert.Equal(t, want, got)
}

func TestCreateSessionsCornerRouting(t *testing.T) {
	provider := newFakeProvider()
	svc := newCheckoutService(t, provider, &fakeCatalog{})

	result, err := svc.CreateSessions(context.Background(), CheckoutInput{
		Items: []models.LineItem{
			{ProductID: "3-Vert-L", Name: "Goggle Jacket", Price: 450, Quantity: 1, Variant: models.VariantSelector{Size: "L", Color: "Vert"}, Store: models.StoreCorner},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Sessions, 1)

	sess := provider.sessions[result.Sessions[0].SessionID]
	meta := sess.Metadata
	assert.Equal(t, "the_corner", meta["store"])
	assert.Equal(t, "45000", meta["total_amount_cents"])

	items, err := provider.SessionLineItems(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Description, "The Corner")
}

func TestCreateSessionsCompensatesOnFailure(t *testing.T) {
	provider := newFakeProvider()
	// Corner is the last bucket, so earlier sessions exist when it fails.
	provider.failStore = models.StoreCorner
	svc := newCheckoutService(t, provider, &fakeCatalog{})

	_, err := svc.CreateSessions(context.Background(), CheckoutInput{Items: mixedCart()})
	require.Error(t, err)

	// Both earlier sessions were expired.
	assert.Len(t, provider.expired, 2)

	var cancelled int64
	require.NoError(t, svc.db.Model(&models.Order{}).
		Where("status = ?", models.OrderCancelled).
		Count(&cancelled).Error)
	assert.Equal(t, int64(3), cancelled)
}

func TestGenerateOrderNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^(ADT|SNK|KDS|TCR)-\d{13}$`)
	for _, store := range models.BucketOrder {
		assert.Regexp(t, pattern, GenerateOrderNumber(store))
	}
	assert.Regexp(t, `^TCR-`, GenerateOrderNumber(models.StoreCorner))
}

func TestGetSessionStatus(t *testing.T) {
	provider := newFakeProvider()
	svc := newCheckoutService(t, provider, &fakeCatalog{})

	result, err := svc.CreateSessions(context.Background(), CheckoutInput{Items: mixedCart()})
	require.NoError(t, err)

	status, err := svc.GetSessionStatus(context.Background(), result.Primary().SessionID)
	require.NoError(t, err)
	assert.Equal(t, result.Primary().SessionID, status.Session.ID)
	assert.Equal(t, result.Primary().OrderNumber, status.Order.OrderNumber)

	_, err = svc.GetSessionStatus(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestNumericProductID(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, uint(4), numericProductID(ctx, "4-Blanc-XL"))
	assert.Equal(t, uint(17), numericProductID(ctx, "17"))
	assert.Equal(t, uint(0), numericProductID(ctx, "sku-legacy"))
}

func TestValidateImageURL(t *testing.T) {
	svc := newCheckoutService(t, newFakeProvider(), &fakeCatalog{})

	assert.Equal(t, "https://cdn.example.com/a.jpg", svc.validateImageURL("https://cdn.example.com/a.jpg"))
	assert.Equal(t, "https://reboul.example.com/img/a.jpg", svc.validateImageURL("/img/a.jpg"))
	assert.Equal(t, "", svc.validateImageURL("data:image/png;base64,xxxx"))
	assert.Equal(t, "", svc.validateImageURL(""))
}
