package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zoranhorsy/reboul-checkout/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCornerProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/corner-products/4" {
			w.Write([]byte(`{"id":4,"name":"Goggle Jacket"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("", srv.URL)

	ok, err := c.IsCornerProduct(context.Background(), "4")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsCornerProduct(context.Background(), "8")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsCornerProductNoURLConfigured(t *testing.T) {
	c := NewClient("", "")
	ok, err := c.IsCornerProduct(context.Background(), "4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/8":
			w.Write([]byte(`{"id":8,"store_type":"sneakers"}`))
		case "/products/9":
			w.Write([]byte(`{"id":9,"store_type":"warehouse"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")

	store, err := c.StoreType(context.Background(), "8")
	require.NoError(t, err)
	assert.Equal(t, models.StoreSneakers, store)

	_, err = c.StoreType(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)

	// A store the partitioner does not know counts as not found.
	_, err = c.StoreType(context.Background(), "9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreTypeNoURLConfigured(t *testing.T) {
	c := NewClient("", "")
	_, err := c.StoreType(context.Background(), "8")
	assert.ErrorIs(t, err, ErrNotFound)
}
