// Package catalog queries the two legacy product catalogs (primary Reboul
// API and The Corner API) that hold the authoritative product → store
// mapping.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/models"
)

// ErrNotFound is returned when a catalog does not know the product. A
// transport failure is reported the same way so the classifier can fall
// through to its default.
var ErrNotFound = errors.New("product not found in catalog")

const lookupTimeout = 3 * time.Second

// Client looks up product ownership against the legacy catalogs.
type Client struct {
	primaryURL string
	cornerURL  string
	httpClient *http.Client
}

func NewClient(primaryURL, cornerURL string) *Client {
	return &Client{
		primaryURL: primaryURL,
		cornerURL:  cornerURL,
		httpClient: &http.Client{Timeout: lookupTimeout},
	}
}

type productResponse struct {
	ID        json.Number  `json:"id"`
	StoreType models.Store `json:"store_type"`
}

// IsCornerProduct reports whether the corner catalog knows the product. Any
// non-200 response or transport error counts as "not a corner product".
func (c *Client) IsCornerProduct(ctx context.Context, numericID string) (bool, error) {
	if c.cornerURL == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/corner-products/%s", c.cornerURL, numericID), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// StoreType returns the primary catalog's declared store for a product.
func (c *Client) StoreType(ctx context.Context, numericID string) (models.Store, error) {
	if c.primaryURL == "" {
		return "", ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/products/%s", c.primaryURL, numericID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ErrNotFound
	}

	var product productResponse
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return "", err
	}
	if !product.StoreType.Valid() {
		return "", ErrNotFound
	}
	return product.StoreType, nil
}
