package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderPrefix(t *testing.T) {
	assert.Equal(t, "ADT", StoreAdult.OrderPrefix())
	assert.Equal(t, "SNK", StoreSneakers.OrderPrefix())
	assert.Equal(t, "KDS", StoreKids.OrderPrefix())
	assert.Equal(t, "TCR", StoreCorner.OrderPrefix())
	assert.Equal(t, "ADT", Store("unknown").OrderPrefix())
}

func TestStoreValid(t *testing.T) {
	for _, s := range BucketOrder {
		assert.True(t, s.Valid())
	}
	assert.False(t, Store("").Valid())
	assert.False(t, Store("outlet").Valid())
}

func TestFindVariant(t *testing.T) {
	p := &Product{
		Variants: []Variant{
			{Size: "M", Color: "Blanc", Stock: 3},
			{Size: "L", Color: "Noir", Stock: 1},
		},
	}

	assert.Equal(t, 0, p.FindVariant("M", "Blanc"))
	assert.Equal(t, 1, p.FindVariant("L", "Noir"))
	// Color matches case-insensitively, size does not.
	assert.Equal(t, 0, p.FindVariant("M", "blanc"))
	assert.Equal(t, -1, p.FindVariant("m", "Blanc"))
	assert.Equal(t, -1, p.FindVariant("XL", "Blanc"))
}
