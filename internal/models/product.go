package models

import (
	"strings"
	"time"
)

// Store identifies which of the four retail buckets owns a product.
type Store string

const (
	StoreAdult    Store = "adult"
	StoreSneakers Store = "sneakers"
	StoreKids     Store = "kids"
	StoreCorner   Store = "the_corner"
)

// BucketOrder is the fixed order in which checkout sessions are created.
var BucketOrder = []Store{StoreAdult, StoreSneakers, StoreKids, StoreCorner}

// OrderPrefix returns the order-number prefix for a store.
func (s Store) OrderPrefix() string {
	switch s {
	case StoreAdult:
		return "ADT"
	case StoreSneakers:
		return "SNK"
	case StoreKids:
		return "KDS"
	case StoreCorner:
		return "TCR"
	}
	return "ADT"
}

// Valid reports whether s is one of the four known buckets.
func (s Store) Valid() bool {
	switch s {
	case StoreAdult, StoreSneakers, StoreKids, StoreCorner:
		return true
	}
	return false
}

// DisplayInfo carries the storefront presentation of a bucket.
type DisplayInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
}

func (s Store) DisplayInfo() DisplayInfo {
	switch s {
	case StoreCorner:
		return DisplayInfo{Name: "The Corner", DisplayName: "The Corner CP Company", Color: "#1a73e8"}
	case StoreSneakers:
		return DisplayInfo{Name: "Sneakers", DisplayName: "Reboul Sneakers", Color: "#444444"}
	case StoreKids:
		return DisplayInfo{Name: "Kids", DisplayName: "Reboul Kids", Color: "#b45309"}
	default:
		return DisplayInfo{Name: "Reboul", DisplayName: "Reboul", Color: "#000000"}
	}
}

// Variant is one size/color combination of a product, embedded in the
// product row as a JSON array.
type Variant struct {
	Size  string `json:"size"`
	Color string `json:"color"`
	Stock int    `json:"stock"`
}

type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Price     float64   `gorm:"not null" json:"price"`
	StoreType Store     `gorm:"not null;default:'adult'" json:"store_type"`
	Variants  []Variant `gorm:"type:jsonb;serializer:json" json:"variants"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FindVariant locates a variant by size (exact) and color (case-insensitive),
// matching how the storefront sends variant selectors. Returns the index or -1.
func (p *Product) FindVariant(size, color string) int {
	for i, v := range p.Variants {
		if v.Size == size && strings.EqualFold(v.Color, color) {
			return i
		}
	}
	return -1
}
