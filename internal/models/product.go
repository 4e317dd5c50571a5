package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProductStatus enumerates catalog product lifecycle states.
type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "draft"
	ProductStatusActive   ProductStatus = "active"
	ProductStatusArchived ProductStatus = "archived"
)

// Product is the catalog read model. The sync engine never writes back to
// the catalog; products and variants are loaded read-only.
type Product struct {
	ID        int           `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Status    ProductStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"-"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`

	// Variants are loaded separately and attached in catalog order.
	Variants []Variant `db:"-" json:"variants"`
}

// AttributeMap maps attribute name to value (e.g. color, size).
// Stored as JSONB in the catalog tables.
type AttributeMap map[string]string

// Scan implements sql.Scanner for JSONB columns.
func (m *AttributeMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("attributes: cannot scan %T", src)
	}
	return json.Unmarshal(b, m)
}

// Value implements driver.Valuer for JSONB columns.
func (m AttributeMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Variant is a single sellable SKU of a product.
type Variant struct {
	ID         int          `db:"id" json:"id"`
	ProductID  int          `db:"product_id" json:"productId"`
	SKU        string       `db:"sku" json:"sku"`
	Price      float64      `db:"price" json:"price"`
	Barcode    *string      `db:"barcode" json:"barcode,omitempty"`
	Position   int          `db:"position" json:"position"`
	Attributes AttributeMap `db:"attributes" json:"attributes"`
}

// BarcodeValue returns the barcode, or "" when the catalog has none.
func (v *Variant) BarcodeValue() string {
	if v.Barcode == nil {
		return ""
	}
	return *v.Barcode
}

// Attribute returns the value of a named attribute, or "" when absent.
func (v *Variant) Attribute(name string) string {
	if v.Attributes == nil {
		return ""
	}
	return v.Attributes[name]
}
