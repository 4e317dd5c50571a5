package models

// UngroupedKey is the sentinel grouping key for variants that are missing
// the grouping attribute.
const UngroupedKey = "ungrouped"

// ListingGroup is the unit of synchronization: the subset of a product's
// variants that share one grouping attribute value (commonly color),
// listed together as a single remote catalog entity. Derived by the
// partitioner, never persisted.
type ListingGroup struct {
	ProductID int       `json:"productId"`
	GroupKey  string    `json:"groupKey"`
	Title     string    `json:"title"`
	Active    bool      `json:"active"`
	Variants  []Variant `json:"variants"`
}

// SKUs returns the SKU codes of the group's variants in order.
func (g *ListingGroup) SKUs() []string {
	skus := make([]string, 0, len(g.Variants))
	for _, v := range g.Variants {
		skus = append(skus, v.SKU)
	}
	return skus
}
