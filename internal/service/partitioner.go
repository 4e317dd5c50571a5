package service

import (
	"fmt"
	"sort"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
)

// Partition splits a product's variants into the listing groups a
// marketplace expects: one group per distinct value of groupingAttribute
// (commonly color). Variants missing the attribute collapse into a single
// sentinel "ungrouped" group.
//
// The result is deterministic: groups are sorted by group key, and titles
// are derived the same way on every run so remote title matching stays
// stable. Pure function, no side effects.
func Partition(product *models.Product, groupingAttribute string) ([]models.ListingGroup, error) {
	if product == nil || len(product.Variants) == 0 {
		return nil, utils.NewChannelError(utils.KindEmptyProduct, "partition",
			"product has no variants", utils.ErrEmptyProduct)
	}
	if groupingAttribute == "" {
		groupingAttribute = "color"
	}

	byKey := make(map[string][]models.Variant)
	for _, v := range product.Variants {
		key := v.Attribute(groupingAttribute)
		if key == "" {
			key = models.UngroupedKey
		}
		byKey[key] = append(byKey[key], v)
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	active := product.Status == models.ProductStatusActive
	groups := make([]models.ListingGroup, 0, len(keys))
	for _, key := range keys {
		groups = append(groups, models.ListingGroup{
			ProductID: product.ID,
			GroupKey:  key,
			Title:     GroupTitle(product.Name, key),
			Active:    active,
			Variants:  byKey[key],
		})
	}
	return groups, nil
}

// GroupTitle derives the remote listing title for a group. Reused verbatim
// on every run; remote title-based matching depends on it.
func GroupTitle(productName, groupKey string) string {
	return fmt.Sprintf("%s - %s", productName, groupKey)
}
