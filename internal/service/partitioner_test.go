package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
)

func rollerBlind() *models.Product {
	return &models.Product{
		ID:     42,
		Name:   "Roller Blind",
		Status: models.ProductStatusActive,
		Variants: []models.Variant{
			{ID: 1, ProductID: 42, SKU: "RB-NAVY-S", Price: 49.90, Position: 0,
				Attributes: models.AttributeMap{"color": "Navy", "size": "S"}},
			{ID: 2, ProductID: 42, SKU: "RB-NAVY-L", Price: 69.90, Position: 1,
				Attributes: models.AttributeMap{"color": "Navy", "size": "L"}},
			{ID: 3, ProductID: 42, SKU: "RB-TEAL-S", Price: 49.90, Position: 2,
				Attributes: models.AttributeMap{"color": "Teal", "size": "S"}},
		},
	}
}

func TestPartition(t *testing.T) {
	t.Run("groups variants by color", func(t *testing.T) {
		groups, err := Partition(rollerBlind(), "color")
		require.NoError(t, err)
		require.Len(t, groups, 2)

		assert.Equal(t, "Navy", groups[0].GroupKey)
		assert.Equal(t, "Roller Blind - Navy", groups[0].Title)
		assert.True(t, groups[0].Active)
		require.Len(t, groups[0].Variants, 2)
		assert.Equal(t, []string{"RB-NAVY-S", "RB-NAVY-L"}, groups[0].SKUs())

		assert.Equal(t, "Teal", groups[1].GroupKey)
		assert.Equal(t, "Roller Blind - Teal", groups[1].Title)
		assert.Equal(t, []string{"RB-TEAL-S"}, groups[1].SKUs())
	})

	t.Run("empty product is rejected", func(t *testing.T) {
		_, err := Partition(&models.Product{ID: 7, Name: "Ghost"}, "color")
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrEmptyProduct)
		assert.Equal(t, utils.KindEmptyProduct, utils.KindOf(err))

		_, err = Partition(nil, "color")
		assert.ErrorIs(t, err, utils.ErrEmptyProduct)
	})

	t.Run("variants without the attribute collapse into one group", func(t *testing.T) {
		p := rollerBlind()
		p.Variants = append(p.Variants, models.Variant{
			ID: 4, ProductID: 42, SKU: "RB-PLAIN", Price: 39.90, Position: 3,
			Attributes: models.AttributeMap{"size": "M"},
		})
		groups, err := Partition(p, "color")
		require.NoError(t, err)
		require.Len(t, groups, 3)

		var ungrouped *models.ListingGroup
		for i := range groups {
			if groups[i].GroupKey == models.UngroupedKey {
				ungrouped = &groups[i]
			}
		}
		require.NotNil(t, ungrouped)
		assert.Equal(t, []string{"RB-PLAIN"}, ungrouped.SKUs())
		assert.Equal(t, "Roller Blind - ungrouped", ungrouped.Title)
	})

	t.Run("empty attribute name defaults to color", func(t *testing.T) {
		groups, err := Partition(rollerBlind(), "")
		require.NoError(t, err)
		assert.Len(t, groups, 2)
	})

	t.Run("inactive products produce inactive groups", func(t *testing.T) {
		p := rollerBlind()
		p.Status = models.ProductStatusDraft
		groups, err := Partition(p, "color")
		require.NoError(t, err)
		for _, g := range groups {
			assert.False(t, g.Active)
		}
	})

	t.Run("every variant lands in exactly one group", func(t *testing.T) {
		p := rollerBlind()
		groups, err := Partition(p, "color")
		require.NoError(t, err)

		seen := map[string]int{}
		for _, g := range groups {
			for _, sku := range g.SKUs() {
				seen[sku]++
			}
		}
		assert.Len(t, seen, len(p.Variants))
		for sku, n := range seen {
			assert.Equalf(t, 1, n, "sku %s appears %d times", sku, n)
		}
	})

	t.Run("output order is deterministic across runs", func(t *testing.T) {
		first, err := Partition(rollerBlind(), "color")
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := Partition(rollerBlind(), "color")
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})
}
