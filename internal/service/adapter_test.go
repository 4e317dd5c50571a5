package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectRemoteEntities(t *testing.T) {
	ctx := context.Background()

	t.Run("materializes the full sequence", func(t *testing.T) {
		ch := newFakeRealtime()
		ch.seed(remoteNavy("remote-1"))
		ch.seed(&RemoteEntity{ID: "remote-2", Title: "Roller Blind - Teal", Active: true})

		entities, err := CollectRemoteEntities(ctx, ch.Pull(PullFilter{PageSize: 1}))
		require.NoError(t, err)
		assert.Len(t, entities, 2)
	})

	t.Run("empty channel yields an empty slice", func(t *testing.T) {
		entities, err := CollectRemoteEntities(ctx, newFakeRealtime().Pull(PullFilter{}))
		require.NoError(t, err)
		assert.Empty(t, entities)
	})
}

func TestCSVPayloadBytes(t *testing.T) {
	p := &CSVPayload{
		Filename: "x.csv",
		Header:   []string{"sku", "price"},
		Rows:     [][]string{{"RB-NAVY-S", "49.90"}, {"RB,COMMA", "1.00"}},
	}
	data, err := p.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "sku,price\nRB-NAVY-S,49.90\n\"RB,COMMA\",1.00\n", string(data))
}
