package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
	"github.com/shadecraft/channelsync/pkg/tradegate"
)

func TestEncodeGroups(t *testing.T) {
	ch := NewTradegateChannel(nil)

	t.Run("one row per variant with the fixed header", func(t *testing.T) {
		groups := []models.ListingGroup{*navyGroup()}
		payload, err := ch.EncodeGroups(groups)
		require.NoError(t, err)

		assert.Equal(t, tradegateHeader, payload.Header)
		require.Len(t, payload.Rows, 2)
		assert.Equal(t, []string{"Roller Blind - Navy", "Navy", "RB-NAVY-S", "49.90", "S", "", "true"}, payload.Rows[0])
		assert.Equal(t, []string{"Roller Blind - Navy", "Navy", "RB-NAVY-L", "69.90", "L", "", "true"}, payload.Rows[1])
		assert.True(t, strings.HasPrefix(payload.Filename, "listings-"))
		assert.True(t, strings.HasSuffix(payload.Filename, ".csv"))
	})

	t.Run("renders to parseable csv", func(t *testing.T) {
		payload, err := ch.EncodeGroups([]models.ListingGroup{*navyGroup()})
		require.NoError(t, err)

		data, err := payload.Bytes()
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "listing_title,group_key,sku,price,option,barcode,active", lines[0])
	})

	t.Run("missing barcode renders as an empty cell", func(t *testing.T) {
		group := *navyGroup()
		barcode := "4006381333931"
		group.Variants[0].Barcode = &barcode

		payload, err := ch.EncodeGroups([]models.ListingGroup{group})
		require.NoError(t, err)
		require.Len(t, payload.Rows, 2)
		assert.Equal(t, "4006381333931", payload.Rows[0][5])
		assert.Equal(t, "", payload.Rows[1][5], "catalog rows without a barcode stay blank")
	})

	t.Run("empty group set is rejected", func(t *testing.T) {
		_, err := ch.EncodeGroups(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrEmptyProduct)
	})
}

func TestMapImportStatus(t *testing.T) {
	cases := map[string]models.ImportStatus{
		"QUEUED":        models.ImportStatusSubmitted,
		"received":      models.ImportStatusSubmitted,
		"RUNNING":       models.ImportStatusProcessing,
		"in_progress":   models.ImportStatusProcessing,
		" DONE ":        models.ImportStatusComplete,
		"Completed":     models.ImportStatusComplete,
		"REJECTED":      models.ImportStatusFailed,
		"error":         models.ImportStatusFailed,
		"SOMETHING_NEW": models.ImportStatusUnknown,
		"":              models.ImportStatusUnknown,
	}
	for remote, want := range cases {
		assert.Equalf(t, want, mapImportStatus(remote), "remote status %q", remote)
	}
}

func TestClassifyTradegateErr(t *testing.T) {
	t.Run("auth rejection is a connection failure", func(t *testing.T) {
		err := classifyTradegateErr("tradegate.ping", &tradegate.APIError{StatusCode: 401, Message: "bad key"})
		assert.Equal(t, utils.KindConnection, utils.KindOf(err))
	})

	t.Run("rate limits and server errors are retryable", func(t *testing.T) {
		for _, code := range []int{429, 500, 503} {
			err := classifyTradegateErr("tradegate.submit", &tradegate.APIError{StatusCode: code})
			assert.Equalf(t, utils.KindRetryable, utils.KindOf(err), "status %d", code)
		}
	})

	t.Run("client errors are validation failures", func(t *testing.T) {
		err := classifyTradegateErr("tradegate.submit", &tradegate.APIError{StatusCode: 422, Message: "bad csv"})
		assert.Equal(t, utils.KindValidation, utils.KindOf(err))
	})

	t.Run("timeouts are retryable", func(t *testing.T) {
		err := classifyTradegateErr("tradegate.status", context.DeadlineExceeded)
		assert.Equal(t, utils.KindRetryable, utils.KindOf(err))
	})
}
