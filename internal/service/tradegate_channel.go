package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
	"github.com/shadecraft/channelsync/pkg/tradegate"
)

// tradegateHeader is the import file column layout the marketplace expects.
var tradegateHeader = []string{"listing_title", "group_key", "sku", "price", "option", "barcode", "active"}

// TradegateChannel adapts the tradegate batch-import client to the batch
// channel capability.
type TradegateChannel struct {
	client *tradegate.Client
}

// NewTradegateChannel creates a TradegateChannel over an existing client.
func NewTradegateChannel(client *tradegate.Client) *TradegateChannel {
	return &TradegateChannel{client: client}
}

// Code returns the channel code.
func (c *TradegateChannel) Code() models.ChannelCode {
	return models.ChannelTradegate
}

// TestConnection probes the tradegate API with the configured credentials.
func (c *TradegateChannel) TestConnection(ctx context.Context) (*ConnectionResult, error) {
	info, err := c.client.Ping(ctx)
	if err != nil {
		return &ConnectionResult{OK: false, Detail: err.Error()}, classifyTradegateErr("tradegate.ping", err)
	}
	if !info.Active {
		detail := "merchant account " + info.MerchantID + " is inactive"
		return &ConnectionResult{OK: false, Detail: detail},
			utils.NewChannelError(utils.KindConnection, "tradegate.ping", detail, nil)
	}
	return &ConnectionResult{OK: true, Detail: "merchant " + info.MerchantID}, nil
}

// EncodeGroups renders listing groups into the tradegate import format, one
// row per variant.
func (c *TradegateChannel) EncodeGroups(groups []models.ListingGroup) (*CSVPayload, error) {
	if len(groups) == 0 {
		return nil, utils.NewChannelError(utils.KindEmptyProduct, "tradegate.encode",
			"no listing groups to encode", utils.ErrEmptyProduct)
	}
	payload := &CSVPayload{
		Filename: fmt.Sprintf("listings-%s-%s.csv", time.Now().UTC().Format("20060102T150405"), uuid.New().String()[:8]),
		Header:   tradegateHeader,
	}
	for _, g := range groups {
		for _, v := range g.Variants {
			payload.Rows = append(payload.Rows, []string{
				g.Title,
				g.GroupKey,
				v.SKU,
				strconv.FormatFloat(v.Price, 'f', 2, 64),
				v.Attribute("size"),
				v.BarcodeValue(),
				strconv.FormatBool(g.Active),
			})
		}
	}
	return payload, nil
}

// SubmitImport uploads the CSV and returns the created import job.
func (c *TradegateChannel) SubmitImport(ctx context.Context, payload *CSVPayload) (*models.ImportJob, error) {
	data, err := payload.Bytes()
	if err != nil {
		return nil, utils.NewChannelError(utils.KindValidation, "tradegate.submit", err.Error(), err)
	}
	imp, err := c.client.SubmitImport(ctx, payload.Filename, data)
	if err != nil {
		return nil, classifyTradegateErr("tradegate.submit", err)
	}
	return c.fromImport(imp), nil
}

// CheckStatus queries the marketplace for the import's current state.
func (c *TradegateChannel) CheckStatus(ctx context.Context, importID string) (*models.ImportJob, error) {
	imp, err := c.client.GetImport(ctx, importID)
	if err != nil {
		return nil, classifyTradegateErr("tradegate.checkStatus", err)
	}
	return c.fromImport(imp), nil
}

// DownloadErrorReport returns the raw error report text.
func (c *TradegateChannel) DownloadErrorReport(ctx context.Context, importID string) (string, error) {
	text, err := c.client.DownloadErrorReport(ctx, importID)
	if err != nil {
		if errors.Is(err, tradegate.ErrReportNotAvailable) {
			return "", utils.ErrReportNotAvailable
		}
		return "", classifyTradegateErr("tradegate.errorReport", err)
	}
	return text, nil
}

// DownloadNewEntityReport returns the raw new-items report text.
func (c *TradegateChannel) DownloadNewEntityReport(ctx context.Context, importID string) (string, error) {
	text, err := c.client.DownloadNewItemsReport(ctx, importID)
	if err != nil {
		if errors.Is(err, tradegate.ErrReportNotAvailable) {
			return "", utils.ErrReportNotAvailable
		}
		return "", classifyTradegateErr("tradegate.newEntityReport", err)
	}
	return text, nil
}

// fromImport maps the wire import onto the engine job model. Statuses the
// marketplace renames over time land on unknown rather than being guessed.
func (c *TradegateChannel) fromImport(imp *tradegate.Import) *models.ImportJob {
	job := &models.ImportJob{
		ExternalImportID:   imp.ID,
		Channel:            models.ChannelTradegate,
		Status:             mapImportStatus(imp.Status),
		StatusText:         imp.StatusText,
		HasErrorReport:     imp.HasErrorReport,
		HasNewEntityReport: imp.HasNewItemsReport,
	}
	if t, err := time.Parse(time.RFC3339, imp.SubmittedAt); err == nil {
		job.SubmittedAt = t
	}
	return job
}

func mapImportStatus(remote string) models.ImportStatus {
	switch strings.ToUpper(strings.TrimSpace(remote)) {
	case "QUEUED", "RECEIVED", "SUBMITTED":
		return models.ImportStatusSubmitted
	case "RUNNING", "PROCESSING", "IN_PROGRESS":
		return models.ImportStatusProcessing
	case "DONE", "COMPLETE", "COMPLETED", "FINISHED":
		return models.ImportStatusComplete
	case "FAILED", "ERROR", "REJECTED":
		return models.ImportStatusFailed
	default:
		return models.ImportStatusUnknown
	}
}

// classifyTradegateErr maps client errors onto the failure taxonomy.
func classifyTradegateErr(op string, err error) error {
	var apiErr *tradegate.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return utils.NewChannelError(utils.KindConnection, op, apiErr.Message, err)
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return utils.NewChannelError(utils.KindRetryable, op, apiErr.Message, err)
		default:
			return utils.NewChannelError(utils.KindValidation, op, apiErr.Message, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.NewChannelError(utils.KindRetryable, op, "timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return utils.NewChannelError(utils.KindRetryable, op, "timeout", err)
	}
	return utils.NewChannelError(utils.KindConnection, op, "", err)
}
