package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/repository"
	"github.com/shadecraft/channelsync/internal/service"
	"github.com/shadecraft/channelsync/internal/utils"
)

// SyncHandler exposes manual sync triggers and sync state reads.
type SyncHandler struct {
	syncService *service.SyncService
	records     *repository.SyncRecordRepository
	tracker     *service.ImportTracker
	channels    map[models.ChannelCode]service.Channel
}

// NewSyncHandler creates a new SyncHandler. tracker may be nil when no
// batch channel is configured.
func NewSyncHandler(
	syncService *service.SyncService,
	records *repository.SyncRecordRepository,
	tracker *service.ImportTracker,
	channels map[models.ChannelCode]service.Channel,
) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		records:     records,
		tracker:     tracker,
		channels:    channels,
	}
}

// SyncRequest is the body of a manual sync trigger. An empty productIds
// list syncs the full active catalog.
type SyncRequest struct {
	ProductIDs []int  `json:"productIds"`
	Channel    string `json:"channel" binding:"required"`
}

// TriggerSync runs a synchronous sync batch for the requested products.
// POST /api/v1/sync
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "channel is required")
		return
	}

	channel, ok := h.channels[models.ChannelCode(req.Channel)]
	if !ok {
		utils.Error(c, http.StatusBadRequest, "UNKNOWN_CHANNEL", "Unknown channel: "+req.Channel)
		return
	}

	summary, err := h.syncService.SyncProducts(c.Request.Context(), channel, req.ProductIDs)
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, "SYNC_FAILED", err.Error())
		return
	}

	utils.Success(c, http.StatusOK, "Sync completed", summary)
}

// GetProductSyncRecords returns every sync record for one product across
// channels.
// GET /api/v1/products/:id/sync-records
func (h *SyncHandler) GetProductSyncRecords(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		utils.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid product id")
		return
	}

	recs, err := h.records.ListByProduct(id)
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve sync records")
		return
	}

	utils.Success(c, http.StatusOK, "Sync records retrieved successfully", gin.H{
		"productId": id,
		"records":   recs,
	})
}

// GetRecentSyncRecords returns the most recently synced records for a
// channel.
// GET /api/v1/sync-records/recent?channel=storefront&limit=50
func (h *SyncHandler) GetRecentSyncRecords(c *gin.Context) {
	channel := models.ChannelCode(c.Query("channel"))
	if _, ok := h.channels[channel]; !ok {
		utils.Error(c, http.StatusBadRequest, "UNKNOWN_CHANNEL", "Unknown channel: "+string(channel))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := h.records.ListRecent(channel, limit)
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve sync records")
		return
	}

	utils.Success(c, http.StatusOK, "Sync records retrieved successfully", recs)
}

// GetChannelListings pulls the remote listings of a realtime channel, for
// auditing what the marketplace actually has.
// GET /api/v1/channels/:channel/listings?pageSize=50
func (h *SyncHandler) GetChannelListings(c *gin.Context) {
	channel, ok := h.channels[models.ChannelCode(c.Param("channel"))]
	if !ok {
		utils.Error(c, http.StatusBadRequest, "UNKNOWN_CHANNEL", "Unknown channel: "+c.Param("channel"))
		return
	}
	realtime, ok := channel.(service.RealtimeChannel)
	if !ok {
		utils.Error(c, http.StatusBadRequest, "UNSUPPORTED_CHANNEL", "Channel does not expose a listing pull")
		return
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	entities, err := service.CollectRemoteEntities(c.Request.Context(), realtime.Pull(service.PullFilter{PageSize: pageSize}))
	if err != nil {
		utils.Error(c, http.StatusBadGateway, "CHANNEL_ERROR", utils.ErrorDetail(err))
		return
	}

	utils.Success(c, http.StatusOK, "Listings retrieved successfully", gin.H{
		"channel":  channel.Code(),
		"count":    len(entities),
		"listings": entities,
	})
}

// GetOpenImports returns the batch imports still awaiting a terminal
// status, plus the pending records they cover.
// GET /api/v1/imports
func (h *SyncHandler) GetOpenImports(c *gin.Context) {
	jobs := []models.ImportJob{}
	if h.tracker != nil {
		jobs = h.tracker.OpenJobs()
	}

	pending, err := h.records.ListPendingByChannel(models.ChannelTradegate)
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve pending records")
		return
	}

	utils.Success(c, http.StatusOK, "Imports retrieved successfully", gin.H{
		"open":    jobs,
		"pending": pending,
	})
}
