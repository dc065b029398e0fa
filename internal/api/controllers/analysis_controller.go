package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wingman/internal/models/request_models"
	"wingman/internal/services"
	"wingman/pkg/utils"
)

const IdempotencyHeader = "Idempotency-Key"

type AnalysisController struct {
	analysisService services.AnalysisServiceInterface
	logger          *zap.Logger
}

func NewAnalysisController(analysisService services.AnalysisServiceInterface, logger *zap.Logger) *AnalysisController {
	return &AnalysisController{
		analysisService: analysisService,
		logger:          logger.Named("analysis_controller"),
	}
}

// bindAnalysisRequest accepts the idempotency key from the header or the body;
// the header wins.
func bindAnalysisRequest(c *gin.Context) (request_models.CreateAnalysisRequest, bool) {
	var req request_models.CreateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return req, false
	}
	if key := c.GetHeader(IdempotencyHeader); key != "" {
		req.IdempotencyKey = key
	}
	return req, true
}

// Submit godoc
// @Summary Submit a conversation for analysis
// @Description Charges credits (or the monthly free use) and queues the analysis. An identical recent request is answered from cache for free.
// @Tags Analyses
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Retry-safe request key"
// @Param request body request_models.CreateAnalysisRequest true "Analysis payload"
// @Success 202 {object} utils.APIResponse
// @Success 200 {object} utils.APIResponse "cache hit"
// @Failure 400 {object} utils.APIResponse
// @Failure 402 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Failure 429 {object} utils.APIResponse
// @Security BearerAuth
// @Router /analyses [post]
func (a *AnalysisController) Submit(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}
	req, ok := bindAnalysisRequest(c)
	if !ok {
		return
	}

	resp, err := a.analysisService.Submit(c.Request.Context(), accountID, req)
	if err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	if resp.CacheHit {
		utils.RespondSuccess(c, resp, "Served from cache")
		return
	}
	utils.RespondWithStatus(c, http.StatusAccepted, resp, "Analysis queued")
}

// Quote godoc
// @Summary Price an analysis without running it
// @Tags Analyses
// @Accept json
// @Produce json
// @Param request body request_models.CreateAnalysisRequest true "Analysis payload"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Security BearerAuth
// @Router /analyses/quote [post]
func (a *AnalysisController) Quote(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}
	req, ok := bindAnalysisRequest(c)
	if !ok {
		return
	}

	quote, err := a.analysisService.Quote(c.Request.Context(), accountID, req)
	if err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	utils.RespondSuccess(c, quote, "Quote calculated")
}

// Get godoc
// @Summary Analysis status and result
// @Tags Analyses
// @Produce json
// @Param id path string true "Analysis ID"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Security BearerAuth
// @Router /analyses/{id} [get]
func (a *AnalysisController) Get(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	analysisID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid analysis ID")
		return
	}

	status, err := a.analysisService.Get(c.Request.Context(), accountID, analysisID)
	if err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	utils.RespondSuccess(c, status, "Analysis fetched successfully")
}
