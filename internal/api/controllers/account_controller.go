package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wingman/internal/models/request_models"
	"wingman/internal/models/response_models"
	"wingman/internal/services"
	"wingman/pkg/middleware"
	"wingman/pkg/utils"
)

type AccountController struct {
	accountService services.AccountServiceInterface
	logger         *zap.Logger
}

func NewAccountController(accountService services.AccountServiceInterface, logger *zap.Logger) *AccountController {
	return &AccountController{
		accountService: accountService,
		logger:         logger.Named("account_controller"),
	}
}

// currentAccountID reads the id JWTAuthMiddleware stored on the context.
func currentAccountID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString(middleware.ContextUserID))
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return id, true
}

// Register godoc
// @Summary Register a new account
// @Description Create an account; paid tiers start with their welcome credits
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body request_models.SignUpRequest true "Account registration payload"
// @Success 201 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Router /accounts/register [post]
func (a *AccountController) Register(c *gin.Context) {
	var req request_models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	account, err := a.accountService.Signup(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	utils.RespondWithStatus(c, http.StatusCreated, account, "Account created successfully")
}

// Login godoc
// @Summary Login to an account
// @Description Authenticate a user and return a token
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body request_models.LoginRequest true "Login payload"
// @Success 200 {object} utils.APIResponse
// @Failure 401 {object} utils.APIResponse
// @Router /accounts/login [post]
func (a *AccountController) Login(c *gin.Context) {
	var req request_models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	token, err := a.accountService.Login(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	utils.RespondSuccess(c, response_models.AccountLoginResponse{Token: token}, "Login successful")
}

// Me godoc
// @Summary Current account
// @Description Balance, tier and remaining free quota. Applies any pending daily or monthly reset first.
// @Tags Accounts
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /accounts/me [get]
func (a *AccountController) Me(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	account, err := a.accountService.Summary(c.Request.Context(), accountID)
	if err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	utils.RespondSuccess(c, account, "Account fetched successfully")
}

// Ledger godoc
// @Summary Credit history
// @Description Ledger entries, newest first
// @Tags Accounts
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20) minimum(1) maximum(100)
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /accounts/me/ledger [get]
func (a *AccountController) Ledger(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	var q request_models.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid page or page_size")
		return
	}

	history, err := a.accountService.History(c.Request.Context(), accountID, q.Page, q.PageSize)
	if err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	utils.RespondSuccess(c, history, "Ledger fetched successfully")
}

// Purchase godoc
// @Summary Credit a settled purchase
// @Description Called by the payment integration once a payment settles. Repeating a reference returns the original result.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body request_models.PurchaseRequest true "Purchase payload"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/accounts/{id}/purchases [post]
func (a *AccountController) Purchase(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid account ID")
		return
	}

	var req request_models.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	resp, err := a.accountService.Purchase(c.Request.Context(), accountID, req.Credits, req.Reference)
	if err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	utils.RespondSuccess(c, resp, "Credits added")
}

// ChangeTier godoc
// @Summary Change subscription tier
// @Description The new daily allowance applies from the next daily reset
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body request_models.ChangeTierRequest true "Tier payload"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /accounts/me/tier [put]
func (a *AccountController) ChangeTier(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	var req request_models.ChangeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	account, err := a.accountService.ChangeTier(c.Request.Context(), accountID, req.Tier)
	if err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	utils.RespondSuccess(c, account, "Tier updated")
}

// Deactivate godoc
// @Summary Deactivate account
// @Tags Accounts
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /accounts/me [delete]
func (a *AccountController) Deactivate(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	if err := a.accountService.Deactivate(c.Request.Context(), accountID); err != nil {
		utils.HandleServiceError(c, a.logger, err)
		return
	}

	utils.RespondSuccess(c, nil, "Account deactivated")
}
