package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/pipegate/internal/middleware"
	"github.com/pipelabs/pipegate/internal/model"
	"github.com/pipelabs/pipegate/internal/pkg/apperrors"
	"github.com/pipelabs/pipegate/internal/repository"
	"github.com/pipelabs/pipegate/internal/service"
)

// AdminHandler serves the operator console. Anything that acts on live
// trading state goes through the gateway pipeline like every other
// action; policy and listing endpoints configure the gateway itself and
// sit behind the admin auth middleware instead.
type AdminHandler struct {
	gw       *service.ActionGateway
	policies *service.PolicyStore
	clients  service.ClientStore
}

func NewAdminHandler(gw *service.ActionGateway, policies *service.PolicyStore, clients service.ClientStore) *AdminHandler {
	return &AdminHandler{gw: gw, policies: policies, clients: clients}
}

func (h *AdminHandler) evaluate(c *gin.Context, req *model.ActionRequest) {
	req.RequestID = middleware.RequestIDFromContext(c)
	res, err := h.gw.Evaluate(c.Request.Context(), middleware.BearerToken(c), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) CreateClient(c *gin.Context) {
	var req model.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.evaluate(c, &model.ActionRequest{
		Kind: model.KindCreateClient,
		Params: model.ActionParams{
			NewClient: &model.NewClientParams{
				Name:          req.Name,
				WalletAddress: req.WalletAddress,
				Email:         req.Email,
			},
		},
	})
}

func (h *AdminHandler) CreatePair(c *gin.Context) {
	var req model.CreatePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.evaluate(c, &model.ActionRequest{
		Kind:           model.KindCreatePair,
		TargetClientID: c.Param("id"),
		Params: model.ActionParams{
			Exchange:     req.Exchange,
			Pair:         req.Pair,
			Spread:       req.SpreadTarget,
			VolumeTarget: req.VolumeTargetDaily,
		},
	})
}

func (h *AdminHandler) DeletePair(c *gin.Context) {
	h.evaluate(c, &model.ActionRequest{
		Kind:           model.KindDeletePair,
		TargetClientID: c.Param("id"),
		Params: model.ActionParams{
			Exchange: c.Query("exchange"),
			Pair:     c.Query("pair"),
		},
	})
}

func (h *AdminHandler) SetSpread(c *gin.Context) {
	var req model.SetSpreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.evaluate(c, &model.ActionRequest{
		Kind:           model.KindSetSpread,
		TargetClientID: c.Param("id"),
		Params: model.ActionParams{
			Exchange: req.Exchange,
			Pair:     req.Pair,
			Spread:   req.Spread,
		},
	})
}

func (h *AdminHandler) SetVolumeTarget(c *gin.Context) {
	var req model.SetVolumeTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.evaluate(c, &model.ActionRequest{
		Kind:           model.KindSetVolumeTarget,
		TargetClientID: c.Param("id"),
		Params: model.ActionParams{
			Exchange:     req.Exchange,
			Pair:         req.Pair,
			VolumeTarget: req.Target,
		},
	})
}

func (h *AdminHandler) ListClients(c *gin.Context) {
	recs, err := h.clients.ListClients(c.Request.Context())
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *AdminHandler) ListPairs(c *gin.Context) {
	recs, err := h.clients.ListPairs(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *AdminHandler) GetPolicy(c *gin.Context) {
	pol, err := h.policies.GetPolicy(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrPolicyNotFound) {
		c.Error(apperrors.New(apperrors.ErrNotFound, "no policy for client "+c.Param("id"), nil))
		return
	}
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrPolicyUnavailable, "policy store unavailable", err))
		return
	}
	c.JSON(http.StatusOK, pol)
}

func (h *AdminHandler) PutPolicy(c *gin.Context) {
	var req model.PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	pol := &model.ClientPolicy{
		ClientID:         c.Param("id"),
		AllowedExchanges: req.AllowedExchanges,
		AllowedPairs:     req.AllowedPairs,
		MaxSpreadPercent: req.MaxSpreadPercent,
		MaxDailyVolume:   req.MaxDailyVolume,
		Role:             req.Role,
		Status:           req.Status,
		RateTier:         req.RateTier,
	}
	if err := h.policies.SetPolicy(c.Request.Context(), pol); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, pol)
}
