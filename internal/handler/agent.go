package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/pipegate/internal/middleware"
	"github.com/pipelabs/pipegate/internal/model"
	"github.com/pipelabs/pipegate/internal/pkg/apperrors"
	"github.com/pipelabs/pipegate/internal/service"
)

// AgentHandler serves the conversational-agent surface. Every route
// funnels into the gateway pipeline; the handler only binds transport
// to an ActionRequest and never makes an authorization decision itself.
type AgentHandler struct {
	gw *service.ActionGateway
}

func NewAgentHandler(gw *service.ActionGateway) *AgentHandler {
	return &AgentHandler{gw: gw}
}

func (h *AgentHandler) evaluate(c *gin.Context, req *model.ActionRequest) {
	req.RequestID = middleware.RequestIDFromContext(c)
	res, err := h.gw.Evaluate(c.Request.Context(), middleware.BearerToken(c), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AgentHandler) GetBalance(c *gin.Context) {
	h.evaluate(c, &model.ActionRequest{
		Kind:           model.KindReadBalance,
		TargetClientID: c.Query("client_id"),
	})
}

func (h *AgentHandler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.Error(apperrors.NewInvalidRequest("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	h.evaluate(c, &model.ActionRequest{
		Kind:           model.KindReadHistory,
		TargetClientID: c.Query("client_id"),
		Params:         model.ActionParams{HistoryLimit: limit},
	})
}

func (h *AgentHandler) PlaceOrder(c *gin.Context) {
	var req model.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.evaluate(c, &model.ActionRequest{
		Kind:           model.KindPlaceOrder,
		TargetClientID: c.Query("client_id"),
		Params: model.ActionParams{
			Exchange: req.Exchange,
			Pair:     req.Pair,
			Side:     req.Side,
			Quantity: req.Quantity,
			Price:    req.Price,
		},
	})
}

func (h *AgentHandler) CancelOrder(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		c.Error(apperrors.NewInvalidRequest("order id is required"))
		return
	}
	h.evaluate(c, &model.ActionRequest{
		Kind:           model.KindCancelOrder,
		TargetClientID: c.Query("client_id"),
		Params: model.ActionParams{
			OrderID:  orderID,
			Exchange: c.Query("exchange"),
		},
	})
}
