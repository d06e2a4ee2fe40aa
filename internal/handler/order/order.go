package order

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/dwarvesf/fusion-bridge/internal/controller"
	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
	"github.com/dwarvesf/fusion-bridge/internal/view"
)

type OrderRequest struct {
	SourceToken        string          `json:"source_token" binding:"required" validate:"eth_addr"`
	SourceAmount       string          `json:"source_amount" binding:"required"`
	DestinationChainID uint64          `json:"destination_chain_id" binding:"required"`
	DestinationToken   string          `json:"destination_token" binding:"required"`
	DestinationAmount  string          `json:"destination_amount" binding:"required"`
	DestinationAddress string          `json:"destination_address" binding:"required"`
	ResolverFee        string          `json:"resolver_fee"`
	ExpiryTime         time.Time       `json:"expiry_time" binding:"required"`
	ExecutionParams    json.RawMessage `json:"execution_params" swaggertype:"object"`
}

type ComputeHashRequest struct {
	Maker string `json:"maker" binding:"required" validate:"eth_addr"`
	OrderRequest
}

type MatchRequest struct {
	Hashlock      string           `json:"hashlock" binding:"required"`
	SafetyDeposit string           `json:"safety_deposit" binding:"required"`
	Timelocks     *model.Timelocks `json:"timelocks"`
}

type CompleteRequest struct {
	Preimage string `json:"preimage" binding:"required" validate:"max=258"`
}

type ListQuery struct {
	Status             string `form:"status" validate:"omitempty,oneof=open matched completed expired refunded"`
	Maker              string `form:"maker" validate:"omitempty,eth_addr"`
	Resolver           string `form:"resolver" validate:"omitempty,eth_addr"`
	DestinationChainID uint64 `form:"destination_chain_id"`
	Offset             int    `form:"offset" validate:"min=0"`
	Limit              int    `form:"limit" validate:"min=0,max=500"`
}

type OrderHashResponse struct {
	OrderHash string `json:"order_hash"`
}

type MatchableResponse struct {
	OrderHash string `json:"order_hash"`
	Matchable bool   `json:"matchable"`
}

type SecretResponse struct {
	OrderHash string `json:"order_hash"`
	Preimage  string `json:"preimage"`
}

type handler struct {
	controller controller.IController
	logger     *logger.Logger
}

func New(controller controller.IController, logger *logger.Logger) IHandler {
	return &handler{
		controller: controller,
		logger:     logger,
	}
}

// fail logs err under fn and writes it with the status its kind maps to.
func (h *handler) fail(c *gin.Context, fn string, err error, req interface{}, message string) {
	status := view.StatusCode(err)
	fields := map[string]string{
		"error":  err.Error(),
		"reason": model.ReasonOf(err),
	}
	if orderHash := c.Param("order_hash"); orderHash != "" {
		fields["order_hash"] = orderHash
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(fn, fields)
	} else {
		h.logger.Info(fn, fields)
	}
	c.JSON(status, view.CreateResponse[any](nil, err, req, message))
}

func (h *handler) bind(c *gin.Context, fn string, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, fn+"[ShouldBindJSON]", view.InvalidRequest(err), req, "invalid request")
		return false
	}

	// validate req
	if err := validator.New().Struct(req); err != nil {
		h.fail(c, fn+"[Validator]", view.InvalidRequest(err), req, "invalid request")
		return false
	}
	return true
}

func (r OrderRequest) params(maker string) (controller.CreateOrderParams, error) {
	amount, err := model.ParsePositiveAmount(r.SourceAmount)
	if err != nil {
		return controller.CreateOrderParams{}, err
	}
	fee := "0"
	if r.ResolverFee != "" {
		fee = r.ResolverFee
	}
	resolverFee, err := model.ParseAmount(fee)
	if err != nil {
		return controller.CreateOrderParams{}, err
	}

	var execParams []byte
	if raw := strings.TrimSpace(string(r.ExecutionParams)); raw != "" && raw != "null" {
		execParams = []byte(raw)
	}

	return controller.CreateOrderParams{
		Maker:              maker,
		SourceToken:        r.SourceToken,
		SourceAmount:       amount,
		DestinationChainID: r.DestinationChainID,
		DestinationToken:   r.DestinationToken,
		DestinationAmount:  r.DestinationAmount,
		DestinationAddress: r.DestinationAddress,
		ResolverFee:        resolverFee,
		ExpiryTime:         r.ExpiryTime,
		ExecutionParams:    execParams,
	}, nil
}

// CreateOrder godoc
// @Summary Create order
// @Description Admits an open order and moves source amount plus resolver fee from the maker into custody
// @id createOrder
// @Tags Order
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Maker address"
// @Param request body OrderRequest true "Order parameters"
// @Success 201 {object} model.Order
// @Failure 400 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /orders [post]
func (h *handler) CreateOrder(c *gin.Context) {
	var req OrderRequest
	if !h.bind(c, "[CreateOrder]", &req) {
		return
	}

	params, err := req.params(c.GetHeader(view.CallerHeader))
	if err != nil {
		h.fail(c, "[CreateOrder][params]", err, req, "invalid request")
		return
	}

	o, err := h.controller.CreateOrder(c.Request.Context(), params)
	if err != nil {
		h.fail(c, "[CreateOrder][CreateOrder]", err, req, "failed to create order")
		return
	}

	c.JSON(http.StatusCreated, view.CreateResponse[any](o, nil, nil, ""))
}

// ComputeOrderHash godoc
// @Summary Compute order hash
// @Description Returns the id an order with these parameters would get
// @id computeOrderHash
// @Tags Order
// @Accept json
// @Produce json
// @Param request body ComputeHashRequest true "Order parameters"
// @Success 200 {object} OrderHashResponse
// @Failure 400 {object} view.ErrorResponse
// @Router /orders/hash [post]
func (h *handler) ComputeOrderHash(c *gin.Context) {
	var req ComputeHashRequest
	if !h.bind(c, "[ComputeOrderHash]", &req) {
		return
	}

	params, err := req.params(req.Maker)
	if err != nil {
		h.fail(c, "[ComputeOrderHash][params]", err, req, "invalid request")
		return
	}

	hash, err := h.controller.ComputeOrderHash(params)
	if err != nil {
		h.fail(c, "[ComputeOrderHash][ComputeOrderHash]", err, req, "failed to compute order hash")
		return
	}

	c.JSON(http.StatusOK, view.CreateResponse[any](OrderHashResponse{OrderHash: hash}, nil, nil, ""))
}

// ListOrders godoc
// @Summary List orders
// @Description Lists orders newest first, optionally filtered
// @id listOrders
// @Tags Order
// @Produce json
// @Param status query string false "Order status"
// @Param maker query string false "Maker address"
// @Param resolver query string false "Resolver address"
// @Param destination_chain_id query int false "Destination chain id"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} view.PaginatedResponse[model.Order]
// @Failure 400 {object} view.ErrorResponse
// @Router /orders [get]
func (h *handler) ListOrders(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, "[ListOrders][ShouldBindQuery]", view.InvalidRequest(err), q, "invalid request")
		return
	}
	if err := validator.New().Struct(q); err != nil {
		h.fail(c, "[ListOrders][Validator]", view.InvalidRequest(err), q, "invalid request")
		return
	}

	orders, total, err := h.controller.ListOrders(c.Request.Context(), model.OrderFilter{
		Status:             model.OrderStatus(q.Status),
		Maker:              q.Maker,
		Resolver:           q.Resolver,
		DestinationChainID: q.DestinationChainID,
		Offset:             q.Offset,
		Limit:              q.Limit,
	})
	if err != nil {
		h.fail(c, "[ListOrders][ListOrders]", err, q, "failed to list orders")
		return
	}

	c.JSON(http.StatusOK, view.CreateResponse[any](view.PaginatedResponse[*model.Order]{
		Items:  orders,
		Total:  total,
		Offset: q.Offset,
		Limit:  q.Limit,
	}, nil, nil, ""))
}

// GetOrder godoc
// @Summary Get order
// @id getOrder
// @Tags Order
// @Produce json
// @Param order_hash path string true "Order hash"
// @Success 200 {object} model.Order
// @Failure 404 {object} view.ErrorResponse
// @Router /orders/{order_hash} [get]
func (h *handler) GetOrder(c *gin.Context) {
	o, err := h.controller.GetOrder(c.Request.Context(), c.Param("order_hash"))
	if err != nil {
		h.fail(c, "[GetOrder][GetOrder]", err, nil, "failed to get order")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](o, nil, nil, ""))
}

// MatchOrder godoc
// @Summary Match order
// @Description Binds the calling resolver, a hashlock and a safety deposit to an open order
// @id matchOrder
// @Tags Order
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Resolver address"
// @Param order_hash path string true "Order hash"
// @Param request body MatchRequest true "Match parameters"
// @Success 200 {object} model.Order
// @Failure 400 {object} view.ErrorResponse
// @Failure 403 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Failure 422 {object} view.ErrorResponse
// @Router /orders/{order_hash}/match [post]
func (h *handler) MatchOrder(c *gin.Context) {
	var req MatchRequest
	if !h.bind(c, "[MatchOrder]", &req) {
		return
	}

	deposit, err := model.ParseAmount(req.SafetyDeposit)
	if err != nil {
		h.fail(c, "[MatchOrder][ParseAmount]", err, req, "invalid request")
		return
	}

	o, err := h.controller.MatchOrder(c.Request.Context(), controller.MatchParams{
		OrderHash:     c.Param("order_hash"),
		Resolver:      c.GetHeader(view.CallerHeader),
		Hashlock:      req.Hashlock,
		SafetyDeposit: deposit,
		Timelocks:     req.Timelocks,
	})
	if err != nil {
		h.fail(c, "[MatchOrder][MatchOrder]", err, req, "failed to match order")
		return
	}

	c.JSON(http.StatusOK, view.CreateResponse[any](o, nil, nil, ""))
}

// CompleteOrder godoc
// @Summary Complete order
// @Description Releases both escrows against the hex encoded preimage of the hashlock
// @id completeOrder
// @Tags Order
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Caller address"
// @Param order_hash path string true "Order hash"
// @Param request body CompleteRequest true "Preimage"
// @Success 200 {object} model.Order
// @Failure 403 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Failure 422 {object} view.ErrorResponse
// @Router /orders/{order_hash}/complete [post]
func (h *handler) CompleteOrder(c *gin.Context) {
	var req CompleteRequest
	if !h.bind(c, "[CompleteOrder]", &req) {
		return
	}

	preimage, err := hex.DecodeString(strings.TrimPrefix(req.Preimage, "0x"))
	if err != nil {
		h.fail(c, "[CompleteOrder][DecodeString]", view.InvalidRequest(err), req, "preimage must be hex")
		return
	}

	o, err := h.controller.CompleteOrder(c.Request.Context(), controller.CompleteParams{
		OrderHash: c.Param("order_hash"),
		Caller:    c.GetHeader(view.CallerHeader),
		Preimage:  preimage,
	})
	if err != nil {
		h.fail(c, "[CompleteOrder][CompleteOrder]", err, nil, "failed to complete order")
		return
	}

	c.JSON(http.StatusOK, view.CreateResponse[any](o, nil, nil, ""))
}

// RefundOrder godoc
// @Summary Refund order
// @Description Returns escrowed funds to the maker and the safety deposit to the resolver
// @id refundOrder
// @Tags Order
// @Produce json
// @Param X-Caller-Address header string true "Caller address"
// @Param order_hash path string true "Order hash"
// @Success 200 {object} model.Order
// @Failure 403 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Failure 422 {object} view.ErrorResponse
// @Router /orders/{order_hash}/refund [post]
func (h *handler) RefundOrder(c *gin.Context) {
	o, err := h.controller.RefundOrder(c.Request.Context(), controller.RefundParams{
		OrderHash: c.Param("order_hash"),
		Caller:    c.GetHeader(view.CallerHeader),
	})
	if err != nil {
		h.fail(c, "[RefundOrder][RefundOrder]", err, nil, "failed to refund order")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](o, nil, nil, ""))
}

// ExpireOrder godoc
// @Summary Expire order
// @Description Returns an unmatched order's custody to its maker once it has expired
// @id expireOrder
// @Tags Order
// @Produce json
// @Param order_hash path string true "Order hash"
// @Success 200 {object} model.Order
// @Failure 409 {object} view.ErrorResponse
// @Failure 422 {object} view.ErrorResponse
// @Router /orders/{order_hash}/expire [post]
func (h *handler) ExpireOrder(c *gin.Context) {
	o, err := h.controller.ExpireOrder(c.Request.Context(), c.Param("order_hash"))
	if err != nil {
		h.fail(c, "[ExpireOrder][ExpireOrder]", err, nil, "failed to expire order")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](o, nil, nil, ""))
}

// GetEscrows godoc
// @Summary Get escrow state
// @id getEscrows
// @Tags Order
// @Produce json
// @Param order_hash path string true "Order hash"
// @Success 200 {object} controller.EscrowState
// @Failure 404 {object} view.ErrorResponse
// @Router /orders/{order_hash}/escrows [get]
func (h *handler) GetEscrows(c *gin.Context) {
	state, err := h.controller.GetEscrows(c.Request.Context(), c.Param("order_hash"))
	if err != nil {
		h.fail(c, "[GetEscrows][GetEscrows]", err, nil, "failed to get escrows")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](state, nil, nil, ""))
}

// IsOrderMatchable godoc
// @Summary Check whether an order can be matched now
// @id isOrderMatchable
// @Tags Order
// @Produce json
// @Param order_hash path string true "Order hash"
// @Success 200 {object} MatchableResponse
// @Failure 404 {object} view.ErrorResponse
// @Router /orders/{order_hash}/matchable [get]
func (h *handler) IsOrderMatchable(c *gin.Context) {
	orderHash := c.Param("order_hash")
	ok, err := h.controller.IsOrderMatchable(c.Request.Context(), orderHash)
	if err != nil {
		h.fail(c, "[IsOrderMatchable][IsOrderMatchable]", err, nil, "failed to check order")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](MatchableResponse{OrderHash: orderHash, Matchable: ok}, nil, nil, ""))
}

// EstimateOrderCosts godoc
// @Summary Estimate order costs
// @Description Execution cost, minimum safety deposit and resolver fee, for display only
// @id estimateOrderCosts
// @Tags Order
// @Produce json
// @Param order_hash path string true "Order hash"
// @Success 200 {object} controller.CostEstimate
// @Failure 404 {object} view.ErrorResponse
// @Router /orders/{order_hash}/costs [get]
func (h *handler) EstimateOrderCosts(c *gin.Context) {
	estimate, err := h.controller.EstimateOrderCosts(c.Request.Context(), c.Param("order_hash"))
	if err != nil {
		h.fail(c, "[EstimateOrderCosts][EstimateOrderCosts]", err, nil, "failed to estimate costs")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](estimate, nil, nil, ""))
}

// GetOrderEvents godoc
// @Summary List order events
// @id getOrderEvents
// @Tags Order
// @Produce json
// @Param order_hash path string true "Order hash"
// @Success 200 {array} model.OrderEvent
// @Failure 404 {object} view.ErrorResponse
// @Router /orders/{order_hash}/events [get]
func (h *handler) GetOrderEvents(c *gin.Context) {
	events, err := h.controller.GetOrderEvents(c.Request.Context(), c.Param("order_hash"))
	if err != nil {
		h.fail(c, "[GetOrderEvents][GetOrderEvents]", err, nil, "failed to get order events")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](events, nil, nil, ""))
}

// GetSecret godoc
// @Summary Get the published preimage of a completed order
// @id getSecret
// @Tags Order
// @Produce json
// @Param order_hash path string true "Order hash"
// @Success 200 {object} SecretResponse
// @Failure 404 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Router /orders/{order_hash}/secret [get]
func (h *handler) GetSecret(c *gin.Context) {
	orderHash := c.Param("order_hash")
	preimage, err := h.controller.GetSecret(c.Request.Context(), orderHash)
	if err != nil {
		h.fail(c, "[GetSecret][GetSecret]", err, nil, "failed to get secret")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](SecretResponse{OrderHash: orderHash, Preimage: preimage}, nil, nil, ""))
}
