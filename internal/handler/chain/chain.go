package chain

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/chain"
	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/registry"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
	"github.com/dwarvesf/fusion-bridge/internal/view"
)

type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

type ParamsRequest struct {
	Amount          string          `json:"amount" binding:"required"`
	ExecutionParams json.RawMessage `json:"execution_params" swaggertype:"object"`
}

type ScriptRequest struct {
	Hashlock            string `json:"hashlock" binding:"required" validate:"hexadecimal"`
	Timelock            int64  `json:"timelock" binding:"required"`
	RecipientPubKey     string `json:"recipient_pubkey" binding:"required" validate:"hexadecimal"`
	RefundPubKey        string `json:"refund_pubkey" binding:"required" validate:"hexadecimal"`
	UseRelativeTimelock bool   `json:"use_relative_timelock"`
}

type RegisterRequest struct {
	Family             string `json:"family" binding:"required" validate:"oneof=near cosmos utxo"`
	ChainID            uint64 `json:"chain_id" binding:"required"`
	Name               string `json:"name" binding:"required"`
	Symbol             string `json:"symbol" binding:"required"`
	SafetyDepositBps   uint16 `json:"safety_deposit_bps" binding:"required" validate:"max=10000"`
	SafetyDepositFloor string `json:"safety_deposit_floor"`
	DefaultTimelock    string `json:"default_timelock" binding:"required"`
	GasPrice           string `json:"gas_price"`
	// bech32 prefix for cosmos, chaincfg network name for utxo
	Network string `json:"network"`
}

type MetadataRequest struct {
	Name   string `json:"name" binding:"required"`
	Symbol string `json:"symbol" binding:"required"`
}

type AddressResponse struct {
	ChainID uint64 `json:"chain_id"`
	Address string `json:"address"`
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}

type AmountResponse struct {
	ChainID uint64 `json:"chain_id"`
	Amount  string `json:"amount"`
}

type FeatureResponse struct {
	ChainID   uint64 `json:"chain_id"`
	Feature   string `json:"feature"`
	Supported bool   `json:"supported"`
}

type ScriptResponse struct {
	ChainID uint64 `json:"chain_id"`
	Script  string `json:"script"`
	Address string `json:"address"`
}

type handler struct {
	registry *registry.Registry
	logger   *logger.Logger
}

func New(registry *registry.Registry, logger *logger.Logger) IHandler {
	return &handler{
		registry: registry,
		logger:   logger,
	}
}

func (h *handler) fail(c *gin.Context, fn string, err error, req interface{}, message string) {
	status := view.StatusCode(err)
	fields := map[string]string{
		"error":    err.Error(),
		"chain_id": c.Param("chain_id"),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(fn, fields)
	} else {
		h.logger.Info(fn, fields)
	}
	c.JSON(status, view.CreateResponse[any](nil, err, req, message))
}

func (h *handler) chainID(c *gin.Context, fn string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("chain_id"), 10, 64)
	if err != nil {
		h.fail(c, fn+"[ParseUint]", view.InvalidRequest(err), nil, "invalid chain id")
		return 0, false
	}
	return id, true
}

func (h *handler) bind(c *gin.Context, fn string, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, fn+"[ShouldBindJSON]", view.InvalidRequest(err), req, "invalid request")
		return false
	}
	if err := validator.New().Struct(req); err != nil {
		h.fail(c, fn+"[Validator]", view.InvalidRequest(err), req, "invalid request")
		return false
	}
	return true
}

func rawParams(raw json.RawMessage) []byte {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	return []byte(s)
}

// ListChains godoc
// @Summary List registered chains
// @id listChains
// @Tags Chain
// @Produce json
// @Success 200 {array} chain.Info
// @Router /chains [get]
func (h *handler) ListChains(c *gin.Context) {
	c.JSON(http.StatusOK, view.CreateResponse[any](h.registry.ListChains(), nil, nil, ""))
}

// SupportedChainIDs godoc
// @Summary List active chain ids
// @id supportedChainIds
// @Tags Chain
// @Produce json
// @Success 200 {array} int
// @Router /chains/supported [get]
func (h *handler) SupportedChainIDs(c *gin.Context) {
	c.JSON(http.StatusOK, view.CreateResponse[any](h.registry.GetSupportedChainIds(), nil, nil, ""))
}

// GetChainInfo godoc
// @Summary Get chain info
// @id getChainInfo
// @Tags Chain
// @Produce json
// @Param chain_id path int true "Chain id"
// @Success 200 {object} chain.Info
// @Failure 400 {object} view.ErrorResponse
// @Router /chains/{chain_id} [get]
func (h *handler) GetChainInfo(c *gin.Context) {
	id, ok := h.chainID(c, "[GetChainInfo]")
	if !ok {
		return
	}
	info, err := h.registry.GetChainInfo(id)
	if err != nil {
		h.fail(c, "[GetChainInfo][GetChainInfo]", err, nil, "failed to get chain info")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](info, nil, nil, ""))
}

// ValidateAddress godoc
// @Summary Validate a destination address
// @id validateAddress
// @Tags Chain
// @Accept json
// @Produce json
// @Param chain_id path int true "Chain id"
// @Param request body AddressRequest true "Address"
// @Success 200 {object} AddressResponse
// @Failure 400 {object} view.ErrorResponse
// @Router /chains/{chain_id}/validate-address [post]
func (h *handler) ValidateAddress(c *gin.Context) {
	id, ok := h.chainID(c, "[ValidateAddress]")
	if !ok {
		return
	}
	var req AddressRequest
	if !h.bind(c, "[ValidateAddress]", &req) {
		return
	}

	resp := AddressResponse{ChainID: id, Address: req.Address, IsValid: true}
	if err := h.registry.ValidateDestinationAddress(id, []byte(req.Address)); err != nil {
		if !errors.Is(err, model.ErrInvalidDestinationAddress) {
			h.fail(c, "[ValidateAddress][ValidateDestinationAddress]", err, req, "failed to validate address")
			return
		}
		resp.IsValid = false
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](resp, nil, nil, ""))
}

// ValidateOrderParams godoc
// @Summary Validate execution params
// @Description Never fails on bad params; the result carries the reason
// @id validateOrderParams
// @Tags Chain
// @Accept json
// @Produce json
// @Param chain_id path int true "Chain id"
// @Param request body ParamsRequest true "Params and amount"
// @Success 200 {object} chain.ValidationResult
// @Failure 400 {object} view.ErrorResponse
// @Router /chains/{chain_id}/validate-params [post]
func (h *handler) ValidateOrderParams(c *gin.Context) {
	id, ok := h.chainID(c, "[ValidateOrderParams]")
	if !ok {
		return
	}
	var req ParamsRequest
	if !h.bind(c, "[ValidateOrderParams]", &req) {
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		h.fail(c, "[ValidateOrderParams][ParseAmount]", err, req, "invalid request")
		return
	}

	res, err := h.registry.ValidateOrderParams(id, rawParams(req.ExecutionParams), amount)
	if err != nil {
		h.fail(c, "[ValidateOrderParams][ValidateOrderParams]", err, req, "failed to validate params")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](res, nil, nil, ""))
}

// EstimateExecutionCost godoc
// @Summary Estimate destination execution cost
// @id estimateExecutionCost
// @Tags Chain
// @Accept json
// @Produce json
// @Param chain_id path int true "Chain id"
// @Param request body ParamsRequest true "Params and amount"
// @Success 200 {object} AmountResponse
// @Failure 400 {object} view.ErrorResponse
// @Router /chains/{chain_id}/estimate [post]
func (h *handler) EstimateExecutionCost(c *gin.Context) {
	id, ok := h.chainID(c, "[EstimateExecutionCost]")
	if !ok {
		return
	}
	var req ParamsRequest
	if !h.bind(c, "[EstimateExecutionCost]", &req) {
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		h.fail(c, "[EstimateExecutionCost][ParseAmount]", err, req, "invalid request")
		return
	}

	cost, err := h.registry.EstimateExecutionCost(id, rawParams(req.ExecutionParams), amount)
	if err != nil {
		h.fail(c, "[EstimateExecutionCost][EstimateExecutionCost]", err, req, "failed to estimate cost")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](AmountResponse{ChainID: id, Amount: cost.String()}, nil, nil, ""))
}

// MinSafetyDeposit godoc
// @Summary Minimum safety deposit for an amount
// @id minSafetyDeposit
// @Tags Chain
// @Produce json
// @Param chain_id path int true "Chain id"
// @Param amount query string true "Source amount in base units"
// @Success 200 {object} AmountResponse
// @Failure 400 {object} view.ErrorResponse
// @Router /chains/{chain_id}/min-deposit [get]
func (h *handler) MinSafetyDeposit(c *gin.Context) {
	id, ok := h.chainID(c, "[MinSafetyDeposit]")
	if !ok {
		return
	}
	amount, err := model.ParseAmount(c.Query("amount"))
	if err != nil {
		h.fail(c, "[MinSafetyDeposit][ParseAmount]", err, nil, "invalid amount")
		return
	}

	deposit, err := h.registry.CalculateMinSafetyDeposit(id, amount)
	if err != nil {
		h.fail(c, "[MinSafetyDeposit][CalculateMinSafetyDeposit]", err, nil, "failed to calculate deposit")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](AmountResponse{ChainID: id, Amount: deposit.String()}, nil, nil, ""))
}

// SupportsFeature godoc
// @Summary Check a chain feature
// @id supportsFeature
// @Tags Chain
// @Produce json
// @Param chain_id path int true "Chain id"
// @Param feature path string true "Feature name"
// @Success 200 {object} FeatureResponse
// @Failure 400 {object} view.ErrorResponse
// @Router /chains/{chain_id}/features/{feature} [get]
func (h *handler) SupportsFeature(c *gin.Context) {
	id, ok := h.chainID(c, "[SupportsFeature]")
	if !ok {
		return
	}
	feature := c.Param("feature")
	supported, err := h.registry.SupportsFeature(id, feature)
	if err != nil {
		h.fail(c, "[SupportsFeature][SupportsFeature]", err, nil, "failed to check feature")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](FeatureResponse{ChainID: id, Feature: feature, Supported: supported}, nil, nil, ""))
}

// GenerateHTLCScript godoc
// @Summary Build an HTLC locking script
// @Description Only script based chains support this
// @id generateHTLCScript
// @Tags Chain
// @Accept json
// @Produce json
// @Param chain_id path int true "Chain id"
// @Param request body ScriptRequest true "Script parameters"
// @Success 200 {object} ScriptResponse
// @Failure 400 {object} view.ErrorResponse
// @Router /chains/{chain_id}/htlc-script [post]
func (h *handler) GenerateHTLCScript(c *gin.Context) {
	id, ok := h.chainID(c, "[GenerateHTLCScript]")
	if !ok {
		return
	}
	var req ScriptRequest
	if !h.bind(c, "[GenerateHTLCScript]", &req) {
		return
	}

	hashlock, err := hex.DecodeString(strings.TrimPrefix(req.Hashlock, "0x"))
	if err != nil {
		h.fail(c, "[GenerateHTLCScript][DecodeString]", view.InvalidRequest(err), req, "invalid hashlock")
		return
	}
	recipientHash, err := chain.PubKeyHash(req.RecipientPubKey)
	if err != nil {
		h.fail(c, "[GenerateHTLCScript][PubKeyHash]", errors.Wrap(model.ErrInvalidScriptParams, err.Error()), req, "invalid recipient pubkey")
		return
	}
	refundHash, err := chain.PubKeyHash(req.RefundPubKey)
	if err != nil {
		h.fail(c, "[GenerateHTLCScript][PubKeyHash]", errors.Wrap(model.ErrInvalidScriptParams, err.Error()), req, "invalid refund pubkey")
		return
	}

	script, addr, err := h.registry.GenerateHTLCScript(id, hashlock, req.Timelock, recipientHash, refundHash, req.UseRelativeTimelock)
	if err != nil {
		h.fail(c, "[GenerateHTLCScript][GenerateHTLCScript]", err, req, "failed to generate script")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](ScriptResponse{
		ChainID: id,
		Script:  hex.EncodeToString(script),
		Address: addr,
	}, nil, nil, ""))
}

func (r RegisterRequest) adapter() (chain.Adapter, error) {
	floor := r.SafetyDepositFloor
	if floor == "" {
		floor = "0"
	}
	floorAmount, err := model.ParseAmount(floor)
	if err != nil {
		return chain.Adapter{}, err
	}
	timelock, err := time.ParseDuration(r.DefaultTimelock)
	if err != nil {
		return chain.Adapter{}, errors.Wrap(model.ErrInvalidChainInfo, err.Error())
	}
	info := chain.Info{
		ChainID:            r.ChainID,
		Name:               r.Name,
		Symbol:             r.Symbol,
		SafetyDepositBps:   r.SafetyDepositBps,
		SafetyDepositFloor: floorAmount,
		DefaultTimelock:    timelock,
		Active:             true,
	}
	if r.GasPrice != "" {
		if info.GasPrice, err = model.ParseAmount(r.GasPrice); err != nil {
			return chain.Adapter{}, err
		}
	}

	switch chain.Family(r.Family) {
	case chain.FamilyNEAR:
		info.Network = r.Network
		return chain.NewNEAR(info)
	case chain.FamilyCosmos:
		return chain.NewCosmos(info, r.Network)
	case chain.FamilyUTXO:
		net, err := chain.NetworkParams(r.Network)
		if err != nil {
			return chain.Adapter{}, err
		}
		return chain.NewUTXO(info, net)
	}
	return chain.Adapter{}, errors.Wrapf(model.ErrInvalidChainInfo, "unknown chain family %q", r.Family)
}

// RegisterChain godoc
// @Summary Register a destination chain
// @Description Owner only. An active chain cannot be replaced.
// @id registerChain
// @Tags Chain
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Registry owner"
// @Param request body RegisterRequest true "Chain parameters"
// @Success 201 {object} chain.Info
// @Failure 400 {object} view.ErrorResponse
// @Failure 403 {object} view.ErrorResponse
// @Router /chains [post]
func (h *handler) RegisterChain(c *gin.Context) {
	var req RegisterRequest
	if !h.bind(c, "[RegisterChain]", &req) {
		return
	}
	adapter, err := req.adapter()
	if err != nil {
		h.fail(c, "[RegisterChain][adapter]", err, req, "invalid chain parameters")
		return
	}

	if err := h.registry.RegisterChainAdapter(c.GetHeader(view.CallerHeader), adapter); err != nil {
		h.fail(c, "[RegisterChain][RegisterChainAdapter]", err, req, "failed to register chain")
		return
	}
	info, err := h.registry.GetChainInfo(adapter.ChainID())
	if err != nil {
		h.fail(c, "[RegisterChain][GetChainInfo]", err, nil, "failed to get chain info")
		return
	}
	c.JSON(http.StatusCreated, view.CreateResponse[any](info, nil, nil, ""))
}

// ActivateChain godoc
// @Summary Activate a chain
// @id activateChain
// @Tags Chain
// @Produce json
// @Param X-Caller-Address header string true "Registry owner"
// @Param chain_id path int true "Chain id"
// @Success 200 {object} view.MessageResponse
// @Failure 403 {object} view.ErrorResponse
// @Router /chains/{chain_id}/activate [post]
func (h *handler) ActivateChain(c *gin.Context) {
	h.setActive(c, "[ActivateChain]", true)
}

// DeactivateChain godoc
// @Summary Deactivate a chain
// @Description Matched orders on the chain still settle
// @id deactivateChain
// @Tags Chain
// @Produce json
// @Param X-Caller-Address header string true "Registry owner"
// @Param chain_id path int true "Chain id"
// @Success 200 {object} view.MessageResponse
// @Failure 403 {object} view.ErrorResponse
// @Router /chains/{chain_id}/deactivate [post]
func (h *handler) DeactivateChain(c *gin.Context) {
	h.setActive(c, "[DeactivateChain]", false)
}

func (h *handler) setActive(c *gin.Context, fn string, active bool) {
	id, ok := h.chainID(c, fn)
	if !ok {
		return
	}
	caller := c.GetHeader(view.CallerHeader)

	var err error
	if active {
		err = h.registry.ActivateChain(caller, id)
	} else {
		err = h.registry.DeactivateChain(caller, id)
	}
	if err != nil {
		h.fail(c, fn+"[setActive]", err, nil, "failed to update chain")
		return
	}

	h.logger.Info(fn+" chain status changed", map[string]string{
		"chain_id": strconv.FormatUint(id, 10),
		"active":   strconv.FormatBool(active),
		"caller":   caller,
	})
	c.JSON(http.StatusOK, view.CreateResponse[any](view.MessageResponse{Message: "chain updated"}, nil, nil, ""))
}

// UpdateChainMetadata godoc
// @Summary Update chain display metadata
// @Description Owner only. Financial parameters never change after registration.
// @id updateChainMetadata
// @Tags Chain
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Registry owner"
// @Param chain_id path int true "Chain id"
// @Param request body MetadataRequest true "Metadata"
// @Success 200 {object} chain.Info
// @Failure 403 {object} view.ErrorResponse
// @Router /chains/{chain_id}/metadata [put]
func (h *handler) UpdateChainMetadata(c *gin.Context) {
	id, ok := h.chainID(c, "[UpdateChainMetadata]")
	if !ok {
		return
	}
	var req MetadataRequest
	if !h.bind(c, "[UpdateChainMetadata]", &req) {
		return
	}

	if err := h.registry.UpdateChainMetadata(c.GetHeader(view.CallerHeader), id, req.Name, req.Symbol); err != nil {
		h.fail(c, "[UpdateChainMetadata][UpdateChainMetadata]", err, req, "failed to update metadata")
		return
	}
	info, err := h.registry.GetChainInfo(id)
	if err != nil {
		h.fail(c, "[UpdateChainMetadata][GetChainInfo]", err, nil, "failed to get chain info")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](info, nil, nil, ""))
}
