package account

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/authority"
	"github.com/dwarvesf/fusion-bridge/internal/ledger"
	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/store"
	"github.com/dwarvesf/fusion-bridge/internal/store/balance"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
	"github.com/dwarvesf/fusion-bridge/internal/view"
)

type MovementRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Amount string `json:"amount" binding:"required" validate:"numeric"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

type handler struct {
	db        *gorm.DB
	ledger    ledger.ILedger
	balances  balance.IStore
	authority authority.IAuthority
	logger    *logger.Logger
}

// New exposes the custody ledger for accounts. Deposits mirror funds the
// operator has received off-service and are owner only.
func New(db *gorm.DB, ledger ledger.ILedger, balances balance.IStore, authority authority.IAuthority, logger *logger.Logger) IHandler {
	return &handler{
		db:        db,
		ledger:    ledger,
		balances:  balances,
		authority: authority,
		logger:    logger,
	}
}

func (h *handler) fail(c *gin.Context, fn string, err error, req interface{}, message string) {
	status := view.StatusCode(err)
	fields := map[string]string{
		"error":   err.Error(),
		"account": c.Param("account"),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(fn, fields)
	} else {
		h.logger.Info(fn, fields)
	}
	c.JSON(status, view.CreateResponse[any](nil, err, req, message))
}

// account and asset keys match what the order engine writes: lowercase
// hex for addresses, symbols untouched.
func normalizeAccount(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", errors.Wrapf(model.ErrInvalidAddress, "account %q", s)
	}
	return strings.ToLower(s), nil
}

func normalizeAsset(s string) string {
	if common.IsHexAddress(s) {
		return strings.ToLower(s)
	}
	return s
}

// ListBalances godoc
// @Summary List every balance of an account
// @id listBalances
// @Tags Account
// @Produce json
// @Param account path string true "Account address"
// @Success 200 {array} model.Balance
// @Failure 400 {object} view.ErrorResponse
// @Router /accounts/{account}/balances [get]
func (h *handler) ListBalances(c *gin.Context) {
	account, err := normalizeAccount(c.Param("account"))
	if err != nil {
		h.fail(c, "[ListBalances][normalizeAccount]", err, nil, "invalid account")
		return
	}
	rows, err := h.balances.ListByAccount(h.db.WithContext(c.Request.Context()), account)
	if err != nil {
		h.fail(c, "[ListBalances][ListByAccount]", err, nil, "failed to list balances")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](rows, nil, nil, ""))
}

// GetBalance godoc
// @Summary Get an account balance
// @id getBalance
// @Tags Account
// @Produce json
// @Param account path string true "Account address"
// @Param asset path string true "Token address or native symbol"
// @Success 200 {object} BalanceResponse
// @Failure 400 {object} view.ErrorResponse
// @Router /accounts/{account}/balances/{asset} [get]
func (h *handler) GetBalance(c *gin.Context) {
	account, err := normalizeAccount(c.Param("account"))
	if err != nil {
		h.fail(c, "[GetBalance][normalizeAccount]", err, nil, "invalid account")
		return
	}
	asset := normalizeAsset(c.Param("asset"))

	bal, err := h.ledger.Balance(h.db.WithContext(c.Request.Context()), account, asset)
	if err != nil {
		h.fail(c, "[GetBalance][Balance]", err, nil, "failed to get balance")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](BalanceResponse{
		Account: account,
		Asset:   asset,
		Balance: bal.String(),
	}, nil, nil, ""))
}

// Deposit godoc
// @Summary Credit an account
// @Description Owner only
// @id deposit
// @Tags Account
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Registry owner"
// @Param account path string true "Account address"
// @Param request body MovementRequest true "Asset and amount"
// @Success 200 {object} BalanceResponse
// @Failure 400 {object} view.ErrorResponse
// @Failure 403 {object} view.ErrorResponse
// @Router /accounts/{account}/deposits [post]
func (h *handler) Deposit(c *gin.Context) {
	if !h.authority.IsOwner(c.GetHeader(view.CallerHeader)) {
		h.fail(c, "[Deposit][IsOwner]", model.ErrNotOwner, nil, "forbidden")
		return
	}
	h.move(c, "[Deposit]", h.ledger.Deposit)
}

// Withdraw godoc
// @Summary Debit an account
// @Description Only the account itself may withdraw
// @id withdraw
// @Tags Account
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Account address"
// @Param account path string true "Account address"
// @Param request body MovementRequest true "Asset and amount"
// @Success 200 {object} BalanceResponse
// @Failure 400 {object} view.ErrorResponse
// @Failure 403 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Router /accounts/{account}/withdrawals [post]
func (h *handler) Withdraw(c *gin.Context) {
	if !strings.EqualFold(c.GetHeader(view.CallerHeader), c.Param("account")) {
		h.fail(c, "[Withdraw][caller]", model.ErrNotAccountHolder, nil, "forbidden")
		return
	}
	h.move(c, "[Withdraw]", h.ledger.Withdraw)
}

func (h *handler) move(c *gin.Context, fn string, apply func(tx *gorm.DB, account, asset string, amount *big.Int) error) {
	account, err := normalizeAccount(c.Param("account"))
	if err != nil {
		h.fail(c, fn+"[normalizeAccount]", err, nil, "invalid account")
		return
	}

	var req MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fn+"[ShouldBindJSON]", view.InvalidRequest(err), req, "invalid request")
		return
	}
	if err := validator.New().Struct(req); err != nil {
		h.fail(c, fn+"[Validator]", view.InvalidRequest(err), req, "invalid request")
		return
	}
	amount, err := model.ParsePositiveAmount(req.Amount)
	if err != nil {
		h.fail(c, fn+"[ParsePositiveAmount]", err, req, "invalid amount")
		return
	}
	asset := normalizeAsset(req.Asset)

	var bal *big.Int
	err = store.DoInTx(h.db.WithContext(c.Request.Context()), func(tx *gorm.DB) error {
		if err := apply(tx, account, asset, amount); err != nil {
			return err
		}
		var err error
		bal, err = h.ledger.Balance(tx, account, asset)
		return err
	})
	if err != nil {
		h.fail(c, fn+"[DoInTx]", err, req, "failed to update balance")
		return
	}

	h.logger.Info(fn+" balance updated", map[string]string{
		"account": account,
		"asset":   asset,
		"amount":  amount.String(),
	})
	c.JSON(http.StatusOK, view.CreateResponse[any](BalanceResponse{
		Account: account,
		Asset:   asset,
		Balance: bal.String(),
	}, nil, nil, ""))
}
