package order_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/fusion-bridge/internal/controller"
	"github.com/dwarvesf/fusion-bridge/internal/handler/order"
	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
	"github.com/dwarvesf/fusion-bridge/internal/view"
)

const (
	maker     = "0x2222222222222222222222222222222222222222"
	resolver  = "0x3333333333333333333333333333333333333333"
	token     = "0xcccccccccccccccccccccccccccccccccccccccc"
	orderHash = "0x9f1c6d0b3f5e1d2c4a7b8e9f0a1b2c3d4e5f60718293a4b5c6d7e8f9a0b1c2d3"
)

type MockController struct {
	mock.Mock
}

func (m *MockController) ComputeOrderHash(params controller.CreateOrderParams) (string, error) {
	args := m.Called(params)
	return args.String(0), args.Error(1)
}

func (m *MockController) CreateOrder(ctx context.Context, params controller.CreateOrderParams) (*model.Order, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockController) MatchOrder(ctx context.Context, params controller.MatchParams) (*model.Order, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockController) CompleteOrder(ctx context.Context, params controller.CompleteParams) (*model.Order, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockController) RefundOrder(ctx context.Context, params controller.RefundParams) (*model.Order, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockController) ExpireOrder(ctx context.Context, hash string) (*model.Order, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockController) ExpireDueOrders(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockController) GetOrder(ctx context.Context, hash string) (*model.Order, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockController) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*model.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockController) GetEscrows(ctx context.Context, hash string) (*controller.EscrowState, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*controller.EscrowState), args.Error(1)
}

func (m *MockController) IsOrderMatchable(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockController) EstimateOrderCosts(ctx context.Context, hash string) (*controller.CostEstimate, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*controller.CostEstimate), args.Error(1)
}

func (m *MockController) GetOrderEvents(ctx context.Context, hash string) ([]*model.OrderEvent, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.OrderEvent), args.Error(1)
}

func (m *MockController) GetSecret(ctx context.Context, hash string) (string, error) {
	args := m.Called(ctx, hash)
	return args.String(0), args.Error(1)
}

func setupRouter(ctrl controller.IController) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := order.New(ctrl, logger.NewNop())

	r := gin.New()
	r.POST("/orders", h.CreateOrder)
	r.POST("/orders/hash", h.ComputeOrderHash)
	r.GET("/orders", h.ListOrders)
	r.GET("/orders/:order_hash", h.GetOrder)
	r.POST("/orders/:order_hash/match", h.MatchOrder)
	r.POST("/orders/:order_hash/complete", h.CompleteOrder)
	r.POST("/orders/:order_hash/refund", h.RefundOrder)
	r.POST("/orders/:order_hash/expire", h.ExpireOrder)
	r.GET("/orders/:order_hash/escrows", h.GetEscrows)
	r.GET("/orders/:order_hash/matchable", h.IsOrderMatchable)
	r.GET("/orders/:order_hash/costs", h.EstimateOrderCosts)
	r.GET("/orders/:order_hash/events", h.GetOrderEvents)
	r.GET("/orders/:order_hash/secret", h.GetSecret)
	return r
}

func do(r *gin.Engine, method, path, caller, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set(view.CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   *view.ErrorBody `json:"error"`
	Message string          `json:"message"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

const createBody = `{
	"source_token": "` + token + `",
	"source_amount": "200000000000000000",
	"destination_chain_id": 397,
	"destination_token": "wrap.testnet",
	"destination_amount": "1000",
	"destination_address": "alice.testnet",
	"resolver_fee": "20000000000000000",
	"expiry_time": "2026-03-02T12:00:00Z",
	"execution_params": {"contract_id": "htlc.testnet", "method": "lock"}
}`

func TestCreateOrder_Success(t *testing.T) {
	// Arrange
	ctrl := new(MockController)
	r := setupRouter(ctrl)

	expected := &model.Order{OrderHash: orderHash, Maker: maker, Status: model.OrderStatusOpen}
	ctrl.On("CreateOrder", mock.Anything, mock.MatchedBy(func(p controller.CreateOrderParams) bool {
		return p.Maker == maker &&
			p.SourceToken == token &&
			p.SourceAmount.Cmp(big.NewInt(200000000000000000)) == 0 &&
			p.ResolverFee.Cmp(big.NewInt(20000000000000000)) == 0 &&
			p.DestinationChainID == 397 &&
			p.ExpiryTime.Equal(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)) &&
			string(p.ExecutionParams) == `{"contract_id": "htlc.testnet", "method": "lock"}`
	})).Return(expected, nil)

	// Act
	w := do(r, http.MethodPost, "/orders", maker, createBody)

	// Assert
	assert.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	assert.Nil(t, env.Error)
	var got model.Order
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, orderHash, got.OrderHash)
	ctrl.AssertExpectations(t)
}

func TestCreateOrder_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{
			name:   "malformed json",
			body:   `{"source_token":`,
			reason: "invalid_request",
		},
		{
			name:   "missing destination address",
			body:   `{"source_token":"` + token + `","source_amount":"1","destination_chain_id":397,"destination_token":"t","destination_amount":"1","expiry_time":"2026-03-02T12:00:00Z"}`,
			reason: "invalid_request",
		},
		{
			name:   "source token not an address",
			body:   strings.Replace(createBody, token, "usdc", 1),
			reason: "invalid_request",
		},
		{
			name:   "fractional amount",
			body:   strings.Replace(createBody, `"200000000000000000"`, `"1.5"`, 1),
			reason: "invalid_amount",
		},
		{
			name:   "zero amount",
			body:   strings.Replace(createBody, `"200000000000000000"`, `"0"`, 1),
			reason: "invalid_amount",
		},
		{
			name:   "negative fee",
			body:   strings.Replace(createBody, `"20000000000000000"`, `"-1"`, 1),
			reason: "invalid_amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := new(MockController)
			r := setupRouter(ctrl)

			w := do(r, http.MethodPost, "/orders", maker, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			env := decode(t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, "validation", env.Error.Kind)
			assert.Equal(t, tt.reason, env.Error.Reason)
			ctrl.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateOrder_EngineErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"duplicate", errors.Wrap(model.ErrDuplicateOrder, "order"), http.StatusBadRequest},
		{"insufficient balance", model.ErrInsufficientBalance, http.StatusConflict},
		{"unknown chain", model.ErrUnknownChain, http.StatusBadRequest},
		{"database", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := new(MockController)
			r := setupRouter(ctrl)
			ctrl.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := do(r, http.MethodPost, "/orders", maker, createBody)

			assert.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, model.ReasonOf(tt.err), env.Error.Reason)
			assert.Equal(t, "failed to create order", env.Message)
		})
	}
}

func TestComputeOrderHash(t *testing.T) {
	ctrl := new(MockController)
	r := setupRouter(ctrl)
	ctrl.On("ComputeOrderHash", mock.MatchedBy(func(p controller.CreateOrderParams) bool {
		return p.Maker == maker
	})).Return(orderHash, nil)

	body := strings.Replace(createBody, "{", `{"maker": "`+maker+`",`, 1)
	w := do(r, http.MethodPost, "/orders/hash", "", body)

	assert.Equal(t, http.StatusOK, w.Code)
	var got order.OrderHashResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, orderHash, got.OrderHash)
	ctrl.AssertExpectations(t)
}

func TestMatchOrder(t *testing.T) {
	t.Run("passes resolver header and explicit timelocks", func(t *testing.T) {
		ctrl := new(MockController)
		r := setupRouter(ctrl)

		ctrl.On("MatchOrder", mock.Anything, mock.MatchedBy(func(p controller.MatchParams) bool {
			return p.OrderHash == orderHash &&
				p.Resolver == resolver &&
				p.Hashlock == "0xabc" &&
				p.SafetyDeposit.Cmp(big.NewInt(1e16)) == 0 &&
				p.Timelocks != nil &&
				p.Timelocks.PublicRefund.Equal(time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC))
		})).Return(&model.Order{OrderHash: orderHash, Status: model.OrderStatusMatched}, nil)

		body := `{"hashlock":"0xabc","safety_deposit":"10000000000000000","timelocks":{
			"resolver_completion":"2026-03-01T13:00:00Z",
			"public_completion":"2026-03-01T14:00:00Z",
			"resolver_refund":"2026-03-01T15:00:00Z",
			"public_refund":"2026-03-01T16:00:00Z"}}`
		w := do(r, http.MethodPost, "/orders/"+orderHash+"/match", resolver, body)

		assert.Equal(t, http.StatusOK, w.Code)
		ctrl.AssertExpectations(t)
	})

	t.Run("unauthorized resolver is forbidden", func(t *testing.T) {
		ctrl := new(MockController)
		r := setupRouter(ctrl)
		ctrl.On("MatchOrder", mock.Anything, mock.Anything).Return(nil, model.ErrUnauthorizedResolver)

		w := do(r, http.MethodPost, "/orders/"+orderHash+"/match", maker, `{"hashlock":"0xabc","safety_deposit":"1"}`)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "unauthorized_resolver", decode(t, w).Error.Reason)
	})

	t.Run("expired order is unprocessable", func(t *testing.T) {
		ctrl := new(MockController)
		r := setupRouter(ctrl)
		ctrl.On("MatchOrder", mock.Anything, mock.Anything).Return(nil, model.ErrOrderExpired)

		w := do(r, http.MethodPost, "/orders/"+orderHash+"/match", resolver, `{"hashlock":"0xabc","safety_deposit":"1"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("bad deposit never reaches the engine", func(t *testing.T) {
		ctrl := new(MockController)
		r := setupRouter(ctrl)

		w := do(r, http.MethodPost, "/orders/"+orderHash+"/match", resolver, `{"hashlock":"0xabc","safety_deposit":"lots"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		ctrl.AssertNotCalled(t, "MatchOrder", mock.Anything, mock.Anything)
	})
}

func TestCompleteOrder(t *testing.T) {
	t.Run("decodes the hex preimage", func(t *testing.T) {
		ctrl := new(MockController)
		r := setupRouter(ctrl)
		ctrl.On("CompleteOrder", mock.Anything, controller.CompleteParams{
			OrderHash: orderHash,
			Caller:    resolver,
			Preimage:  []byte("secret"),
		}).Return(&model.Order{OrderHash: orderHash, Status: model.OrderStatusCompleted}, nil)

		w := do(r, http.MethodPost, "/orders/"+orderHash+"/complete", resolver, `{"preimage":"0x736563726574"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		ctrl.AssertExpectations(t)
	})

	t.Run("rejects non hex preimage", func(t *testing.T) {
		ctrl := new(MockController)
		r := setupRouter(ctrl)

		w := do(r, http.MethodPost, "/orders/"+orderHash+"/complete", resolver, `{"preimage":"secret"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "preimage must be hex", decode(t, w).Message)
		ctrl.AssertNotCalled(t, "CompleteOrder", mock.Anything, mock.Anything)
	})

	t.Run("hashlock mismatch is a conflict", func(t *testing.T) {
		ctrl := new(MockController)
		r := setupRouter(ctrl)
		ctrl.On("CompleteOrder", mock.Anything, mock.Anything).Return(nil, model.ErrHashlockMismatch)

		w := do(r, http.MethodPost, "/orders/"+orderHash+"/complete", resolver, `{"preimage":"00"}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "hashlock_mismatch", decode(t, w).Error.Reason)
	})
}

func TestRefundAndExpire(t *testing.T) {
	ctrl := new(MockController)
	r := setupRouter(ctrl)
	ctrl.On("RefundOrder", mock.Anything, controller.RefundParams{OrderHash: orderHash, Caller: maker}).
		Return(nil, model.ErrRefundNotOpen)
	ctrl.On("ExpireOrder", mock.Anything, orderHash).
		Return(&model.Order{OrderHash: orderHash, Status: model.OrderStatusExpired}, nil)

	w := do(r, http.MethodPost, "/orders/"+orderHash+"/refund", maker, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "refund_not_open", decode(t, w).Error.Reason)

	w = do(r, http.MethodPost, "/orders/"+orderHash+"/expire", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var got model.Order
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, model.OrderStatusExpired, got.Status)
}

func TestListOrders(t *testing.T) {
	t.Run("binds the filter", func(t *testing.T) {
		ctrl := new(MockController)
		r := setupRouter(ctrl)
		ctrl.On("ListOrders", mock.Anything, model.OrderFilter{
			Status:             model.OrderStatusMatched,
			Resolver:           resolver,
			DestinationChainID: 397,
			Offset:             10,
			Limit:              5,
		}).Return([]*model.Order{{OrderHash: orderHash}}, int64(11), nil)

		w := do(r, http.MethodGet, "/orders?status=matched&resolver="+resolver+"&destination_chain_id=397&offset=10&limit=5", "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var page view.PaginatedResponse[*model.Order]
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
		assert.Equal(t, int64(11), page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, orderHash, page.Items[0].OrderHash)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		ctrl := new(MockController)
		r := setupRouter(ctrl)

		w := do(r, http.MethodGet, "/orders?status=pending", "", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		ctrl.AssertNotCalled(t, "ListOrders", mock.Anything, mock.Anything)
	})
}

func TestReads(t *testing.T) {
	ctrl := new(MockController)
	r := setupRouter(ctrl)

	ctrl.On("GetOrder", mock.Anything, "0xmissing").Return(nil, model.ErrOrderNotFound)
	ctrl.On("GetEscrows", mock.Anything, orderHash).Return(&controller.EscrowState{OrderHash: orderHash, SourceCustody: "220"}, nil)
	ctrl.On("IsOrderMatchable", mock.Anything, orderHash).Return(true, nil)
	ctrl.On("EstimateOrderCosts", mock.Anything, orderHash).Return(&controller.CostEstimate{
		OrderHash:        orderHash,
		ExecutionCost:    big.NewInt(7),
		MinSafetyDeposit: big.NewInt(10),
		ResolverFee:      big.NewInt(20),
		EscrowTotal:      big.NewInt(220),
	}, nil)
	ctrl.On("GetOrderEvents", mock.Anything, orderHash).Return([]*model.OrderEvent{{ID: "e1", Type: model.OrderEventCreated}}, nil)
	ctrl.On("GetSecret", mock.Anything, orderHash).Return("736563726574", nil)

	w := do(r, http.MethodGet, "/orders/0xmissing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/orders/"+orderHash+"/escrows", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source_custody":"220"`)

	w = do(r, http.MethodGet, "/orders/"+orderHash+"/matchable", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"matchable":true`)

	w = do(r, http.MethodGet, "/orders/"+orderHash+"/costs", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"min_safety_deposit":10`)

	w = do(r, http.MethodGet, "/orders/"+orderHash+"/events", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"order_created"`)

	w = do(r, http.MethodGet, "/orders/"+orderHash+"/secret", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var secret order.SecretResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &secret))
	assert.Equal(t, "736563726574", secret.Preimage)

	ctrl.AssertExpectations(t)
}
