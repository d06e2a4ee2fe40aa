package model

import (
	"github.com/pkg/errors"
)

// ErrorKind classifies engine failures. None of them is retryable without
// new input from the caller.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindState         ErrorKind = "state"
	KindTiming        ErrorKind = "timing"
	KindNotFound      ErrorKind = "not_found"
	KindInternal      ErrorKind = "internal"
)

// Error is a sentinel carrying a machine-readable reason.
type Error struct {
	Kind   ErrorKind
	Reason string
	msg    string
}

func (e *Error) Error() string {
	return e.msg
}

func newError(kind ErrorKind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, msg: msg}
}

// validation
var (
	ErrInvalidRequest            = newError(KindValidation, "invalid_request", "invalid request")
	ErrInvalidOrderParams        = newError(KindValidation, "invalid_order_params", "invalid order params")
	ErrInvalidAmount             = newError(KindValidation, "invalid_amount", "invalid amount")
	ErrInvalidAddress            = newError(KindValidation, "invalid_address", "invalid address")
	ErrInvalidDestinationAddress = newError(KindValidation, "invalid_destination_address", "invalid destination address")
	ErrInvalidExecutionParams    = newError(KindValidation, "invalid_execution_params", "invalid execution params")
	ErrUnknownChain              = newError(KindValidation, "unknown_chain", "unknown destination chain")
	ErrChainInactive             = newError(KindValidation, "chain_inactive", "destination chain is inactive")
	ErrChainAlreadyActive        = newError(KindValidation, "chain_already_active", "chain already registered and active")
	ErrInvalidChainInfo          = newError(KindValidation, "invalid_chain_info", "invalid chain info")
	ErrDuplicateOrder            = newError(KindValidation, "duplicate_order", "order already exists")
	ErrExpiryInPast              = newError(KindValidation, "expiry_in_past", "order expiry time is in the past")
	ErrInvalidHashlock           = newError(KindValidation, "invalid_hashlock", "hashlock must be 32 bytes")
	ErrInvalidTimelocks          = newError(KindValidation, "invalid_timelocks", "timelock stages must be strictly increasing")
	ErrScriptNotSupported        = newError(KindValidation, "script_not_supported", "chain family does not use locking scripts")
	ErrInvalidScriptParams       = newError(KindValidation, "invalid_script_params", "invalid htlc script params")
)

// authorization
var (
	ErrUnauthorizedResolver  = newError(KindAuthorization, "unauthorized_resolver", "caller is not an authorized resolver")
	ErrUnauthorizedCompleter = newError(KindAuthorization, "unauthorized_completer", "only the resolver may complete before the public completion stage")
	ErrUnauthorizedRefund    = newError(KindAuthorization, "unauthorized_refund", "only the maker or resolver may refund before the public refund stage")
	ErrNotOwner              = newError(KindAuthorization, "not_owner", "caller is not the registry owner")
	ErrNotAccountHolder      = newError(KindAuthorization, "not_account_holder", "caller does not hold the account")
)

// state
var (
	ErrOrderNotFound             = newError(KindNotFound, "order_not_found", "order not found")
	ErrInvalidOrderStatus        = newError(KindState, "invalid_order_status", "order is not in the required status")
	ErrInsufficientSafetyDeposit = newError(KindState, "insufficient_safety_deposit", "safety deposit below the chain minimum")
	ErrHashlockMismatch          = newError(KindState, "hashlock_mismatch", "preimage does not match hashlock")
	ErrInsufficientBalance       = newError(KindState, "insufficient_balance", "insufficient balance")
	ErrEscrowAmountMismatch      = newError(KindState, "escrow_amount_mismatch", "escrowed amount does not cover source amount plus resolver fee")
	ErrEscrowAlreadyReleased     = newError(KindState, "escrow_already_released", "escrow already released")
	ErrRequestInProgress         = newError(KindState, "request_in_progress", "a request with this idempotency key is in progress")
)

// timing
var (
	ErrOrderExpired           = newError(KindTiming, "order_expired", "order expired and can no longer be matched")
	ErrOrderNotExpired        = newError(KindTiming, "order_not_expired", "order has not reached its expiry time")
	ErrMatchStageElapsed      = newError(KindTiming, "match_stage_elapsed", "resolver completion stage already elapsed")
	ErrCompletionNotOpen      = newError(KindTiming, "completion_not_open", "public completion stage not reached")
	ErrCompletionWindowClosed = newError(KindTiming, "completion_window_closed", "completion window closed")
	ErrRefundNotOpen          = newError(KindTiming, "refund_not_open", "refund stage not reached")
)

// KindOf returns the kind of the first *Error found in err's chain, or
// KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the machine-readable reason of err, or "internal_error".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal_error"
}
