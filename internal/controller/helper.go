package controller

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/store/order"
)

var orderHashArgs = mustArguments(
	"address", // maker
	"address", // sourceToken
	"uint256", // sourceAmount
	"uint256", // destinationChainId
	"bytes",   // destinationToken
	"bytes",   // destinationAmount
	"bytes",   // destinationAddress
	"uint256", // resolverFee
	"uint256", // expiryTime
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// ComputeOrderHash is keccak256 over the ABI encoding of the order fields,
// so the id can be reproduced off-chain with any ABI library.
func ComputeOrderHash(p CreateOrderParams) (string, error) {
	if !common.IsHexAddress(p.Maker) || !common.IsHexAddress(p.SourceToken) {
		return "", errors.Wrap(model.ErrInvalidAddress, "maker and source token must be EVM addresses")
	}
	if p.SourceAmount == nil || p.SourceAmount.Sign() < 0 {
		return "", errors.Wrap(model.ErrInvalidAmount, "source amount")
	}
	fee := p.ResolverFee
	if fee == nil {
		fee = new(big.Int)
	}
	if fee.Sign() < 0 {
		return "", errors.Wrap(model.ErrInvalidAmount, "resolver fee")
	}
	if p.ExpiryTime.Unix() < 0 {
		return "", errors.Wrap(model.ErrInvalidOrderParams, "expiry time before epoch")
	}

	packed, err := orderHashArgs.Pack(
		common.HexToAddress(p.Maker),
		common.HexToAddress(p.SourceToken),
		p.SourceAmount,
		new(big.Int).SetUint64(p.DestinationChainID),
		[]byte(p.DestinationToken),
		[]byte(p.DestinationAmount),
		[]byte(p.DestinationAddress),
		fee,
		big.NewInt(p.ExpiryTime.Unix()),
	)
	if err != nil {
		return "", errors.Wrap(model.ErrInvalidOrderParams, err.Error())
	}
	return crypto.Keccak256Hash(packed).Hex(), nil
}

func normalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", errors.Wrapf(model.ErrInvalidAddress, "%q is not an EVM address", addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// normalizeOrderHash accepts the hash with or without 0x and in any case.
func normalizeOrderHash(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	return h
}

// parseHashlock returns the 32-byte digest as 64 lowercase hex chars.
func parseHashlock(s string) (string, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != sha256.Size {
		return "", model.ErrInvalidHashlock
	}
	return s, nil
}

// HashPreimage is the hashlock a preimage satisfies.
func HashPreimage(preimage []byte) string {
	sum := sha256.Sum256(preimage)
	return hex.EncodeToString(sum[:])
}

// transition maps the store's lost-race error onto the state taxonomy.
func (c *Controller) transition(tx *gorm.DB, o *model.Order, to model.OrderStatus, updates map[string]interface{}) error {
	err := c.store.Order.TransitionStatus(tx, o.OrderHash, o.Status, to, updates)
	if errors.Is(err, order.ErrStatusConflict) {
		return errors.Wrapf(model.ErrInvalidOrderStatus, "order %s left %s concurrently", o.OrderHash, o.Status)
	}
	if err != nil {
		return err
	}
	c.metrics.RecordTransition(o.Status, to)
	o.Status = to
	return nil
}

func requireStatus(o *model.Order, want model.OrderStatus) error {
	if o.Status != want {
		return errors.Wrapf(model.ErrInvalidOrderStatus, "order is %s, want %s", o.Status, want)
	}
	return nil
}

func timelockColumns(t model.Timelocks) map[string]interface{} {
	return map[string]interface{}{
		"timelock_resolver_completion": t.ResolverCompletion,
		"timelock_public_completion":   t.PublicCompletion,
		"timelock_resolver_refund":     t.ResolverRefund,
		"timelock_public_refund":       t.PublicRefund,
	}
}

func timelockFields(t model.Timelocks) map[string]string {
	return map[string]string{
		"timelock_resolver_completion": formatTime(t.ResolverCompletion),
		"timelock_public_completion":   formatTime(t.PublicCompletion),
		"timelock_resolver_refund":     formatTime(t.ResolverRefund),
		"timelock_public_refund":       formatTime(t.PublicRefund),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatChainID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// destinationAmountOrSource is the amount fed to the adapter's param checks:
// the destination amount when it is a base-unit integer, the source amount
// otherwise.
func destinationAmountOrSource(destinationAmount string, sourceAmount *big.Int) *big.Int {
	if amt, err := model.ParsePositiveAmount(destinationAmount); err == nil {
		return amt
	}
	return sourceAmount
}
