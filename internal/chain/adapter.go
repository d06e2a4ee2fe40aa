package chain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

// Family is the closed set of destination chain families.
type Family string

const (
	FamilyNEAR   Family = "near"
	FamilyCosmos Family = "cosmos"
	FamilyUTXO   Family = "utxo"
)

const (
	FeatureHTLC          = "htlc"
	FeaturePartialFills  = "partial_fills"
	FeatureContractCalls = "contract_calls"
	FeatureCosmWasm      = "cosmwasm"
	FeatureIBC           = "ibc"
	FeatureTimelockCLTV  = "timelock_cltv"
	FeatureTimelockCSV   = "timelock_csv"
	FeatureScriptHash    = "script_hash"
)

// nativeDecimals is the base-unit exponent of each family's fee asset:
// yoctoNEAR, micro-denom and satoshi.
var nativeDecimals = map[Family]uint8{
	FamilyNEAR:   24,
	FamilyCosmos: 6,
	FamilyUTXO:   8,
}

var features = map[Family]map[string]bool{
	FamilyNEAR:   {FeatureHTLC: true, FeaturePartialFills: true, FeatureContractCalls: true},
	FamilyCosmos: {FeatureHTLC: true, FeatureCosmWasm: true, FeatureIBC: true},
	FamilyUTXO:   {FeatureHTLC: true, FeatureTimelockCLTV: true, FeatureTimelockCSV: true, FeatureScriptHash: true},
}

const maxBps = 10000

// Info is the static metadata of a destination chain. The financial fields
// are fixed once the adapter is built.
type Info struct {
	ChainID            uint64        `json:"chain_id"`
	Family             Family        `json:"family"`
	Name               string        `json:"name"`
	Symbol             string        `json:"symbol"`
	Network            string        `json:"network"`
	SafetyDepositBps   uint16        `json:"safety_deposit_bps"`
	SafetyDepositFloor *big.Int      `json:"safety_deposit_floor"`
	DefaultTimelock    time.Duration `json:"default_timelock"`
	GasPrice           *big.Int      `json:"gas_price,omitempty"`
	Decimals           uint8         `json:"decimals"`
	Active             bool          `json:"active"`
}

func (i Info) validate() error {
	if i.ChainID == 0 {
		return errors.Wrap(model.ErrInvalidChainInfo, "chain id is zero")
	}
	if i.Name == "" || i.Symbol == "" {
		return errors.Wrap(model.ErrInvalidChainInfo, "name and symbol are required")
	}
	if i.SafetyDepositBps == 0 || i.SafetyDepositBps > maxBps {
		return errors.Wrapf(model.ErrInvalidChainInfo, "safety deposit bps %d out of range 1..%d", i.SafetyDepositBps, maxBps)
	}
	if i.SafetyDepositFloor == nil || i.SafetyDepositFloor.Sign() < 0 {
		return errors.Wrap(model.ErrInvalidChainInfo, "safety deposit floor must be non-negative")
	}
	if i.DefaultTimelock <= 0 {
		return errors.Wrap(model.ErrInvalidChainInfo, "default timelock must be positive")
	}
	if i.GasPrice != nil && i.GasPrice.Sign() < 0 {
		return errors.Wrap(model.ErrInvalidChainInfo, "gas price must be non-negative")
	}
	return nil
}

// clone deep-copies the big.Int fields so callers cannot mutate captured
// parameters.
func (i Info) clone() Info {
	if i.SafetyDepositFloor != nil {
		i.SafetyDepositFloor = new(big.Int).Set(i.SafetyDepositFloor)
	}
	if i.GasPrice != nil {
		i.GasPrice = new(big.Int).Set(i.GasPrice)
	}
	return i
}

// ValidationResult never carries an error past the adapter boundary.
type ValidationResult struct {
	IsValid       bool     `json:"is_valid"`
	EstimatedCost *big.Int `json:"estimated_cost"`
	ErrorMessage  string   `json:"error_message,omitempty"`
}

func invalid(err error) ValidationResult {
	return ValidationResult{EstimatedCost: new(big.Int), ErrorMessage: err.Error()}
}

// Adapter is a destination chain. Every operation dispatches on the family;
// the set of families is closed.
type Adapter struct {
	info Info

	// cosmos
	prefix string
	// utxo
	net *chaincfg.Params
}

// NewNEAR builds a NEAR adapter.
func NewNEAR(info Info) (Adapter, error) {
	info.Family = FamilyNEAR
	if info.Decimals == 0 {
		info.Decimals = nativeDecimals[FamilyNEAR]
	}
	if info.Network == "" {
		info.Network = "near"
	}
	if err := info.validate(); err != nil {
		return Adapter{}, err
	}
	return Adapter{info: info.clone()}, nil
}

// NewCosmos builds a Cosmos SDK adapter whose addresses use the given bech32
// human readable prefix.
func NewCosmos(info Info, prefix string) (Adapter, error) {
	info.Family = FamilyCosmos
	if info.Decimals == 0 {
		info.Decimals = nativeDecimals[FamilyCosmos]
	}
	info.Network = prefix
	if prefix == "" {
		return Adapter{}, errors.Wrap(model.ErrInvalidChainInfo, "bech32 prefix is required")
	}
	if err := info.validate(); err != nil {
		return Adapter{}, err
	}
	return Adapter{info: info.clone(), prefix: prefix}, nil
}

// NewUTXO builds a Bitcoin family adapter for the given network.
func NewUTXO(info Info, net *chaincfg.Params) (Adapter, error) {
	info.Family = FamilyUTXO
	if info.Decimals == 0 {
		info.Decimals = nativeDecimals[FamilyUTXO]
	}
	if net == nil {
		return Adapter{}, errors.Wrap(model.ErrInvalidChainInfo, "network params are required")
	}
	if err := registerNetworks(); err != nil {
		return Adapter{}, err
	}
	info.Network = net.Name
	if err := info.validate(); err != nil {
		return Adapter{}, err
	}
	return Adapter{info: info.clone(), net: net}, nil
}

// WithMetadata returns a copy with new display fields. Financial
// parameters are left untouched.
func (a Adapter) WithMetadata(name, symbol string) (Adapter, error) {
	if name == "" || symbol == "" {
		return Adapter{}, errors.Wrap(model.ErrInvalidChainInfo, "name and symbol are required")
	}
	a.info = a.info.clone()
	a.info.Name = name
	a.info.Symbol = symbol
	return a, nil
}

func (a Adapter) ChainID() uint64 {
	return a.info.ChainID
}

func (a Adapter) Family() Family {
	return a.info.Family
}

// Info returns a copy of the adapter metadata.
func (a Adapter) Info() Info {
	return a.info.clone()
}

// ValidateDestinationAddress checks the family-specific syntax of addr.
func (a Adapter) ValidateDestinationAddress(addr []byte) error {
	var err error
	switch a.info.Family {
	case FamilyNEAR:
		err = validateNEARAccount(string(addr))
	case FamilyCosmos:
		err = validateBech32(string(addr), a.prefix)
	case FamilyUTXO:
		err = validateUTXOAddress(string(addr), a.net)
	default:
		return a.unknownFamily()
	}
	if err != nil {
		return errors.Wrap(model.ErrInvalidDestinationAddress, err.Error())
	}
	return nil
}

func (a Adapter) IsValidDestinationAddress(addr []byte) bool {
	return a.ValidateDestinationAddress(addr) == nil
}

// ValidateOrderParams decodes the family execution params and checks them
// against amount. Failures are reported in the result, never returned.
func (a Adapter) ValidateOrderParams(params []byte, amount *big.Int) ValidationResult {
	if amount == nil || amount.Sign() <= 0 {
		return invalid(errors.New("amount must be positive"))
	}
	cost, err := a.estimate(params, amount)
	if err != nil {
		return invalid(err)
	}
	return ValidationResult{IsValid: true, EstimatedCost: cost}
}

// EstimateExecutionCost is the family's gas or fee estimate for executing
// the destination side. It is for display only.
func (a Adapter) EstimateExecutionCost(params []byte, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, errors.Wrap(model.ErrInvalidAmount, "amount must be non-negative")
	}
	cost, err := a.estimate(params, amount)
	if err != nil {
		return nil, errors.Wrap(model.ErrInvalidExecutionParams, err.Error())
	}
	return cost, nil
}

func (a Adapter) estimate(params []byte, amount *big.Int) (*big.Int, error) {
	switch a.info.Family {
	case FamilyNEAR:
		p, err := decodeNEARParams(params)
		if err != nil {
			return nil, err
		}
		return p.cost(a.gasPrice()), nil
	case FamilyCosmos:
		p, err := decodeCosmosParams(params, a.prefix)
		if err != nil {
			return nil, err
		}
		return p.cost(a.gasPrice()), nil
	case FamilyUTXO:
		p, err := decodeUTXOParams(params, amount)
		if err != nil {
			return nil, err
		}
		return p.cost(), nil
	}
	return nil, a.unknownFamily()
}

func (a Adapter) CalculateMinSafetyDeposit(amount *big.Int) *big.Int {
	return MinSafetyDeposit(amount, a.info.SafetyDepositBps, a.info.SafetyDepositFloor)
}

// MinSafetyDeposit is max(amount * bps / 10000, floor), exact. Orders
// matched earlier recompute it from their captured bps and floor.
func MinSafetyDeposit(amount *big.Int, bps uint16, floor *big.Int) *big.Int {
	if floor == nil {
		floor = new(big.Int)
	}
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int).Set(floor)
	}
	deposit := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	deposit.Quo(deposit, big.NewInt(maxBps))
	if deposit.Cmp(floor) < 0 {
		return new(big.Int).Set(floor)
	}
	return deposit
}

func (a Adapter) SupportsFeature(name string) bool {
	return features[a.info.Family][name]
}

// GenerateHTLCScript is only available on script based chains.
func (a Adapter) GenerateHTLCScript(hashlock []byte, timelock int64, recipientHash, refundHash []byte, useRelativeTimelock bool) ([]byte, error) {
	if a.info.Family != FamilyUTXO {
		return nil, model.ErrScriptNotSupported
	}
	return buildHTLCScript(hashlock, timelock, recipientHash, refundHash, useRelativeTimelock)
}

// HTLCAddress is the pay-to-script address locking funds under script on
// the adapter network.
func (a Adapter) HTLCAddress(script []byte) (string, error) {
	if a.info.Family != FamilyUTXO {
		return "", model.ErrScriptNotSupported
	}
	return scriptAddress(script, a.net)
}

func (a Adapter) gasPrice() *big.Int {
	if a.info.GasPrice == nil {
		return new(big.Int)
	}
	return a.info.GasPrice
}

func (a Adapter) unknownFamily() error {
	return errors.Wrap(model.ErrInvalidChainInfo, fmt.Sprintf("unknown chain family %q", a.info.Family))
}
