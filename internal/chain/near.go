package chain

import (
	"encoding/json"
	"math/big"
	"regexp"

	"github.com/pkg/errors"
)

const (
	nearMinAccountLen = 2
	nearMaxAccountLen = 64

	nearTeraGas        = 1_000_000_000_000
	nearDefaultTeraGas = 30
	nearMaxTeraGas     = 300
)

// yoctoNEAR per byte of contract storage (1e19).
var nearStorageByteCost = new(big.Int).Exp(big.NewInt(10), big.NewInt(19), nil)

// Parts of lowercase alphanumerics joined by a single '.', '-' or '_'.
var nearAccountRe = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

func validateNEARAccount(id string) error {
	if len(id) < nearMinAccountLen || len(id) > nearMaxAccountLen {
		return errors.Errorf("near account id must be %d..%d chars, got %d", nearMinAccountLen, nearMaxAccountLen, len(id))
	}
	if !nearAccountRe.MatchString(id) {
		return errors.Errorf("near account id %q has invalid characters or separators", id)
	}
	return nil
}

type nearParams struct {
	ContractID      string          `json:"contract_id"`
	Method          string          `json:"method"`
	Args            json.RawMessage `json:"args"`
	Gas             *uint64         `json:"gas"`
	AttachedDeposit string          `json:"attached_deposit"`

	attached *big.Int
}

// decodeNEARParams accepts empty params as a plain transfer with the
// default gas allowance. Gas is in TGas.
func decodeNEARParams(raw []byte) (*nearParams, error) {
	p := &nearParams{}
	if err := decodeParams(raw, p); err != nil {
		return nil, err
	}
	if p.Method != "" && p.ContractID == "" {
		return nil, errors.New("near method call requires contract_id")
	}
	if p.ContractID != "" {
		if err := validateNEARAccount(p.ContractID); err != nil {
			return nil, errors.Wrap(err, "contract_id")
		}
	}
	if p.Gas == nil {
		g := uint64(nearDefaultTeraGas)
		p.Gas = &g
	}
	if *p.Gas == 0 || *p.Gas > nearMaxTeraGas {
		return nil, errors.Errorf("near gas must be 1..%d TGas, got %d", nearMaxTeraGas, *p.Gas)
	}
	p.attached = new(big.Int)
	if p.AttachedDeposit != "" {
		v, ok := new(big.Int).SetString(p.AttachedDeposit, 10)
		if !ok || v.Sign() < 0 {
			return nil, errors.Errorf("invalid attached_deposit %q", p.AttachedDeposit)
		}
		p.attached = v
	}
	return p, nil
}

// cost = gas * gasPrice + len(args) * storage cost + attached deposit, in yoctoNEAR.
func (p *nearParams) cost(gasPrice *big.Int) *big.Int {
	gas := new(big.Int).Mul(new(big.Int).SetUint64(*p.Gas), big.NewInt(nearTeraGas))
	cost := gas.Mul(gas, gasPrice)

	storage := new(big.Int).Mul(big.NewInt(int64(len(p.Args))), nearStorageByteCost)
	cost.Add(cost, storage)
	return cost.Add(cost, p.attached)
}

// decodeParams treats nil, empty and "null" input as the zero params.
func decodeParams(raw []byte, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(err, "malformed execution params")
	}
	return nil
}
