package chain

import (
	"encoding/json"
	"math/big"
	"regexp"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/pkg/errors"
)

const (
	cosmosMinBodyLen = 39
	cosmosMaxBodyLen = 59

	cosmosDefaultGasLimit = 200_000
	// extra gas charged per started KiB of wasm msg
	cosmosGasPerKiB = 10_000
)

var cosmosDenomRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9/:._-]{2,127}$`)

// validateBech32 checks the checksum, the human readable prefix and the body
// length. The body is everything after the prefix, separator included.
func validateBech32(addr, prefix string) error {
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return errors.Wrap(err, "bech32 decode")
	}
	if hrp != prefix {
		return errors.Errorf("expected prefix %q, got %q", prefix, hrp)
	}
	body := len(addr) - len(hrp)
	if body < cosmosMinBodyLen || body > cosmosMaxBodyLen {
		return errors.Errorf("bech32 body length %d out of range %d..%d", body, cosmosMinBodyLen, cosmosMaxBodyLen)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return errors.Wrap(err, "bech32 payload")
	}
	if len(payload) != 20 && len(payload) != 32 {
		return errors.Errorf("bech32 payload must be 20 or 32 bytes, got %d", len(payload))
	}
	return nil
}

type cosmosParams struct {
	ContractAddress string          `json:"contract_address"`
	Denom           string          `json:"denom"`
	GasLimit        *uint64         `json:"gas_limit"`
	Msg             json.RawMessage `json:"msg"`
}

func decodeCosmosParams(raw []byte, prefix string) (*cosmosParams, error) {
	p := &cosmosParams{}
	if err := decodeParams(raw, p); err != nil {
		return nil, err
	}
	if len(p.Msg) > 0 && p.ContractAddress == "" {
		return nil, errors.New("cosmwasm msg requires contract_address")
	}
	if p.ContractAddress != "" {
		if err := validateBech32(p.ContractAddress, prefix); err != nil {
			return nil, errors.Wrap(err, "contract_address")
		}
	}
	if p.Denom != "" && !cosmosDenomRe.MatchString(p.Denom) {
		return nil, errors.Errorf("invalid denom %q", p.Denom)
	}
	if p.GasLimit == nil {
		g := uint64(cosmosDefaultGasLimit)
		p.GasLimit = &g
	}
	if *p.GasLimit == 0 {
		return nil, errors.New("gas_limit must be positive")
	}
	return p, nil
}

// cost = (gasLimit + msg KiB surcharge) * gasPrice.
func (p *cosmosParams) cost(gasPrice *big.Int) *big.Int {
	gas := new(big.Int).SetUint64(*p.GasLimit)
	if n := len(p.Msg); n > 0 {
		kib := int64((n + 1023) / 1024)
		gas.Add(gas, big.NewInt(kib*cosmosGasPerKiB))
	}
	return gas.Mul(gas, gasPrice)
}
