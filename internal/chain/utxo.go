package chain

import (
	"encoding/hex"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

const (
	p2wpkhInputSize  = 68 // SegWit P2WPKH input size
	p2wpkhOutputSize = 31 // SegWit P2WPKH output size
	txOverhead       = 10 // Transaction overhead

	// non-witness part of a script-hash input: outpoint, empty sig script, sequence
	p2wshInputBaseSize = 41
	// witness stack of the claim path: signature, pubkey, preimage, branch selector
	htlcClaimWitnessSize = 73 + 33 + 32 + 1 + 4

	defaultDustThreshold = 546
	defaultFeeRate       = 10
	defaultHTLCTimelock  = 144
	maxFeeRate           = 1000
)

var (
	// LitecoinMainNetParams, DogecoinMainNetParams and BitcoinCashMainNetParams
	// carry only what address decoding and script addresses need.
	LitecoinMainNetParams    = altNet("litecoin-mainnet", 0xdbb6c0fb, 0x30, 0x32, "ltc")
	DogecoinMainNetParams    = altNet("dogecoin-mainnet", 0xc0c0c0c0, 0x1e, 0x16, "")
	BitcoinCashMainNetParams = altNet("bitcoincash-mainnet", 0xe8f3e1e3, 0x00, 0x05, "")

	registerOnce sync.Once
	registerErr  error
)

func altNet(name string, net wire.BitcoinNet, pkh, sh byte, hrp string) *chaincfg.Params {
	p := chaincfg.MainNetParams
	p.Name = name
	p.Net = net
	p.PubKeyHashAddrID = pkh
	p.ScriptHashAddrID = sh
	p.Bech32HRPSegwit = hrp
	return &p
}

// registerNetworks makes the alt networks' segwit prefixes known to
// btcutil.DecodeAddress.
func registerNetworks() error {
	registerOnce.Do(func() {
		for _, p := range []*chaincfg.Params{LitecoinMainNetParams, DogecoinMainNetParams, BitcoinCashMainNetParams} {
			if err := chaincfg.Register(p); err != nil && !errors.Is(err, chaincfg.ErrDuplicateNet) {
				registerErr = errors.Wrapf(err, "register %s", p.Name)
				return
			}
		}
	})
	return registerErr
}

func supportsSegwit(net *chaincfg.Params) bool {
	return net.Bech32HRPSegwit != ""
}

func validateUTXOAddress(addr string, net *chaincfg.Params) error {
	decoded, err := btcutil.DecodeAddress(addr, net)
	if err != nil {
		return errors.Wrap(err, "decode address")
	}
	switch decoded.(type) {
	case *btcutil.AddressPubKeyHash, *btcutil.AddressScriptHash:
	case *btcutil.AddressWitnessPubKeyHash, *btcutil.AddressWitnessScriptHash, *btcutil.AddressTaproot:
		if !supportsSegwit(net) {
			return errors.Errorf("%s does not support segwit addresses", net.Name)
		}
	default:
		return errors.Errorf("unsupported address type %T", decoded)
	}
	if !decoded.IsForNet(net) {
		return errors.Errorf("address is not for %s", net.Name)
	}
	return nil
}

type utxoParams struct {
	FeeRateSatVB        *int64 `json:"fee_rate_sat_vb"`
	Timelock            *int64 `json:"timelock"`
	UseRelativeTimelock bool   `json:"use_relative_timelock"`
	DustThreshold       *int64 `json:"dust_threshold"`
	RecipientPubKey     string `json:"recipient_pubkey"`
	RefundPubKey        string `json:"refund_pubkey"`
}

func decodeUTXOParams(raw []byte, amount *big.Int) (*utxoParams, error) {
	p := &utxoParams{}
	if err := decodeParams(raw, p); err != nil {
		return nil, err
	}
	p.FeeRateSatVB = orDefault(p.FeeRateSatVB, defaultFeeRate)
	p.Timelock = orDefault(p.Timelock, defaultHTLCTimelock)
	p.DustThreshold = orDefault(p.DustThreshold, defaultDustThreshold)

	if *p.FeeRateSatVB < 1 || *p.FeeRateSatVB > maxFeeRate {
		return nil, errors.Errorf("fee_rate_sat_vb must be 1..%d, got %d", maxFeeRate, *p.FeeRateSatVB)
	}
	if err := validateScriptTimelock(*p.Timelock, p.UseRelativeTimelock); err != nil {
		return nil, err
	}
	if *p.DustThreshold < 0 {
		return nil, errors.New("dust_threshold must be non-negative")
	}
	if amount.Cmp(big.NewInt(*p.DustThreshold)) <= 0 {
		return nil, errors.Errorf("amount %s does not exceed dust threshold %d", amount, *p.DustThreshold)
	}
	for field, key := range map[string]string{"recipient_pubkey": p.RecipientPubKey, "refund_pubkey": p.RefundPubKey} {
		if key == "" {
			continue
		}
		if _, err := PubKeyHash(key); err != nil {
			return nil, errors.Wrap(err, field)
		}
	}
	return p, nil
}

// cost is fee rate times the vsize of funding the HTLC output plus claiming
// it, in satoshis.
func (p *utxoParams) cost() *big.Int {
	// timelock was validated on decode
	script, _ := buildHTLCScript(make([]byte, 32), *p.Timelock, make([]byte, 20), make([]byte, 20), p.UseRelativeTimelock)
	// P2WSH output: 0 <32-byte script hash>
	htlcOut := wire.NewTxOut(0, make([]byte, 34)).SerializeSize()

	funding := txOverhead + p2wpkhInputSize + htlcOut + p2wpkhOutputSize
	witness := htlcClaimWitnessSize + len(script)
	claim := txOverhead + p2wshInputBaseSize + (witness+3)/4 + p2wpkhOutputSize

	return new(big.Int).Mul(big.NewInt(int64(funding+claim)), big.NewInt(*p.FeeRateSatVB))
}

func orDefault(v *int64, def int64) *int64 {
	if v != nil {
		return v
	}
	return &def
}

// PubKeyHash parses a hex secp256k1 public key and returns its hash160.
func PubKeyHash(pubKeyHex string) ([]byte, error) {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "pubkey hex")
	}
	pubKey, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse pubkey")
	}
	return btcutil.Hash160(pubKey.SerializeCompressed()), nil
}

// NetworkParams resolves a UTXO network by its chaincfg name.
func NetworkParams(name string) (*chaincfg.Params, error) {
	for _, p := range []*chaincfg.Params{
		&chaincfg.MainNetParams,
		&chaincfg.TestNet3Params,
		&chaincfg.RegressionNetParams,
		&chaincfg.SigNetParams,
		LitecoinMainNetParams,
		DogecoinMainNetParams,
		BitcoinCashMainNetParams,
	} {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, errors.Wrapf(model.ErrInvalidChainInfo, "unknown utxo network %q", name)
}
