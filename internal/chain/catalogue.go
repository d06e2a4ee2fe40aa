package chain

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
)

const (
	NEARTestnetChainID     uint64 = 397
	NEARMainnetChainID     uint64 = 398
	NeutronChainID         uint64 = 7001
	JunoChainID            uint64 = 7002
	CosmosHubChainID       uint64 = 7003
	BitcoinMainnetChainID  uint64 = 40001
	BitcoinTestnetChainID  uint64 = 40002
	DogecoinMainnetChainID uint64 = 40003
	LitecoinMainnetChainID uint64 = 40004
	BitcoinCashChainID     uint64 = 40005
)

// Catalogue builds the built-in destination chains from config.
func Catalogue(cfg config.ChainsConfig) ([]Adapter, error) {
	near, err := familyInfo(cfg.NEAR)
	if err != nil {
		return nil, errors.Wrap(err, "near config")
	}
	cosmos, err := familyInfo(cfg.Cosmos)
	if err != nil {
		return nil, errors.Wrap(err, "cosmos config")
	}
	utxo, err := familyInfo(cfg.UTXO)
	if err != nil {
		return nil, errors.Wrap(err, "utxo config")
	}

	neutronPrefix := cfg.CosmosPrefix
	if neutronPrefix == "" {
		neutronPrefix = "neutron"
	}

	builders := []func() (Adapter, error){
		func() (Adapter, error) { return NewNEAR(named(near, NEARTestnetChainID, "NEAR Testnet", "NEAR")) },
		func() (Adapter, error) { return NewNEAR(named(near, NEARMainnetChainID, "NEAR Protocol", "NEAR")) },
		func() (Adapter, error) { return NewCosmos(named(cosmos, NeutronChainID, "Neutron", "NTRN"), neutronPrefix) },
		func() (Adapter, error) { return NewCosmos(named(cosmos, JunoChainID, "Juno", "JUNO"), "juno") },
		func() (Adapter, error) { return NewCosmos(named(cosmos, CosmosHubChainID, "Cosmos Hub", "ATOM"), "cosmos") },
		func() (Adapter, error) {
			return NewUTXO(named(utxo, BitcoinMainnetChainID, "Bitcoin", "BTC"), &chaincfg.MainNetParams)
		},
		func() (Adapter, error) {
			return NewUTXO(named(utxo, BitcoinTestnetChainID, "Bitcoin Testnet", "tBTC"), &chaincfg.TestNet3Params)
		},
		func() (Adapter, error) {
			return NewUTXO(named(utxo, DogecoinMainnetChainID, "Dogecoin", "DOGE"), DogecoinMainNetParams)
		},
		func() (Adapter, error) {
			return NewUTXO(named(utxo, LitecoinMainnetChainID, "Litecoin", "LTC"), LitecoinMainNetParams)
		},
		func() (Adapter, error) {
			return NewUTXO(named(utxo, BitcoinCashChainID, "Bitcoin Cash", "BCH"), BitcoinCashMainNetParams)
		},
	}

	adapters := make([]Adapter, 0, len(builders))
	for _, build := range builders {
		a, err := build()
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

func familyInfo(cfg config.ChainFamilyConfig) (Info, error) {
	floor, err := model.ParseAmount(cfg.SafetyDepositFloor)
	if err != nil {
		return Info{}, errors.Wrap(err, "safety deposit floor")
	}
	info := Info{
		SafetyDepositBps:   cfg.SafetyDepositBps,
		SafetyDepositFloor: floor,
		DefaultTimelock:    cfg.DefaultTimelock,
	}
	if cfg.GasPrice != "" {
		gp, err := model.ParseAmount(cfg.GasPrice)
		if err != nil {
			return Info{}, errors.Wrap(err, "gas price")
		}
		info.GasPrice = gp
	}
	return info, nil
}

func named(info Info, chainID uint64, name, symbol string) Info {
	info = info.clone()
	info.ChainID = chainID
	info.Name = name
	info.Symbol = symbol
	info.Active = true
	if info.GasPrice == nil {
		info.GasPrice = new(big.Int)
	}
	return info
}
