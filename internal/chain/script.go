package chain

import (
	"crypto/sha256"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

func validateScriptTimelock(timelock int64, relative bool) error {
	if timelock <= 0 {
		return errors.Wrap(model.ErrInvalidScriptParams, "timelock must be positive")
	}
	if relative {
		// the disable flag must stay clear for CSV to be enforced
		if timelock&int64(wire.SequenceLockTimeDisabled) != 0 || timelock > math.MaxUint32 {
			return errors.Wrapf(model.ErrInvalidScriptParams, "relative timelock %d out of range", timelock)
		}
		return nil
	}
	if timelock > math.MaxUint32 {
		return errors.Wrapf(model.ErrInvalidScriptParams, "absolute timelock %d out of range", timelock)
	}
	return nil
}

// buildHTLCScript emits
//
//	OP_IF
//	  OP_SHA256 <hashlock> OP_EQUALVERIFY OP_DUP OP_HASH160 <recipient>
//	OP_ELSE
//	  <timelock> OP_CHECKLOCKTIMEVERIFY|OP_CHECKSEQUENCEVERIFY OP_DROP OP_DUP OP_HASH160 <refund>
//	OP_ENDIF
//	OP_EQUALVERIFY OP_CHECKSIG
func buildHTLCScript(hashlock []byte, timelock int64, recipientHash, refundHash []byte, useRelativeTimelock bool) ([]byte, error) {
	if len(hashlock) != sha256.Size {
		return nil, errors.Wrapf(model.ErrInvalidScriptParams, "hashlock must be %d bytes, got %d", sha256.Size, len(hashlock))
	}
	if len(recipientHash) != 20 || len(refundHash) != 20 {
		return nil, errors.Wrap(model.ErrInvalidScriptParams, "recipient and refund hashes must be 20 bytes")
	}
	if err := validateScriptTimelock(timelock, useRelativeTimelock); err != nil {
		return nil, err
	}

	lockOp := byte(txscript.OP_CHECKLOCKTIMEVERIFY)
	if useRelativeTimelock {
		lockOp = txscript.OP_CHECKSEQUENCEVERIFY
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF).
		AddOp(txscript.OP_SHA256).AddData(hashlock).AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).AddData(recipientHash)
	builder.AddOp(txscript.OP_ELSE).
		AddInt64(timelock).AddOp(lockOp).AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).AddData(refundHash)
	builder.AddOp(txscript.OP_ENDIF).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG)

	script, err := builder.Script()
	if err != nil {
		return nil, errors.Wrap(err, "build htlc script")
	}
	return script, nil
}

// scriptAddress is P2WSH on segwit networks and P2SH elsewhere.
func scriptAddress(script []byte, net *chaincfg.Params) (string, error) {
	if len(script) == 0 {
		return "", errors.Wrap(model.ErrInvalidScriptParams, "empty script")
	}
	if !supportsSegwit(net) {
		addr, err := btcutil.NewAddressScriptHash(script, net)
		if err != nil {
			return "", errors.Wrap(err, "p2sh address")
		}
		return addr.EncodeAddress(), nil
	}
	hash := sha256.Sum256(script)
	addr, err := btcutil.NewAddressWitnessScriptHash(hash[:], net)
	if err != nil {
		return "", errors.Wrap(err, "p2wsh address")
	}
	return addr.EncodeAddress(), nil
}
