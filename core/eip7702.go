package core

// EIP-7702 authorization processing at the transaction level: every tuple
// in a set-code transaction that survives validation installs a 23-byte
// delegation designator as the authority's code and bumps its nonce.
// Designator parsing itself lives in core/types; this file owns the
// state transition.

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethstate/execution-core/core/state"
	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
)

var (
	ErrAuthChainID    = errors.New("authorization chain ID mismatch")
	ErrAuthNonce      = errors.New("authorization nonce mismatch")
	ErrAuthSignature  = errors.New("authorization signature recovery failed")
	ErrAuthInvalidSig = errors.New("authorization signature values invalid")
)

// ProcessAuthorizations walks a set-code transaction's tuples. A tuple
// that fails any check is skipped, never fatal: the EIP makes bad tuples
// inert rather than invalidating the transaction.
func ProcessAuthorizations(statedb state.StateDB, authorizations []types.Authorization, chainID *big.Int) error {
	for i := range authorizations {
		// Skipped tuples would be worth a debug log in a serving node;
		// consensus only cares that they have no effect.
		_ = applyAuthorization(statedb, &authorizations[i], chainID)
	}
	return nil
}

// applyAuthorization validates one tuple and installs its delegation:
// chain scope, signature shape, signer recovery, nonce match, then the
// designator write and nonce bump.
func applyAuthorization(statedb state.StateDB, auth *types.Authorization, chainID *big.Int) error {
	// Chain scope: zero is the any-chain wildcard.
	if auth.ChainID != nil && auth.ChainID.Sign() != 0 {
		if chainID == nil || auth.ChainID.Cmp(chainID) != 0 {
			return ErrAuthChainID
		}
	}

	v := byte(0)
	if auth.V != nil {
		if !auth.V.IsUint64() || auth.V.Uint64() > 1 {
			return ErrAuthInvalidSig
		}
		v = byte(auth.V.Uint64())
	}
	if !crypto.ValidateSignatureValues(v, auth.R, auth.S, true) {
		return ErrAuthInvalidSig
	}

	authority, err := recoverAuthority(auth, v)
	if err != nil {
		return err
	}

	// The tuple binds to one exact nonce of the authority.
	currentNonce := statedb.GetNonce(authority)
	if auth.Nonce != currentNonce {
		return ErrAuthNonce
	}

	statedb.SetCode(authority, types.AddressToDelegation(auth.Address))
	statedb.SetNonce(authority, currentNonce+1)
	return nil
}

// recoverAuthority recovers the tuple's signer from its signature over
// keccak256(0x05 || rlp([chain_id, address, nonce])).
func recoverAuthority(auth *types.Authorization, v byte) (types.Address, error) {
	authHash := types.AuthorizationHash(auth)

	sig := make([]byte, 65)
	if auth.R != nil {
		rBytes := auth.R.Bytes()
		copy(sig[32-len(rBytes):32], rBytes)
	}
	if auth.S != nil {
		sBytes := auth.S.Bytes()
		copy(sig[64-len(sBytes):64], sBytes)
	}
	sig[64] = v

	pubBytes, err := crypto.Ecrecover(authHash[:], sig)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %v", ErrAuthSignature, err)
	}
	return types.BytesToAddress(crypto.Keccak256(pubBytes[1:])[12:]), nil
}

// IsDelegated reports whether code begins with the 0xef0100 designator
// prefix.
func IsDelegated(code []byte) bool {
	return types.HasDelegationPrefix(code)
}

// ResolveDelegation reads the delegated-to address out of a well-formed
// 23-byte designator; anything else reports false.
func ResolveDelegation(code []byte) (types.Address, bool) {
	return types.ParseDelegation(code)
}
