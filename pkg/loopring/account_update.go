package loopring

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/stablepay/layer2/pkg/babyjub"
	"github.com/stablepay/layer2/pkg/sign"
)

// accountUpdateValidUntil is 2030-11-30T00:00:00Z.
const accountUpdateValidUntil = 1922227200

var accountUpdateTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"AccountUpdate": {
		{Name: "owner", Type: "address"},
		{Name: "accountID", Type: "uint32"},
		{Name: "feeTokenID", Type: "uint16"},
		{Name: "maxFee", Type: "uint96"},
		{Name: "publicKey", Type: "uint256"},
		{Name: "validUntil", Type: "uint32"},
		{Name: "nonce", Type: "uint32"},
	},
}

// AccountUpdateTypedData builds the EIP-712 message that authorizes req.
func AccountUpdateTypedData(info NetworkInfo, req UpdateAccountRequest, key *babyjub.Point) apitypes.TypedData {
	chainID := new(big.Int).SetUint64(info.ChainID)

	return apitypes.TypedData{
		Types:       accountUpdateTypes,
		PrimaryType: "AccountUpdate",
		Domain: apitypes.TypedDataDomain{
			Name:              info.DomainName,
			Version:           info.DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: info.ExchangeAddress,
		},
		Message: apitypes.TypedDataMessage{
			"owner":      req.Owner,
			"accountID":  strconv.FormatUint(req.AccountID, 10),
			"feeTokenID": strconv.FormatUint(uint64(req.MaxFee.TokenID), 10),
			"maxFee":     req.MaxFee.Volume,
			"publicKey":  PackedPublicKey(key).String(),
			"validUntil": strconv.FormatUint(req.ValidUntil, 10),
			"nonce":      strconv.FormatUint(req.Nonce, 10),
		},
	}
}

// PackedPublicKey is the compressed key as the uint256 the exchange stores.
func PackedPublicKey(key *babyjub.Point) *big.Int {
	packed := key.Pack()
	be := make([]byte, len(packed))
	for i, b := range packed {
		be[len(packed)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}

// SignAccountUpdate signs the typed data of req with the wallet key.
func SignAccountUpdate(signer sign.Signer, info NetworkInfo, req UpdateAccountRequest, key *babyjub.Point) (sign.Signature, error) {
	return sign.SignTypedData(signer, AccountUpdateTypedData(info, req, key))
}
