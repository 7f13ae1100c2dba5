package loopring

import (
	"math/big"

	"github.com/stablepay/layer2/pkg/babyjub"
)

// ResultInfo is the error envelope of the REST API.
type ResultInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	ResultInfo ResultInfo `json:"resultInfo"`
}

// PublicKey holds hex coordinates as returned by the API. Both are empty for
// accounts without a registered key.
type PublicKey struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// IsSet reports whether both coordinates are present.
func (k PublicKey) IsSet() bool {
	return k.X != "" && k.Y != "" && k.X != "0x" && k.Y != "0x"
}

// Point decodes the key. It returns nil for unset keys.
func (k PublicKey) Point() (*babyjub.Point, error) {
	if !k.IsSet() {
		return nil, nil
	}
	x, ok := new(big.Int).SetString(trim0x(k.X), 16)
	if !ok {
		return nil, errMalformedKey
	}
	y, ok := new(big.Int).SetString(trim0x(k.Y), 16)
	if !ok {
		return nil, errMalformedKey
	}
	p, err := babyjub.PointFromBigInts(x, y)
	if err != nil {
		return nil, err
	}
	if !p.IsOnCurve() {
		return nil, babyjub.ErrNotOnCurve
	}
	return p, nil
}

// AccountInfo is the response of GET /api/v3/account.
type AccountInfo struct {
	AccountID uint64    `json:"accountId"`
	Owner     string    `json:"owner"`
	Frozen    bool      `json:"frozen"`
	PublicKey PublicKey `json:"publicKey"`
	Tags      string    `json:"tags,omitempty"`
	Nonce     uint64    `json:"nonce"`
	KeyNonce  uint64    `json:"keyNonce"`
	KeySeed   string    `json:"keySeed,omitempty"`
}

// Token is an entry of GET /api/v3/exchange/tokens.
type Token struct {
	Type     string `json:"type"`
	TokenID  uint32 `json:"tokenId"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
}

// IsEther reports whether the token is the chain's native currency.
func (t Token) IsEther() bool {
	return t.TokenID == 0 || t.Symbol == "ETH"
}

// StorageID is the response of GET /api/v3/storageId.
type StorageID struct {
	OrderID    uint64 `json:"orderId"`
	OffchainID uint64 `json:"offchainId"`
}

// TokenVolume is an amount in base units of a token.
type TokenVolume struct {
	TokenID uint32 `json:"tokenId"`
	Volume  string `json:"volume"`
}

// UpdateAccountRequest registers an EdDSA key for an account.
type UpdateAccountRequest struct {
	Exchange       string      `json:"exchange"`
	Owner          string      `json:"owner"`
	AccountID      uint64      `json:"accountId"`
	PublicKey      PublicKey   `json:"publicKey"`
	MaxFee         TokenVolume `json:"maxFee"`
	ValidUntil     uint64      `json:"validUntil"`
	Nonce          uint64      `json:"nonce"`
	ECDSASignature string      `json:"ecdsaSignature,omitempty"`
}

// TransferRequest is the body of POST /api/v3/transfer.
type TransferRequest struct {
	Exchange       string      `json:"exchange"`
	PayerID        uint64      `json:"payerId"`
	PayerAddr      string      `json:"payerAddr"`
	PayeeID        uint64      `json:"payeeId"`
	PayeeAddr      string      `json:"payeeAddr"`
	Token          TokenVolume `json:"token"`
	MaxFee         TokenVolume `json:"maxFee"`
	StorageID      uint64      `json:"storageId"`
	ValidUntil     uint64      `json:"validUntil"`
	Memo           string      `json:"memo,omitempty"`
	EdDSASignature string      `json:"eddsaSignature,omitempty"`
}

// WithdrawalRequest is the body of POST /api/v3/user/withdrawals.
type WithdrawalRequest struct {
	Exchange           string      `json:"exchange"`
	AccountID          uint64      `json:"accountId"`
	Owner              string      `json:"owner"`
	Token              TokenVolume `json:"token"`
	MaxFee             TokenVolume `json:"maxFee"`
	StorageID          uint64      `json:"storageId"`
	ValidUntil         uint64      `json:"validUntil"`
	MinGas             uint64      `json:"minGas"`
	To                 string      `json:"to"`
	ExtraData          string      `json:"extraData"`
	FastWithdrawalMode bool        `json:"fastWithdrawalMode"`
	EdDSASignature     string      `json:"eddsaSignature,omitempty"`
}

// TxResponse is returned by the submission endpoints.
type TxResponse struct {
	Hash         string `json:"hash"`
	Status       string `json:"status"`
	IsIdempotent bool   `json:"isIdempotent"`
}

// TxKind selects a history endpoint.
type TxKind string

const (
	TxKindTransfer   TxKind = "transfers"
	TxKindWithdrawal TxKind = "withdrawals"
	TxKindDeposit    TxKind = "deposits"
)

// Transaction statuses reported by the history endpoints.
const (
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusReceived   = "received"
	StatusFailed     = "failed"
)

// TxStatus is one entry of a history endpoint.
type TxStatus struct {
	ID          uint64 `json:"id"`
	Hash        string `json:"hash"`
	TxHash      string `json:"txHash,omitempty"`
	Status      string `json:"status"`
	BlockID     uint64 `json:"blockId"`
	BlockNumber uint64 `json:"blockNum,omitempty"`
	Progress    string `json:"progress,omitempty"`
}

type txHistory struct {
	TotalNum     int        `json:"totalNum"`
	Transactions []TxStatus `json:"transactions"`
}

// AccountEvent is an update pushed on the account topic of the websocket API.
type AccountEvent struct {
	AccountID    uint64 `json:"accountId"`
	TotalAmount  string `json:"totalAmount"`
	TokenID      uint32 `json:"tokenId"`
	AmountLocked string `json:"amountLocked"`
}

func trim0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
