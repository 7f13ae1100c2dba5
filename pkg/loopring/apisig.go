package loopring

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strings"

	"github.com/stablepay/layer2/pkg/babyjub"
	"github.com/stablepay/layer2/pkg/eddsa"
)

// RequestHash is the digest signed into the X-API-SIG header of a GET or
// DELETE request: sha256 of "METHOD&escaped-url&escaped-sorted-params",
// reduced into the field.
func RequestHash(method, requestURL string, params url.Values) *big.Int {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}

	msg := strings.ToUpper(method) + "&" + url.QueryEscape(requestURL) + "&" + url.QueryEscape(strings.Join(pairs, "&"))
	return fieldDigest([]byte(msg))
}

// PayloadHash is the digest of a request body: sha256 of its JSON encoding,
// reduced into the field.
func PayloadHash(payload any) (*big.Int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return fieldDigest(raw), nil
}

// SignRequest returns the X-API-SIG value for a GET request.
func SignRequest(key *eddsa.KeyPair, scheme eddsa.Scheme, method, requestURL string, params url.Values) (string, error) {
	sig, err := key.SignWith(scheme, RequestHash(method, requestURL, params))
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return sig.Hex(), nil
}

// SignPayload returns the eddsaSignature of a request body.
func SignPayload(key *eddsa.KeyPair, scheme eddsa.Scheme, payload any) (string, error) {
	h, err := PayloadHash(payload)
	if err != nil {
		return "", err
	}
	sig, err := key.SignWith(scheme, h)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return sig.Hex(), nil
}

// ParseSignature decodes the 0x + Rx + Ry + s form produced by SignRequest.
func ParseSignature(s string) (*eddsa.Signature, error) {
	raw := trim0x(s)
	if len(raw) != 192 {
		return nil, fmt.Errorf("signature must be 192 hex characters, got %d", len(raw))
	}
	parts := make([]*big.Int, 3)
	for i := range parts {
		v, ok := new(big.Int).SetString(raw[i*64:(i+1)*64], 16)
		if !ok {
			return nil, fmt.Errorf("signature part %d is not hex", i)
		}
		parts[i] = v
	}
	r, err := babyjub.PointFromBigInts(parts[0], parts[1])
	if err != nil {
		return nil, err
	}
	if !r.IsOnCurve() {
		return nil, babyjub.ErrNotOnCurve
	}
	return &eddsa.Signature{R: r, S: parts[2]}, nil
}

func fieldDigest(msg []byte) *big.Int {
	sum := sha256.Sum256(msg)
	return new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), babyjub.FieldModulus())
}
