package loopring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/stablepay/layer2/pkg/babyjub"
	"github.com/stablepay/layer2/pkg/eddsa"
	"github.com/stablepay/layer2/pkg/sign"
)

const (
	testAPIKey    = "test-api-key"
	testAccountID = 10
)

var testTokens = []Token{
	{Type: "ETH", TokenID: 0, Symbol: "ETH", Name: "Ethereum", Address: "0x0000000000000000000000000000000000000000", Decimals: 18},
	{Type: "ERC20", TokenID: 1, Symbol: "LRC", Name: "Loopring", Address: "0xfc28028d9b1f6966fe74710653232972f50673be", Decimals: 18},
	{Type: "ERC20", TokenID: 6, Symbol: "USDC", Name: "USD Coin", Address: "0xd4e71c4bb48850f5971ce40aa428b09f242d3e8a", Decimals: 6},
}

// fakeLoopring serves the subset of the REST API the wallet uses and checks
// every signature it receives.
type fakeLoopring struct {
	srv  *httptest.Server
	info NetworkInfo

	mu          sync.Mutex
	owner       string
	key         *babyjub.Point
	nonce       uint64
	tokenCalls  int
	statusCalls int
	failTokens  bool
	transfers   []TransferRequest
	withdrawals []WithdrawalRequest
	updates     []UpdateAccountRequest
}

func newFakeLoopring(t *testing.T, owner string) *fakeLoopring {
	f := &fakeLoopring{owner: owner}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/account", f.handleAccount)
	mux.HandleFunc("/api/v3/apiKey", f.handleAPIKey)
	mux.HandleFunc("/api/v3/exchange/tokens", f.handleTokens)
	mux.HandleFunc("/api/v3/storageId", f.handleStorageID)
	mux.HandleFunc("/api/v3/transfer", f.handleTransfer)
	mux.HandleFunc("/api/v3/user/withdrawals", f.handleWithdrawal)
	mux.HandleFunc("/api/v3/user/transfers", f.handleStatus)
	mux.HandleFunc("/api/v3/user/deposits", f.handleStatus)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	info, err := DefaultNetworkInfo("goerli")
	if err != nil {
		t.Fatal(err)
	}
	f.info = info.Merge(NetworkInfo{APIEndpoint: f.srv.URL})
	return f
}

// setKey registers key on the fake account as if another session unlocked it.
func (f *fakeLoopring) setKey(key *babyjub.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = key
}

func (f *fakeLoopring) registeredKey() *babyjub.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

type fakeRecord struct {
	updates     []UpdateAccountRequest
	transfers   []TransferRequest
	withdrawals []WithdrawalRequest
	tokenCalls  int
}

func (f *fakeLoopring) recorded() fakeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeRecord{
		updates:     append([]UpdateAccountRequest(nil), f.updates...),
		transfers:   append([]TransferRequest(nil), f.transfers...),
		withdrawals: append([]WithdrawalRequest(nil), f.withdrawals...),
		tokenCalls:  f.tokenCalls,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, errorResponse{ResultInfo: ResultInfo{Code: code, Message: msg}})
}

func (f *fakeLoopring) handleAccount(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		if !strings.EqualFold(r.URL.Query().Get("owner"), f.owner) {
			writeError(w, http.StatusBadRequest, codeAccountNotFound, "account not found")
			return
		}
		info := AccountInfo{AccountID: testAccountID, Owner: f.owner, Nonce: f.nonce}
		if f.key != nil {
			info.PublicKey = PublicKey{
				X: eddsa.XPad64("0x" + f.key.XBig().Text(16)),
				Y: eddsa.XPad64("0x" + f.key.YBig().Text(16)),
			}
		}
		writeJSON(w, http.StatusOK, info)

	case http.MethodPost:
		var req UpdateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, 100001, err.Error())
			return
		}
		key, err := req.PublicKey.Point()
		if err != nil || key == nil {
			writeError(w, http.StatusBadRequest, 100001, "invalid public key")
			return
		}

		hash, _, err := apitypes.TypedDataAndHash(AccountUpdateTypedData(f.info, req, key))
		if err != nil {
			writeError(w, http.StatusBadRequest, 100001, err.Error())
			return
		}
		raw, err := hexutil.Decode(r.Header.Get("X-API-SIG"))
		if err != nil {
			writeError(w, http.StatusBadRequest, 100001, "bad signature encoding")
			return
		}
		signer, err := sign.RecoverAddress(hash, raw)
		if err != nil || !strings.EqualFold(signer.Hex(), f.owner) {
			writeError(w, http.StatusBadRequest, 104209, "invalid ecdsa signature")
			return
		}

		f.updates = append(f.updates, req)
		f.key = key
		f.nonce++
		writeJSON(w, http.StatusOK, TxResponse{Hash: "0xupdate", Status: StatusProcessing})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeLoopring) handleAPIKey(w http.ResponseWriter, r *http.Request) {
	key := f.registeredKey()
	if key == nil {
		writeError(w, http.StatusBadRequest, 104, "account is locked")
		return
	}
	sig, err := ParseSignature(r.Header.Get("X-API-SIG"))
	if err != nil {
		writeError(w, http.StatusBadRequest, 104001, err.Error())
		return
	}
	h := RequestHash(http.MethodGet, f.srv.URL+r.URL.Path, r.URL.Query())
	if !eddsa.Verify(h, sig, key) {
		writeError(w, http.StatusUnauthorized, 104001, "invalid api signature")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"apiKey": testAPIKey})
}

func (f *fakeLoopring) handleTokens(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.tokenCalls++
	fail := f.failTokens
	f.mu.Unlock()

	if fail {
		writeError(w, http.StatusInternalServerError, 100000, "temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, testTokens)
}

func (f *fakeLoopring) requireAPIKey(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("X-API-KEY") != testAPIKey {
		writeError(w, http.StatusUnauthorized, 104002, "invalid api key")
		return false
	}
	return true
}

func (f *fakeLoopring) handleStorageID(w http.ResponseWriter, r *http.Request) {
	if !f.requireAPIKey(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, StorageID{OrderID: 0, OffchainID: 1001})
}

func (f *fakeLoopring) verifyPayload(w http.ResponseWriter, signature string, unsigned any) bool {
	sig, err := ParseSignature(signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, 114001, err.Error())
		return false
	}
	h, err := PayloadHash(unsigned)
	if err != nil || !eddsa.Verify(h, sig, f.registeredKey()) {
		writeError(w, http.StatusBadRequest, 114001, "invalid eddsa signature")
		return false
	}
	return true
}

func (f *fakeLoopring) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if !f.requireAPIKey(w, r) {
		return
	}
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, 100001, err.Error())
		return
	}
	unsigned := req
	unsigned.EdDSASignature = ""
	if !f.verifyPayload(w, req.EdDSASignature, unsigned) {
		return
	}

	f.mu.Lock()
	f.transfers = append(f.transfers, req)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, TxResponse{Hash: "0xtransfer", Status: StatusProcessing})
}

func (f *fakeLoopring) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		f.handleStatus(w, r)
		return
	}
	if !f.requireAPIKey(w, r) {
		return
	}
	var req WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, 100001, err.Error())
		return
	}
	unsigned := req
	unsigned.EdDSASignature = ""
	if !f.verifyPayload(w, req.EdDSASignature, unsigned) {
		return
	}

	f.mu.Lock()
	f.withdrawals = append(f.withdrawals, req)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, TxResponse{Hash: "0xwithdrawal", Status: StatusProcessing})
}

// handleStatus reports processing on the first poll and processed after.
func (f *fakeLoopring) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !f.requireAPIKey(w, r) {
		return
	}
	f.mu.Lock()
	f.statusCalls++
	status := StatusProcessing
	if f.statusCalls > 1 {
		status = StatusProcessed
	}
	f.mu.Unlock()

	accountID, _ := strconv.ParseUint(r.URL.Query().Get("accountId"), 10, 64)
	if accountID != testAccountID {
		writeJSON(w, http.StatusOK, txHistory{})
		return
	}
	writeJSON(w, http.StatusOK, txHistory{
		TotalNum: 1,
		Transactions: []TxStatus{{
			ID:      1,
			Hash:    r.URL.Query().Get("hashes"),
			Status:  status,
			BlockID: 666,
		}},
	})
}
