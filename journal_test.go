package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stablepay/layer2/pkg/layer2"
)

const (
	testWallet = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	testPayee  = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
)

func testTransfer(amount string) layer2.Operation {
	return layer2.NewTransfer(layer2.Params{
		ToAddress:   testPayee,
		Amount:      amount,
		Fee:         "0.01",
		TokenSymbol: "USDC",
	})
}

func createTestRecord(t *testing.T, db *gorm.DB, wallet string, op layer2.Operation) *OperationRecord {
	t.Helper()
	record, err := CreateRecord(db, layer2.VendorLoopring, layer2.NetworkGoerli, wallet, op)
	require.NoError(t, err)
	return record
}

func TestCreateRecord(t *testing.T) {
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	op := testTransfer("1.5")
	record := createTestRecord(t, db, testWallet, op)

	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, RecordPending, record.Status)
	assert.Equal(t, "loopring", record.Vendor)
	assert.Equal(t, "goerli", record.Network)
	assert.Equal(t, layer2.OperationTransfer, record.Type)
	assert.Equal(t, "1.5", record.Amount)
	assert.Equal(t, "USDC", record.TokenSymbol)

	loaded, err := GetRecord(db, record.ID.String())
	require.NoError(t, err)
	decoded, err := loaded.Operation()
	require.NoError(t, err)
	assert.Equal(t, op, decoded)
}

func TestRecordTransitions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	op := testTransfer("2")
	record := createTestRecord(t, db, testWallet, op)

	require.NoError(t, record.Submitted(db, "0xabc"))
	loaded, err := GetRecord(db, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, RecordSubmitted, loaded.Status)
	assert.Equal(t, "0xabc", loaded.TxHash)

	require.NoError(t, loaded.RecordAttempt(db, "timeout"))
	require.NoError(t, loaded.Committed(db, layer2.Receipt{BlockNumber: 42, Committed: true}))
	loaded, err = GetRecord(db, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, RecordCommitted, loaded.Status)
	assert.Equal(t, uint64(42), loaded.BlockNumber)
	assert.Equal(t, 1, loaded.Retries)
	assert.Empty(t, loaded.Error)
	assert.Equal(t, "0xabc", loaded.TxHash, "empty receipt hash keeps the submitted one")

	require.NoError(t, loaded.Verified(db, layer2.Receipt{TxHash: "0xabc", BlockNumber: 43, Verified: true}))
	// a late committed receipt does not downgrade the record
	require.NoError(t, loaded.Committed(db, layer2.Receipt{BlockNumber: 43}))
	loaded, err = GetRecord(db, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, RecordVerified, loaded.Status)
	assert.Equal(t, uint64(43), loaded.BlockNumber)
}

func TestRecordFail(t *testing.T) {
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	record := createTestRecord(t, db, testWallet, testTransfer("1"))
	require.NoError(t, record.Fail(db, "account is locked"))

	loaded, err := GetRecord(db, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, RecordFailed, loaded.Status)
	assert.Equal(t, "account is locked", loaded.Error)
}

func TestGetRecordErrors(t *testing.T) {
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	_, err := GetRecord(db, uuid.NewString())
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = GetRecord(db, "not-a-uuid")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRecordNotFound)
}

func TestListRecords(t *testing.T) {
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	other := "0x0000000000000000000000000000000000000001"
	first := createTestRecord(t, db, testWallet, testTransfer("1"))
	time.Sleep(2 * time.Millisecond)
	second := createTestRecord(t, db, testWallet, testTransfer("2"))
	time.Sleep(2 * time.Millisecond)
	createTestRecord(t, db, other, testTransfer("3"))
	require.NoError(t, second.Submitted(db, "0x02"))

	all, err := ListRecords(db, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, first.ID, all[0].ID)

	mine, err := ListRecords(db, RecordFilter{Wallet: testWallet})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	submitted, err := ListRecords(db, RecordFilter{Wallet: testWallet, Statuses: []RecordStatus{RecordSubmitted, RecordCommitted}})
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, second.ID, submitted[0].ID)

	limited, err := ListRecords(db, RecordFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, first.ID, limited[0].ID)
}

func TestCountByStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	createTestRecord(t, db, testWallet, testTransfer("1"))
	r := createTestRecord(t, db, testWallet, testTransfer("2"))
	require.NoError(t, r.Submitted(db, "0x01"))
	r = createTestRecord(t, db, testWallet, testTransfer("3"))
	require.NoError(t, r.Fail(db, "boom"))
	r = createTestRecord(t, db, testWallet, testTransfer("4"))
	require.NoError(t, r.Fail(db, "boom"))

	counts, err := CountByStatus(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[RecordPending])
	assert.Equal(t, int64(1), counts[RecordSubmitted])
	assert.Equal(t, int64(2), counts[RecordFailed])
	assert.Zero(t, counts[RecordVerified])
}
