package layer2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	dep := NewDeposit(testWallet, "666.777", "0.01")
	assert.Equal(t, Operation{
		Type:        OperationDeposit,
		ToAddress:   testWallet,
		Amount:      "666.777",
		Fee:         "0.01",
		TokenSymbol: "ETH",
	}, dep)

	tokenDep := NewTokenDeposit(DepositParams{
		Params:          Params{ToAddress: testWallet, Amount: "10", TokenSymbol: "USDC"},
		ApproveForERC20: true,
	})
	assert.Equal(t, OperationDeposit, tokenDep.Type)
	assert.True(t, tokenDep.ApproveForERC20)
	assert.Equal(t, "USDC", tokenDep.TokenSymbol)

	tr := NewTransfer(Params{ToAddress: testWallet, Amount: "1", Fee: "0", TokenSymbol: "LRC"})
	assert.Equal(t, OperationTransfer, tr.Type)
	assert.False(t, tr.ApproveForERC20)

	wd := NewWithdrawal(Params{ToAddress: testWallet, Amount: "1", TokenSymbol: "ETH"})
	assert.Equal(t, OperationWithdrawal, wd.Type)
}

func TestValidate(t *testing.T) {
	valid := NewDeposit(testWallet, "1.5", "0.01")
	require.NoError(t, valid.Validate())

	noFee := NewTransfer(Params{ToAddress: testWallet, Amount: "2", TokenSymbol: "LRC"})
	require.NoError(t, noFee.Validate())

	tcs := []struct {
		name string
		op   Operation
	}{
		{"bad address", NewDeposit("0x1234", "1", "0")},
		{"empty amount", NewDeposit(testWallet, "", "0")},
		{"negative amount", NewDeposit(testWallet, "-1", "0")},
		{"not a number", NewDeposit(testWallet, "one", "0")},
		{"negative fee", NewDeposit(testWallet, "1", "-0.1")},
		{"exponent amount", NewDeposit(testWallet, "1e2000000000", "0")},
		{"exponent fee", NewDeposit(testWallet, "1", "1E-3")},
		{"signed amount", NewDeposit(testWallet, "+1", "0")},
		{"bare fraction", NewDeposit(testWallet, ".5", "0")},
		{"missing token", NewTransfer(Params{ToAddress: testWallet, Amount: "1"})},
		{"unknown type", Operation{Type: "swap", ToAddress: testWallet, Amount: "1", TokenSymbol: "ETH"}},
		{"approve on transfer", Operation{Type: OperationTransfer, ToAddress: testWallet, Amount: "1", TokenSymbol: "USDC", ApproveForERC20: true}},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.op.Validate(), ErrInvalidOperation)
		})
	}
}

func TestBaseUnits(t *testing.T) {
	tcs := []struct {
		amount   string
		decimals int32
		want     string
		wantErr  bool
	}{
		{"666.777", 18, "666777000000000000000", false},
		{"0.01", 18, "10000000000000000", false},
		{"1", 6, "1000000", false},
		{"0", 18, "0", false},
		{"1.0000001", 6, "", true},
		{"-1", 18, "", true},
		{"abc", 18, "", true},
		{"1e2000000000", 18, "", true},
		{"1.", 18, "", true},
	}

	for _, tc := range tcs {
		t.Run(tc.amount, func(t *testing.T) {
			got, err := BaseUnits(tc.amount, tc.decimals)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
			assert.Equal(t, tc.amount, FormatUnits(got, tc.decimals))
		})
	}
}

func TestFeeUnits(t *testing.T) {
	op := NewTransfer(Params{ToAddress: testWallet, Amount: "1", TokenSymbol: "ETH"})
	fee, err := op.FeeUnits(18)
	require.NoError(t, err)
	assert.Equal(t, "0", fee.String())

	op.Fee = "0.5"
	fee, err = op.FeeUnits(2)
	require.NoError(t, err)
	assert.Equal(t, "50", fee.String())
}
