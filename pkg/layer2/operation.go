package layer2

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// OperationType tags an Operation.
type OperationType string

const (
	OperationDeposit    OperationType = "deposit"
	OperationTransfer   OperationType = "transfer"
	OperationWithdrawal OperationType = "withdrawal"
)

// DefaultToken is the token used by NewDeposit.
const DefaultToken = "ETH"

// Operation is an immutable request to move funds. Amount and Fee are
// non-negative decimal strings in the token's display unit.
type Operation struct {
	Type        OperationType `json:"type" validate:"oneof=deposit transfer withdrawal"`
	ToAddress   string        `json:"to" validate:"required,eth_addr"`
	Amount      string        `json:"amount" validate:"required,decimal"`
	Fee         string        `json:"fee" validate:"decimal"`
	TokenSymbol string        `json:"token" validate:"required,max=16"`
	// ApproveForERC20 only applies to deposits.
	ApproveForERC20 bool `json:"approveForErc20,omitempty"`
}

// Params are the fields shared by transfers and withdrawals.
type Params struct {
	ToAddress   string
	Amount      string
	Fee         string
	TokenSymbol string
}

// DepositParams describe a token deposit.
type DepositParams struct {
	Params
	ApproveForERC20 bool
}

// NewDeposit creates an ETH deposit.
func NewDeposit(toAddress, amount, fee string) Operation {
	return Operation{
		Type:        OperationDeposit,
		ToAddress:   toAddress,
		Amount:      amount,
		Fee:         fee,
		TokenSymbol: DefaultToken,
	}
}

// NewTokenDeposit creates a deposit of any token.
func NewTokenDeposit(p DepositParams) Operation {
	return Operation{
		Type:            OperationDeposit,
		ToAddress:       p.ToAddress,
		Amount:          p.Amount,
		Fee:             p.Fee,
		TokenSymbol:     p.TokenSymbol,
		ApproveForERC20: p.ApproveForERC20,
	}
}

func NewTransfer(p Params) Operation {
	return Operation{
		Type:        OperationTransfer,
		ToAddress:   p.ToAddress,
		Amount:      p.Amount,
		Fee:         p.Fee,
		TokenSymbol: p.TokenSymbol,
	}
}

func NewWithdrawal(p Params) Operation {
	return Operation{
		Type:        OperationWithdrawal,
		ToAddress:   p.ToAddress,
		Amount:      p.Amount,
		Fee:         p.Fee,
		TokenSymbol: p.TokenSymbol,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func operationValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				// required handles mandatory fields; an empty fee means zero
				return true
			}
			_, err := parseDisplayAmount(s)
			return err == nil
		})
	})
	return validate
}

// ErrInvalidOperation wraps every validation failure.
var ErrInvalidOperation = errors.New("invalid operation")

// Validate checks the field invariants.
func (o Operation) Validate() error {
	if err := operationValidator().Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidOperation, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	if o.ApproveForERC20 && o.Type != OperationDeposit {
		return fmt.Errorf("%w: ERC-20 approval only applies to deposits", ErrInvalidOperation)
	}
	return nil
}

// AmountUnits converts Amount to base units.
func (o Operation) AmountUnits(decimals int32) (*big.Int, error) {
	return BaseUnits(o.Amount, decimals)
}

// FeeUnits converts Fee to base units. An empty fee is zero.
func (o Operation) FeeUnits(decimals int32) (*big.Int, error) {
	if o.Fee == "" {
		return new(big.Int), nil
	}
	return BaseUnits(o.Fee, decimals)
}

// BaseUnits parses a display amount and scales it by 10^decimals. Amounts with
// more fractional digits than decimals are rejected.
func BaseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := parseDisplayAmount(amount)
	if err != nil {
		return nil, err
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// displayAmount is a plain non-negative decimal: no sign, no exponent.
var displayAmount = regexp.MustCompile(`^\d+(\.\d+)?$`)

func parseDisplayAmount(amount string) (decimal.Decimal, error) {
	if !displayAmount.MatchString(amount) {
		return decimal.Decimal{}, fmt.Errorf("amount %q is not a plain decimal", amount)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return d, nil
}

// FormatUnits renders base units as a display amount.
func FormatUnits(units *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(units, -decimals).String()
}
