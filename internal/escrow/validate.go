package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// AddressLength is the length of an encoded account address.
const AddressLength = 58

const addressAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// PriceCeiling bounds prices in minor units (1,000,000 whole units at 6 decimals).
var PriceCeiling = decimal.New(1_000_000_000_000, 0)

// ValidateAddress reports whether s is syntactically an account address:
// exactly AddressLength characters, all from the base32 alphabet.
func ValidateAddress(s string) bool {
	if len(s) != AddressLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(addressAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// ValidatePrice reports whether minorUnits is an integer, strictly positive and
// below PriceCeiling.
func ValidatePrice(minorUnits decimal.Decimal) bool {
	if !minorUnits.IsInteger() || !minorUnits.IsPositive() {
		return false
	}
	return minorUnits.LessThan(PriceCeiling)
}

// ToMinorUnits converts a decimal display price into integer minor units by
// shifting decimals places and flooring the remainder.
func ToMinorUnits(price string, decimals int32) (uint64, error) {
	if decimals < 0 || decimals > 19 {
		return 0, fmt.Errorf("%w: unsupported precision %d", ErrInvalidAmount, decimals)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return 0, fmt.Errorf("%w: price %q: %v", ErrInvalidAmount, price, err)
	}
	minor := d.Shift(decimals).Floor()
	if !ValidatePrice(minor) {
		return 0, fmt.Errorf("%w: price %q out of range", ErrInvalidAmount, price)
	}
	return minor.BigInt().Uint64(), nil
}

// checkPrice is ValidatePrice for an already-integral amount.
func checkPrice(minorUnits uint64) error {
	if !ValidatePrice(decimal.NewFromBigInt(new(big.Int).SetUint64(minorUnits), 0)) {
		return fmt.Errorf("%w: price %d", ErrInvalidAmount, minorUnits)
	}
	return nil
}

func checkAssetAmount(amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: asset amount must be positive", ErrInvalidAmount)
	}
	return nil
}

func checkAddress(role, addr string) error {
	if !ValidateAddress(addr) {
		return fmt.Errorf("%w: %s %q", ErrInvalidAddress, role, addr)
	}
	return nil
}
