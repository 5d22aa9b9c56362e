/*
This package is the fixed-point numeric core for all price and value math.

Every conversion in the vault routes through Decimal so that truncation only
happens at the explicitly chosen rounding points (floor when crediting a
caller, ceil when charging a fee).
*/

package decimal

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnderflow    = errors.New("decimal subtraction underflow")
	ErrDivideByZero = errors.New("decimal division by zero")
	ErrNegative     = errors.New("decimal value is negative")
	ErrOverflow     = errors.New("decimal value exceeds uint64 range")
	ErrInvalid      = errors.New("decimal value is invalid")
)

// Decimal is an unsigned fixed-point decimal with an 18-digit fractional
// scale. The zero value is usable and equal to Zero().
type Decimal struct {
	v sdkmath.LegacyDec
}

// Zero returns the zero decimal.
func Zero() Decimal {
	return Decimal{v: sdkmath.LegacyZeroDec()}
}

// One returns the decimal 1.
func One() Decimal {
	return Decimal{v: sdkmath.LegacyOneDec()}
}

// FromUint64 returns the decimal equal to the given integer.
func FromUint64(n uint64) Decimal {
	return Decimal{v: sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(n))}
}

// FromBps converts basis points (1/100 of a percent) to a decimal fraction,
// e.g. FromBps(30) == 0.003.
func FromBps(bps uint64) Decimal {
	return Decimal{v: sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(bps)).QuoInt64(10_000)}
}

// FromString parses a non-negative decimal string such as "1.0002".
func FromString(s string) (Decimal, error) {
	d, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return Zero(), fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if d.IsNegative() {
		return Zero(), fmt.Errorf("%w: %s", ErrNegative, s)
	}
	return Decimal{v: d}, nil
}

// Pow10 returns 10^n as a decimal. Used for native-precision scaling.
func Pow10(n uint8) Decimal {
	factor := sdkmath.LegacyOneDec()
	for i := uint8(0); i < n; i++ {
		factor = factor.MulInt64(10)
	}
	return Decimal{v: factor}
}

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal {
	return Decimal{v: d.dec().Add(other.dec())}
}

// Sub returns d - other, failing with ErrUnderflow if the result would be
// negative. There is no unchecked subtraction.
func (d Decimal) Sub(other Decimal) (Decimal, error) {
	if other.dec().GT(d.dec()) {
		return Zero(), fmt.Errorf("%w: %s - %s", ErrUnderflow, d, other)
	}
	return Decimal{v: d.dec().Sub(other.dec())}, nil
}

// Mul returns d * other.
func (d Decimal) Mul(other Decimal) Decimal {
	return Decimal{v: d.dec().Mul(other.dec())}
}

// Quo returns d / other, failing with ErrDivideByZero when other is zero.
func (d Decimal) Quo(other Decimal) (Decimal, error) {
	if other.dec().IsZero() {
		return Zero(), ErrDivideByZero
	}
	return Decimal{v: d.dec().Quo(other.dec())}, nil
}

// Min returns the smaller of d and other.
func (d Decimal) Min(other Decimal) Decimal {
	if other.dec().LT(d.dec()) {
		return other
	}
	return d
}

// Max returns the larger of d and other.
func (d Decimal) Max(other Decimal) Decimal {
	if other.dec().GT(d.dec()) {
		return other
	}
	return d
}

// FloorUint64 rounds down to the nearest integer. The rounding direction at
// each call site is part of the protocol: floor is used when crediting the
// caller.
func (d Decimal) FloorUint64() (uint64, error) {
	i := d.dec().TruncateInt()
	if !i.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, d)
	}
	return i.Uint64(), nil
}

// CeilUint64 rounds up to the nearest integer. Ceil is used when charging a
// fee.
func (d Decimal) CeilUint64() (uint64, error) {
	i := d.dec().Ceil().TruncateInt()
	if !i.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, d)
	}
	return i.Uint64(), nil
}

// IsZero reports whether d equals zero.
func (d Decimal) IsZero() bool {
	return d.dec().IsZero()
}

// IsPositive reports whether d is strictly greater than zero.
func (d Decimal) IsPositive() bool {
	return d.dec().IsPositive()
}

// LT reports whether d < other.
func (d Decimal) LT(other Decimal) bool {
	return d.dec().LT(other.dec())
}

// Equal reports whether d == other.
func (d Decimal) Equal(other Decimal) bool {
	return d.dec().Equal(other.dec())
}

// String renders the decimal with its full 18-digit fractional scale.
func (d Decimal) String() string {
	return d.dec().String()
}

// dec guards against the zero value's nil inner big.Int.
func (d Decimal) dec() sdkmath.LegacyDec {
	if d.v.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return d.v
}
