package decimal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubChecked(t *testing.T) {
	a := FromUint64(10)
	b := FromUint64(3)

	got, err := a.Sub(b)
	require.NoError(t, err)
	require.Equal(t, "7.000000000000000000", got.String())

	_, err = b.Sub(a)
	require.ErrorIs(t, err, ErrUnderflow)
}

func TestQuoDivideByZero(t *testing.T) {
	_, err := FromUint64(1).Quo(Zero())
	require.ErrorIs(t, err, ErrDivideByZero)

	got, err := FromUint64(1).Quo(FromUint64(4))
	require.NoError(t, err)
	require.Equal(t, "0.250000000000000000", got.String())
}

func TestFromBps(t *testing.T) {
	require.Equal(t, "0.003000000000000000", FromBps(30).String())
	require.Equal(t, "1.000000000000000000", FromBps(10_000).String())
	require.True(t, FromBps(0).IsZero())
}

func TestFromString(t *testing.T) {
	d, err := FromString("1.0002")
	require.NoError(t, err)
	require.Equal(t, "1.000200000000000000", d.String())

	_, err = FromString("-1")
	require.ErrorIs(t, err, ErrNegative)

	_, err = FromString("not a number")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestFloorCeil(t *testing.T) {
	d, err := FromString("2.4")
	require.NoError(t, err)

	floor, err := d.FloorUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(2), floor)

	ceil, err := d.CeilUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(3), ceil)

	// Exact integers floor and ceil to themselves.
	exact := FromUint64(5)
	floor, err = exact.FloorUint64()
	require.NoError(t, err)
	ceil, err = exact.CeilUint64()
	require.NoError(t, err)
	require.Equal(t, floor, ceil)
}

func TestFloorOverflow(t *testing.T) {
	big := FromUint64(1 << 62).Mul(FromUint64(1 << 62))
	_, err := big.FloorUint64()
	require.ErrorIs(t, err, ErrOverflow)
}

func TestMinMax(t *testing.T) {
	lo, _ := FromString("0.99")
	hi, _ := FromString("1.01")

	require.True(t, lo.Min(hi).Equal(lo))
	require.True(t, hi.Min(lo).Equal(lo))
	require.True(t, lo.Max(hi).Equal(hi))
	require.True(t, hi.Max(lo).Equal(hi))
}

func TestZeroValueUsable(t *testing.T) {
	var d Decimal
	require.True(t, d.IsZero())
	require.Equal(t, "0.000000000000000000", d.Add(Zero()).String())
}

func TestPow10(t *testing.T) {
	require.Equal(t, "1.000000000000000000", Pow10(0).String())
	require.Equal(t, "1000000.000000000000000000", Pow10(6).String())
}

// Fee rounding bias: the ceil-rounded fee is never below the exact rational
// fee, and the floored credit is never above the exact value.
func TestRoundingBias(t *testing.T) {
	amounts := []uint64{1, 3, 999, 100_000_000, 123_456_789}
	feeBps := uint64(30)

	for _, amount := range amounts {
		exact := FromBps(feeBps).Mul(FromUint64(amount))

		fee, err := exact.CeilUint64()
		require.NoError(t, err)
		require.False(t, FromUint64(fee).LT(exact), "fee must cover exact value for amount %d", amount)

		credit, err := exact.FloorUint64()
		require.NoError(t, err)
		require.False(t, exact.LT(FromUint64(credit)), "credit must not exceed exact value for amount %d", amount)
	}
}
