/*
This package is the custody sub-ledger: balances are the tokens an entity
actually holds, supplies track the outstanding total of a mintable unit.

Balances are denomination-checked on every join and split so that a reserve
can never absorb or pay out the wrong asset, and supplies can only change
through Mint and Burn so the conservation invariant (total == minted - burned)
holds by construction.
*/

package token

import (
	"errors"
	"fmt"
	"math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrDenomMismatch       = errors.New("balance denomination mismatch")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAmountOverflow      = errors.New("amount overflows uint64")
)

// Balance is a custody entry for a single asset denomination.
type Balance struct {
	denom  string
	amount uint64
}

// NewBalance creates a balance holding the given amount. Callers outside
// tests should obtain balances from a Supply or by splitting an existing
// balance rather than conjuring them.
func NewBalance(denom string, amount uint64) Balance {
	return Balance{denom: denom, amount: amount}
}

// Zero returns an empty balance of the given denomination.
func Zero(denom string) Balance {
	return Balance{denom: denom}
}

// Denom returns the asset denomination this balance is typed by.
func (b Balance) Denom() string {
	return b.denom
}

// Amount returns the amount held.
func (b Balance) Amount() uint64 {
	return b.amount
}

// IsZero reports whether the balance holds nothing.
func (b Balance) IsZero() bool {
	return b.amount == 0
}

// Join absorbs other into b. Fails if the denominations differ or the sum
// overflows.
func (b *Balance) Join(other Balance) error {
	if b.denom != other.denom {
		return fmt.Errorf("%w: have %s, got %s", ErrDenomMismatch, b.denom, other.denom)
	}
	if other.amount > math.MaxUint64-b.amount {
		return fmt.Errorf("%w: %d + %d", ErrAmountOverflow, b.amount, other.amount)
	}
	b.amount += other.amount
	return nil
}

// Split removes amount from b and returns it as a new balance. Fails with
// ErrInsufficientBalance when amount exceeds the holding; b is unchanged on
// failure.
func (b *Balance) Split(amount uint64) (Balance, error) {
	if amount > b.amount {
		return Balance{denom: b.denom}, fmt.Errorf("%w: want %d, have %d %s", ErrInsufficientBalance, amount, b.amount, b.denom)
	}
	b.amount -= amount
	return Balance{denom: b.denom, amount: amount}, nil
}

// SplitAll empties b and returns the whole holding.
func (b *Balance) SplitAll() Balance {
	out := Balance{denom: b.denom, amount: b.amount}
	b.amount = 0
	return out
}

// Supply is the outstanding total of a mintable, burnable unit.
type Supply struct {
	denom string
	total uint64
}

// NewSupply creates an empty supply for the given denomination.
func NewSupply(denom string) *Supply {
	return &Supply{denom: denom}
}

// Denom returns the unit's denomination.
func (s *Supply) Denom() string {
	return s.denom
}

// Total returns the outstanding units: everything minted minus everything
// burned.
func (s *Supply) Total() uint64 {
	return s.total
}

// Mint increases the supply and returns the freshly minted balance.
func (s *Supply) Mint(amount uint64) (Balance, error) {
	if amount > math.MaxUint64-s.total {
		return Balance{denom: s.denom}, fmt.Errorf("%w: supply %d + mint %d", ErrAmountOverflow, s.total, amount)
	}
	s.total += amount
	return Balance{denom: s.denom, amount: amount}, nil
}

// Burn destroys the given balance, decreasing the supply by its amount.
func (s *Supply) Burn(b Balance) error {
	if b.denom != s.denom {
		return fmt.Errorf("%w: supply %s, balance %s", ErrDenomMismatch, s.denom, b.denom)
	}
	if b.amount > s.total {
		return fmt.Errorf("%w: burn %d exceeds supply %d", ErrInsufficientBalance, b.amount, s.total)
	}
	s.total -= b.amount
	return nil
}
