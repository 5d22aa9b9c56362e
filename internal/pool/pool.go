/*
The liquidity pool mints and burns pool shares against the vault's synthetic
unit, priced by AUM read fresh inside the same call that mutates shares.

Deposits reset a per-position cooldown; redemptions are blocked until the
cooldown elapses, which closes the near-instant deposit/withdraw arbitrage
window against a moving AUM.
*/

package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/auth"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/decimal"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/events"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/logger"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/token"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/vault"
)

const (
	// CurrentVersion is the pool's schema version.
	CurrentVersion uint64 = 2

	// ShareDenom is the denomination of the pool share unit.
	ShareDenom = "jlp"

	// CooldownSeconds is the minimum time after a deposit before that
	// position may redeem. Strictly greater-than: a redemption at exactly
	// last_add + CooldownSeconds is still refused.
	CooldownSeconds int64 = 900
)

// Error definitions for zero-tolerance error handling
var (
	ErrVersionMismatch = errors.New("pool version mismatch")
	ErrPoolPaused      = errors.New("pool is paused")
	ErrCooldownActive  = errors.New("withdrawal cooldown active")
	ErrAmountTooSmall  = errors.New("amount too small")
	ErrEmptyPool       = errors.New("pool has no shares outstanding")
)

// Position is one liquidity provider's stake. Created explicitly per user,
// owned by that user, never auto-destroyed even at zero balance.
type Position struct {
	lastAddTimestamp int64
	shareBalance     token.Balance
}

// NewPosition creates an empty position: zero balance, zero timestamp.
func NewPosition() *Position {
	return &Position{shareBalance: token.Zero(ShareDenom)}
}

// ShareAmount returns the shares the position holds.
func (p *Position) ShareAmount() uint64 {
	return p.shareBalance.Amount()
}

// LastAddTimestamp returns the unix second of the most recent deposit.
func (p *Position) LastAddTimestamp() int64 {
	return p.lastAddTimestamp
}

// Pool is the singleton share issuer over the vault's synthetic unit.
type Pool struct {
	mu sync.Mutex

	version     uint64
	shareSupply *token.Supply

	// syntheticAvailableAmount mirrors syntheticAvailableBalance; this pool
	// holding is the AUM proxy backing the shares.
	syntheticAvailableAmount  uint64
	syntheticAvailableBalance token.Balance

	paused bool

	vault *vault.Vault
	sink  events.Sink
	log   zerolog.Logger
}

// New creates an empty, unpaused pool over the given vault.
func New(v *vault.Vault, sink events.Sink) *Pool {
	if sink == nil {
		sink = events.LogSink{}
	}
	return &Pool{
		version:                   CurrentVersion,
		shareSupply:               token.NewSupply(ShareDenom),
		syntheticAvailableBalance: token.Zero(vault.SyntheticDenom),
		vault:                     v,
		sink:                      sink,
		log:                       logger.GetForComponent("liquidity_pool"),
	}
}

func (p *Pool) assertVersion() error {
	if p.version != CurrentVersion {
		return fmt.Errorf("%w: pool at %d, code at %d", ErrVersionMismatch, p.version, CurrentVersion)
	}
	return nil
}

// AddLiquidity deposits collateral through the vault's reserve at
// reserveIndex, mints synthetic units into the pool's holding and mints
// shares to the position. Returns the shares minted.
//
// AUM is read at the upper bound BEFORE the buy so the fresh deposit cannot
// dilute itself by being counted on both sides of the share formula.
func (p *Pool) AddLiquidity(position *Position, deposit token.Balance, reserveIndex int, now time.Time) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.assertVersion(); err != nil {
		return 0, err
	}
	if p.paused {
		return 0, ErrPoolPaused
	}

	aum, err := p.vault.AUM(true, now)
	if err != nil {
		return 0, err
	}

	collateralAmount := deposit.Amount()
	assetType := deposit.Denom()

	synthetic, err := p.vault.BuySynthetic(reserveIndex, deposit, now)
	if err != nil {
		if errors.Is(err, vault.ErrAmountTooSmall) {
			return 0, fmt.Errorf("%w: deposit mints no synthetic units", ErrAmountTooSmall)
		}
		return 0, err
	}
	syntheticAmount := synthetic.Amount()

	sharesMinted := syntheticAmount // bootstrap 1:1 when no shares exist
	if supply := p.shareSupply.Total(); supply > 0 {
		shares, err := decimal.FromUint64(syntheticAmount).
			Mul(decimal.FromUint64(supply)).
			Quo(decimal.FromUint64(aum))
		if err != nil {
			return 0, err
		}
		sharesMinted, err = shares.FloorUint64()
		if err != nil {
			return 0, err
		}
	}
	if sharesMinted == 0 {
		return 0, fmt.Errorf("%w: deposit mints no shares", ErrAmountTooSmall)
	}

	if err := p.syntheticAvailableBalance.Join(synthetic); err != nil {
		return 0, err
	}
	p.syntheticAvailableAmount += syntheticAmount

	shareBalance, err := p.shareSupply.Mint(sharesMinted)
	if err != nil {
		return 0, err
	}
	if err := position.shareBalance.Join(shareBalance); err != nil {
		return 0, err
	}

	// Every deposit, including a top-up, restarts the cooldown.
	position.lastAddTimestamp = now.Unix()

	p.sink.Emit(events.AddLiquidity{
		AssetType:        assetType,
		CollateralAmount: collateralAmount,
		SyntheticAmount:  syntheticAmount,
		SharesMinted:     sharesMinted,
		AUM:              aum,
	})

	p.log.Debug().
		Str("assetType", assetType).
		Uint64("collateral", collateralAmount).
		Uint64("synthetic", syntheticAmount).
		Uint64("shares", sharesMinted).
		Msg("Liquidity added")

	return sharesMinted, nil
}

// RemoveLiquidity redeems sharesAmount of the position's shares for
// collateral from the reserve at reserveIndex.
//
// AUM is read at the lower bound so the payout is never overstated. When the
// pool's own synthetic buffer cannot cover the redemption, the shortfall is
// minted through the vault's elastic supply path, which dilutes total supply
// and is separately observable.
func (p *Pool) RemoveLiquidity(position *Position, reserveIndex int, sharesAmount uint64, now time.Time) (token.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.assertVersion(); err != nil {
		return token.Balance{}, err
	}
	if p.paused {
		return token.Balance{}, ErrPoolPaused
	}
	if elapsed := now.Unix() - position.lastAddTimestamp; elapsed <= CooldownSeconds {
		return token.Balance{}, fmt.Errorf("%w: %ds elapsed of %ds", ErrCooldownActive, elapsed, CooldownSeconds)
	}

	shareSupply := p.shareSupply.Total()
	if shareSupply == 0 {
		return token.Balance{}, ErrEmptyPool
	}

	aum, err := p.vault.AUM(false, now)
	if err != nil {
		return token.Balance{}, err
	}

	syntheticValue, err := decimal.FromUint64(sharesAmount).
		Mul(decimal.FromUint64(aum)).
		Quo(decimal.FromUint64(shareSupply))
	if err != nil {
		return token.Balance{}, err
	}
	syntheticAmount, err := syntheticValue.FloorUint64()
	if err != nil {
		return token.Balance{}, err
	}
	if syntheticAmount == 0 {
		return token.Balance{}, fmt.Errorf("%w: %d shares redeem no synthetic units", ErrAmountTooSmall, sharesAmount)
	}
	if position.ShareAmount() < sharesAmount {
		return token.Balance{}, fmt.Errorf("%w: position holds %d shares, want %d", token.ErrInsufficientBalance, position.ShareAmount(), sharesAmount)
	}

	// Confirm the vault-side redemption succeeds before committing any pool
	// state, the elastic top-up in particular. The vault is not covered by
	// the pool's mutex, so this quote can still be invalidated by a
	// concurrent price refresh before the sell below; the sell path must
	// roll the pool ledger back in that case.
	if _, _, err := p.vault.QuoteSellSynthetic(reserveIndex, syntheticAmount, now); err != nil {
		if errors.Is(err, vault.ErrAmountTooSmall) {
			return token.Balance{}, fmt.Errorf("%w: redemption pays out no collateral", ErrAmountTooSmall)
		}
		return token.Balance{}, err
	}

	if p.syntheticAvailableAmount < syntheticAmount {
		shortfall := syntheticAmount - p.syntheticAvailableAmount
		topUp, err := p.vault.IncreaseSynthetic(shortfall)
		if err != nil {
			return token.Balance{}, err
		}
		if err := p.syntheticAvailableBalance.Join(topUp); err != nil {
			return token.Balance{}, err
		}
		p.syntheticAvailableAmount += shortfall

		p.log.Warn().
			Uint64("shortfall", shortfall).
			Uint64("redemption", syntheticAmount).
			Msg("Redemption shortfall covered by elastic mint")
	}

	syntheticOut, err := p.syntheticAvailableBalance.Split(syntheticAmount)
	if err != nil {
		return token.Balance{}, err
	}
	p.syntheticAvailableAmount -= syntheticAmount

	collateral, err := p.vault.SellSynthetic(reserveIndex, syntheticOut, now)
	if err != nil {
		// The reserve price may have moved between the quote and the sell.
		// Rejoin the split units so the failed call leaves the pool ledger
		// exactly as it found it; the supply invariant (vault supply equals
		// units outstanding) survives because nothing was burned.
		if joinErr := p.syntheticAvailableBalance.Join(syntheticOut); joinErr != nil {
			return token.Balance{}, errors.Join(err, joinErr)
		}
		p.syntheticAvailableAmount += syntheticAmount

		p.log.Warn().
			Err(err).
			Uint64("synthetic", syntheticAmount).
			Msg("Redemption failed after quote, pool buffer restored")

		return token.Balance{}, err
	}

	burned, err := position.shareBalance.Split(sharesAmount)
	if err != nil {
		return token.Balance{}, err
	}
	if err := p.shareSupply.Burn(burned); err != nil {
		return token.Balance{}, err
	}

	p.sink.Emit(events.RemoveLiquidity{
		AssetType:        collateral.Denom(),
		SharesBurned:     sharesAmount,
		SyntheticAmount:  syntheticAmount,
		CollateralAmount: collateral.Amount(),
		AUM:              aum,
	})

	p.log.Debug().
		Uint64("shares", sharesAmount).
		Uint64("synthetic", syntheticAmount).
		Uint64("collateral", collateral.Amount()).
		Msg("Liquidity removed")

	return collateral, nil
}

// SharePrice returns floor(1,000,000 x aum / share supply): the USD value of
// one share at the synthetic unit's fixed scale. Pure read; same bound
// semantics as the mutating paths.
func (p *Pool) SharePrice(maximise bool, now time.Time) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	shareSupply := p.shareSupply.Total()
	if shareSupply == 0 {
		return 0, ErrEmptyPool
	}

	aum, err := p.vault.AUM(maximise, now)
	if err != nil {
		return 0, err
	}

	price, err := decimal.FromUint64(vault.SyntheticUnitsPerUSD).
		Mul(decimal.FromUint64(aum)).
		Quo(decimal.FromUint64(shareSupply))
	if err != nil {
		return 0, err
	}
	return price.FloorUint64()
}

// SetPause toggles the pool-wide pause switch. Handler capability required.
func (p *Pool) SetPause(cap *auth.HandlerCap, paused bool) error {
	if cap == nil {
		return vault.ErrMissingCapability
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.assertVersion(); err != nil {
		return err
	}

	p.paused = paused
	p.sink.Emit(events.PauseToggle{Paused: paused})
	p.log.Info().Bool("paused", paused).Msg("Pool pause toggled")
	return nil
}

// MigrateVersion advances the pool exactly one step to CurrentVersion.
func (p *Pool) MigrateVersion(cap *auth.AdminCap) error {
	if cap == nil {
		return vault.ErrMissingCapability
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.version != CurrentVersion-1 {
		return fmt.Errorf("%w: cannot migrate from %d to %d", ErrVersionMismatch, p.version, CurrentVersion)
	}
	p.version = CurrentVersion
	return nil
}

// Paused reports the pause switch.
func (p *Pool) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// ShareSupply returns the outstanding pool shares.
func (p *Pool) ShareSupply() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shareSupply.Total()
}

// SyntheticHoldings returns the pool's own synthetic-unit holding.
func (p *Pool) SyntheticHoldings() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.syntheticAvailableAmount
}
