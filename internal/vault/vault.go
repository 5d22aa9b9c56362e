/*
The Vault is the reserve registry and the synthetic unit's supply authority.

Buying mints synthetic units against oracle-priced collateral at the lower
price bound; selling redeems them at the upper bound. Both directions round
in the protocol's favor: fees are ceil-rounded, credits floored.

Every state-changing entry point asserts the schema version, checks all of
its preconditions up front and only then mutates, so a failed call leaves no
partial state behind.
*/

package vault

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/auth"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/decimal"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/events"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/logger"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/oracle"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/token"
)

const (
	// CurrentVersion is the schema version every mutating call asserts.
	CurrentVersion uint64 = 2

	// SyntheticDenom is the denomination of the minted synthetic stable unit.
	SyntheticDenom = "usj"

	// SyntheticUnitsPerUSD fixes the synthetic unit's scale: 1,000,000
	// synthetic minor units per USD.
	SyntheticUnitsPerUSD uint64 = 1_000_000

	// MaxFeeBps bounds the liquidity fee at 100%.
	MaxFeeBps uint64 = 10_000
)

// Config is the vault's replaceable configuration cell. It is validated and
// swapped atomically by UpdateConfig.
type Config struct {
	// LiquidityFeeBps is the fee, in basis points, charged on every buy and
	// sell of the synthetic unit.
	LiquidityFeeBps uint64

	// ElasticMintCap bounds a single uncollateralized supply top-up
	// (IncreaseSynthetic). 0 means uncapped.
	ElasticMintCap uint64
}

// Validate rejects configs the vault must never accept.
func (c Config) Validate() error {
	if c.LiquidityFeeBps > MaxFeeBps {
		return fmt.Errorf("%w: liquidity fee %d bps exceeds %d", ErrInvalidConfig, c.LiquidityFeeBps, MaxFeeBps)
	}
	return nil
}

// Vault is the singleton registry of reserves plus the synthetic supply.
// All methods serialize on an internal mutex; each call is atomic.
type Vault struct {
	mu sync.Mutex

	version  uint64
	reserves []*Reserve

	// syntheticSupplyCounter mirrors syntheticSupply.Total(); both change
	// together on every mint and burn.
	syntheticSupplyCounter uint64
	syntheticSupply        *token.Supply

	config       Config
	maxPriceAgeS int64

	sink events.Sink
	log  zerolog.Logger
}

// New creates a vault at the current schema version. maxPriceAgeS is the
// staleness threshold in seconds for every price-dependent read; the
// production deployment runs with 0, the strictest possible policy.
func New(cfg Config, maxPriceAgeS int64, sink events.Sink) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if maxPriceAgeS < 0 {
		return nil, fmt.Errorf("%w: max price age %d is negative", ErrInvalidConfig, maxPriceAgeS)
	}
	if sink == nil {
		sink = events.LogSink{}
	}

	return &Vault{
		version:         CurrentVersion,
		syntheticSupply: token.NewSupply(SyntheticDenom),
		config:          cfg,
		maxPriceAgeS:    maxPriceAgeS,
		sink:            sink,
		log:             logger.GetForComponent("vault"),
	}, nil
}

// assertVersion gates every mutating entry point on the schema version.
func (v *Vault) assertVersion() error {
	if v.version != CurrentVersion {
		return fmt.Errorf("%w: vault at %d, code at %d", ErrVersionMismatch, v.version, CurrentVersion)
	}
	return nil
}

// reserveAt returns the reserve at index or ErrReserveNotFound.
func (v *Vault) reserveAt(index int) (*Reserve, error) {
	if index < 0 || index >= len(v.reserves) {
		return nil, fmt.Errorf("%w: index %d, have %d reserves", ErrReserveNotFound, index, len(v.reserves))
	}
	return v.reserves[index], nil
}

// AddReserve registers a new collateral asset. Admin only. The reserve is
// appended at index == current length; reserves are never removed.
func (v *Vault) AddReserve(cap *auth.AdminCap, assetType string, mintDecimals uint8, update oracle.PriceUpdate, now time.Time) (int, error) {
	if cap == nil {
		return 0, ErrMissingCapability
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertVersion(); err != nil {
		return 0, err
	}
	// Duplicate detection is a linear scan: the reserve list is small and
	// admin-curated, O(reserve count) is fine here.
	for _, r := range v.reserves {
		if r.assetType == assetType {
			return 0, fmt.Errorf("%w: %s at index %d", ErrDuplicateReserve, assetType, r.arrayIndex)
		}
	}

	index := len(v.reserves)
	reserve, err := newReserve(index, assetType, mintDecimals, update, now)
	if err != nil {
		return 0, err
	}
	v.reserves = append(v.reserves, reserve)

	v.log.Info().
		Str("assetType", assetType).
		Int("index", index).
		Str("feedId", update.FeedID).
		Msg("Reserve added")

	return index, nil
}

// RefreshReservePrice overwrites the reserve's quote pair from a fresh
// oracle observation. Anyone may refresh; the observation itself is the
// authority.
func (v *Vault) RefreshReservePrice(index int, update oracle.PriceUpdate, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertVersion(); err != nil {
		return err
	}
	reserve, err := v.reserveAt(index)
	if err != nil {
		return err
	}
	return reserve.updatePrice(update, now)
}

// ChangeReservePriceFeed rebinds a reserve to a different oracle feed. Admin
// only, and always an explicit action, never implicit.
func (v *Vault) ChangeReservePriceFeed(cap *auth.AdminCap, index int, update oracle.PriceUpdate) error {
	if cap == nil {
		return ErrMissingCapability
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertVersion(); err != nil {
		return err
	}
	reserve, err := v.reserveAt(index)
	if err != nil {
		return err
	}

	v.log.Info().
		Str("assetType", reserve.assetType).
		Str("oldFeedId", reserve.priceFeedID).
		Str("newFeedId", update.FeedID).
		Msg("Reserve price feed changed")

	reserve.changePriceFeed(update)
	return nil
}

// BuySynthetic mints synthetic units against a collateral deposit. Called by
// the liquidity pool.
//
// The fee is ceil-rounded off the deposit, the remainder is valued at the
// lower price bound and the synthetic result floored: the protocol never
// overpays the depositor and never undercharges the fee.
func (v *Vault) BuySynthetic(index int, deposit token.Balance, now time.Time) (token.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertVersion(); err != nil {
		return token.Zero(SyntheticDenom), err
	}
	reserve, err := v.reserveAt(index)
	if err != nil {
		return token.Zero(SyntheticDenom), err
	}
	if deposit.Denom() != reserve.assetType {
		return token.Zero(SyntheticDenom), fmt.Errorf("%w: reserve holds %s, deposit is %s", ErrWrongAssetType, reserve.assetType, deposit.Denom())
	}
	if err := reserve.assertPriceFresh(now, v.maxPriceAgeS); err != nil {
		return token.Zero(SyntheticDenom), err
	}

	depositAmount := deposit.Amount()
	feeAmount, err := decimal.FromBps(v.config.LiquidityFeeBps).Mul(decimal.FromUint64(depositAmount)).CeilUint64()
	if err != nil {
		return token.Zero(SyntheticDenom), err
	}

	usdValue, err := reserve.tokenToUSD(depositAmount-feeAmount, BoundLower)
	if err != nil {
		return token.Zero(SyntheticDenom), err
	}
	syntheticAmount, err := usdValue.Mul(decimal.FromUint64(SyntheticUnitsPerUSD)).FloorUint64()
	if err != nil {
		return token.Zero(SyntheticDenom), err
	}
	if syntheticAmount == 0 {
		return token.Zero(SyntheticDenom), fmt.Errorf("%w: deposit of %d %s mints no synthetic units", ErrAmountTooSmall, depositAmount, reserve.assetType)
	}

	// Preconditions hold; mutate.
	feeBalance, err := deposit.Split(feeAmount)
	if err != nil {
		return token.Zero(SyntheticDenom), err
	}
	if err := reserve.receiveFee(feeBalance); err != nil {
		return token.Zero(SyntheticDenom), err
	}
	if err := reserve.receiveToken(deposit); err != nil {
		return token.Zero(SyntheticDenom), err
	}

	minted, err := v.syntheticSupply.Mint(syntheticAmount)
	if err != nil {
		return token.Zero(SyntheticDenom), err
	}
	v.syntheticSupplyCounter += syntheticAmount

	v.sink.Emit(events.Mint{
		AssetType:        reserve.assetType,
		SyntheticAmount:  syntheticAmount,
		CollateralAmount: depositAmount,
		FeeAmount:        feeAmount,
		FeeBps:           v.config.LiquidityFeeBps,
	})

	v.log.Debug().
		Str("assetType", reserve.assetType).
		Uint64("collateral", depositAmount).
		Uint64("fee", feeAmount).
		Uint64("synthetic", syntheticAmount).
		Msg("Synthetic units minted")

	return minted, nil
}

// QuoteSellSynthetic computes, without mutating anything, the collateral a
// sell of syntheticAmount against the reserve at index would return and the
// fee it would charge. Used by callers that must know a redemption will
// succeed before committing their own state, and by the read API.
func (v *Vault) QuoteSellSynthetic(index int, syntheticAmount uint64, now time.Time) (payout uint64, fee uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.quoteSellLocked(index, syntheticAmount, now)
}

func (v *Vault) quoteSellLocked(index int, syntheticAmount uint64, now time.Time) (uint64, uint64, error) {
	reserve, err := v.reserveAt(index)
	if err != nil {
		return 0, 0, err
	}
	if err := reserve.assertPriceFresh(now, v.maxPriceAgeS); err != nil {
		return 0, 0, err
	}

	// Synthetic units back to USD at the fixed scale, then to tokens at the
	// upper bound: the redeemer receives no more than the conservative
	// valuation allows.
	usdValue, err := decimal.FromUint64(syntheticAmount).Quo(decimal.FromUint64(SyntheticUnitsPerUSD))
	if err != nil {
		return 0, 0, err
	}
	tokenValue, err := reserve.usdToToken(usdValue, BoundUpper)
	if err != nil {
		return 0, 0, err
	}
	tokenAmount, err := tokenValue.FloorUint64()
	if err != nil {
		return 0, 0, err
	}
	if tokenAmount == 0 {
		return 0, 0, fmt.Errorf("%w: %d synthetic units redeem no %s", ErrAmountTooSmall, syntheticAmount, reserve.assetType)
	}
	if tokenAmount > reserve.availableAmount {
		return 0, 0, fmt.Errorf("%w: redemption needs %d %s, reserve holds %d",
			token.ErrInsufficientBalance, tokenAmount, reserve.assetType, reserve.availableAmount)
	}

	feeAmount, err := decimal.FromBps(v.config.LiquidityFeeBps).Mul(decimal.FromUint64(tokenAmount)).CeilUint64()
	if err != nil {
		return 0, 0, err
	}
	return tokenAmount - feeAmount, feeAmount, nil
}

// SellSynthetic burns the synthetic input and pays out collateral from the
// reserve at index. Mirror of BuySynthetic; called by the liquidity pool.
func (v *Vault) SellSynthetic(index int, syntheticIn token.Balance, now time.Time) (token.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertVersion(); err != nil {
		return token.Balance{}, err
	}
	reserve, err := v.reserveAt(index)
	if err != nil {
		return token.Balance{}, err
	}
	if syntheticIn.Denom() != SyntheticDenom {
		return token.Zero(reserve.assetType), fmt.Errorf("%w: expected %s, got %s", ErrWrongAssetType, SyntheticDenom, syntheticIn.Denom())
	}

	syntheticAmount := syntheticIn.Amount()
	payout, feeAmount, err := v.quoteSellLocked(index, syntheticAmount, now)
	if err != nil {
		return token.Zero(reserve.assetType), err
	}

	// Preconditions hold; mutate.
	if err := v.syntheticSupply.Burn(syntheticIn); err != nil {
		return token.Zero(reserve.assetType), err
	}
	v.syntheticSupplyCounter -= syntheticAmount

	out, err := reserve.backToken(payout + feeAmount)
	if err != nil {
		return token.Zero(reserve.assetType), err
	}
	feeBalance, err := out.Split(feeAmount)
	if err != nil {
		return token.Zero(reserve.assetType), err
	}
	if err := reserve.receiveFee(feeBalance); err != nil {
		return token.Zero(reserve.assetType), err
	}

	v.sink.Emit(events.Burn{
		AssetType:        reserve.assetType,
		SyntheticAmount:  syntheticAmount,
		CollateralAmount: out.Amount(),
		FeeAmount:        feeAmount,
		FeeBps:           v.config.LiquidityFeeBps,
	})

	v.log.Debug().
		Str("assetType", reserve.assetType).
		Uint64("synthetic", syntheticAmount).
		Uint64("collateral", out.Amount()).
		Uint64("fee", feeAmount).
		Msg("Synthetic units burned")

	return out, nil
}

// IncreaseSynthetic mints synthetic units with no collateral backing change.
// This is the elastic-supply escape valve that lets the pool honor a valid
// redemption when its synthetic buffer is thin; it dilutes total supply and
// is therefore always emitted as its own event.
func (v *Vault) IncreaseSynthetic(amount uint64) (token.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertVersion(); err != nil {
		return token.Zero(SyntheticDenom), err
	}
	if cap := v.config.ElasticMintCap; cap != 0 && amount > cap {
		return token.Zero(SyntheticDenom), fmt.Errorf("%w: %d > %d", ErrElasticMintCapExceeded, amount, cap)
	}

	minted, err := v.syntheticSupply.Mint(amount)
	if err != nil {
		return token.Zero(SyntheticDenom), err
	}
	v.syntheticSupplyCounter += amount

	v.sink.Emit(events.ElasticMint{
		SyntheticAmount: amount,
		SupplyAfter:     v.syntheticSupplyCounter,
	})

	v.log.Warn().
		Uint64("amount", amount).
		Uint64("supplyAfter", v.syntheticSupplyCounter).
		Msg("Elastic supply top-up minted without collateral backing")

	return minted, nil
}

// AUM sums all reserves' available collateral in USD, scaled to the
// synthetic unit's 1,000,000-per-USD fixed scale. With maximise it values at
// the upper bound, otherwise the lower. A single stale-priced reserve makes
// the whole computation fail; it is never silently skipped.
func (v *Vault) AUM(maximise bool, now time.Time) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.aumLocked(maximise, now)
}

func (v *Vault) aumLocked(maximise bool, now time.Time) (uint64, error) {
	bound := BoundLower
	if maximise {
		bound = BoundUpper
	}

	total := decimal.Zero()
	for _, reserve := range v.reserves {
		if err := reserve.assertPriceFresh(now, v.maxPriceAgeS); err != nil {
			return 0, err
		}
		usd, err := reserve.tokenToUSD(reserve.availableAmount, bound)
		if err != nil {
			return 0, err
		}
		total = total.Add(usd)
	}

	return total.Mul(decimal.FromUint64(SyntheticUnitsPerUSD)).FloorUint64()
}

// ClaimFees withdraws all accrued fees for the reserve at index. Admin only.
// assetType must match the reserve's binding; a mismatch is refused rather
// than silently paying out a different asset.
func (v *Vault) ClaimFees(cap *auth.AdminCap, index int, assetType string) (token.Balance, error) {
	if cap == nil {
		return token.Balance{}, ErrMissingCapability
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertVersion(); err != nil {
		return token.Balance{}, err
	}
	reserve, err := v.reserveAt(index)
	if err != nil {
		return token.Balance{}, err
	}
	if reserve.assetType != assetType {
		return token.Zero(assetType), fmt.Errorf("%w: reserve at %d holds %s, not %s", ErrWrongAssetType, index, reserve.assetType, assetType)
	}

	claimed := reserve.claimFees()

	v.sink.Emit(events.FeeClaim{
		AssetType: reserve.assetType,
		FeeAmount: claimed.Amount(),
	})

	return claimed, nil
}

// AdminSettle moves collateral between the reserve at index and a settlement
// escrow without touching synthetic supply. Handler capability required;
// used for off-protocol rebalancing.
func (v *Vault) AdminSettle(cap *auth.HandlerCap, index int, escrow *SettlementEscrow, amount uint64, isInflow bool) error {
	if cap == nil {
		return ErrMissingCapability
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertVersion(); err != nil {
		return err
	}
	reserve, err := v.reserveAt(index)
	if err != nil {
		return err
	}
	if escrow.AssetType() != reserve.assetType {
		return fmt.Errorf("%w: reserve holds %s, escrow is %s", ErrWrongAssetType, reserve.assetType, escrow.AssetType())
	}

	if isInflow {
		in, err := escrow.Withdraw(amount, true)
		if err != nil {
			return err
		}
		if err := reserve.receiveToken(in); err != nil {
			return err
		}
	} else {
		out, err := reserve.backToken(amount)
		if err != nil {
			return err
		}
		if err := escrow.Deposit(out, "vault", true); err != nil {
			return err
		}
	}

	v.sink.Emit(events.Settlement{
		AssetType: reserve.assetType,
		Amount:    amount,
		IsInflow:  isInflow,
	})

	return nil
}

// UpdateConfig validates and atomically swaps the config cell. Admin only.
func (v *Vault) UpdateConfig(cap *auth.AdminCap, cfg Config) error {
	if cap == nil {
		return ErrMissingCapability
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.assertVersion(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	v.config = cfg

	v.sink.Emit(events.ConfigUpdate{
		LiquidityFeeBps: cfg.LiquidityFeeBps,
		ElasticMintCap:  cfg.ElasticMintCap,
	})

	return nil
}

// MigrateVersion advances the vault exactly one step to CurrentVersion.
// Fails when the vault is already current or more than one version behind.
func (v *Vault) MigrateVersion(cap *auth.AdminCap) error {
	if cap == nil {
		return ErrMissingCapability
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.version != CurrentVersion-1 {
		return fmt.Errorf("%w: cannot migrate from %d to %d", ErrVersionMismatch, v.version, CurrentVersion)
	}
	v.version = CurrentVersion

	v.log.Info().Uint64("version", v.version).Msg("Vault migrated")
	return nil
}

// Version returns the vault's schema version.
func (v *Vault) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// Config returns the active configuration.
func (v *Vault) Config() Config {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.config
}

// SyntheticSupply returns the outstanding synthetic units.
func (v *Vault) SyntheticSupply() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.syntheticSupplyCounter
}

// ReserveCount returns the number of registered reserves.
func (v *Vault) ReserveCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.reserves)
}

// ReserveIndexByAsset finds a reserve by asset type. Linear scan,
// O(reserve count); intended for occasional lookups, not hot paths.
func (v *Vault) ReserveIndexByAsset(assetType string) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range v.reserves {
		if r.assetType == assetType {
			return r.arrayIndex, true
		}
	}
	return 0, false
}

// ReserveInfoAt returns a read-only snapshot of the reserve at index.
func (v *Vault) ReserveInfoAt(index int) (ReserveInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	reserve, err := v.reserveAt(index)
	if err != nil {
		return ReserveInfo{}, err
	}
	return reserve.info(), nil
}

// ReserveInfos returns read-only snapshots of all reserves in index order.
func (v *Vault) ReserveInfos() []ReserveInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	infos := make([]ReserveInfo, 0, len(v.reserves))
	for _, r := range v.reserves {
		infos = append(infos, r.info())
	}
	return infos
}
