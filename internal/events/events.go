/*
This package defines the flat event records the vault and pool emit for
off-chain consumers and indexers.

Emission is append-only and never affects control flow: a Sink that fails
must swallow the failure (logging it), never surface it to the operation that
emitted the event.
*/

package events

import (
	"time"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/logger"
)

// Kind tags an event record for sinks that index by type.
type Kind string

const (
	KindMint            Kind = "mint"
	KindBurn            Kind = "burn"
	KindElasticMint     Kind = "elastic_mint"
	KindFeeClaim        Kind = "fee_claim"
	KindSettlement      Kind = "settlement"
	KindEscrowDeposit   Kind = "escrow_deposit"
	KindEscrowWithdraw  Kind = "escrow_withdraw"
	KindAddLiquidity    Kind = "add_liquidity"
	KindRemoveLiquidity Kind = "remove_liquidity"
	KindPauseToggle     Kind = "pause_toggle"
	KindConfigUpdate    Kind = "config_update"
)

// Event is any emittable record.
type Event interface {
	Kind() Kind
}

// Mint records a buy of synthetic units against a reserve.
type Mint struct {
	AssetType        string `json:"asset_type"`
	SyntheticAmount  uint64 `json:"synthetic_amount"`
	CollateralAmount uint64 `json:"collateral_amount"`
	FeeAmount        uint64 `json:"fee_amount"`
	FeeBps           uint64 `json:"fee_bps"`
}

func (Mint) Kind() Kind { return KindMint }

// Burn records a sell of synthetic units back into collateral.
type Burn struct {
	AssetType        string `json:"asset_type"`
	SyntheticAmount  uint64 `json:"synthetic_amount"`
	CollateralAmount uint64 `json:"collateral_amount"`
	FeeAmount        uint64 `json:"fee_amount"`
	FeeBps           uint64 `json:"fee_bps"`
}

func (Burn) Kind() Kind { return KindBurn }

// ElasticMint records an uncollateralized supply top-up. It changes total
// supply without a matching deposit, so it must always be independently
// observable.
type ElasticMint struct {
	SyntheticAmount uint64 `json:"synthetic_amount"`
	SupplyAfter     uint64 `json:"supply_after"`
}

func (ElasticMint) Kind() Kind { return KindElasticMint }

// FeeClaim records an admin withdrawal of a reserve's accrued fees.
type FeeClaim struct {
	AssetType string `json:"asset_type"`
	FeeAmount uint64 `json:"fee_amount"`
}

func (FeeClaim) Kind() Kind { return KindFeeClaim }

// Settlement records collateral moved between a reserve and a settlement
// escrow without touching synthetic supply.
type Settlement struct {
	AssetType string `json:"asset_type"`
	Amount    uint64 `json:"amount"`
	IsInflow  bool   `json:"is_inflow"`
}

func (Settlement) Kind() Kind { return KindSettlement }

// EscrowDeposit records a custodial deposit into an escrow ledger.
type EscrowDeposit struct {
	AssetType  string `json:"asset_type"`
	Amount     uint64 `json:"amount"`
	Account    string `json:"account"`
	IsInternal bool   `json:"is_internal"`
}

func (EscrowDeposit) Kind() Kind { return KindEscrowDeposit }

// EscrowWithdraw records a custodial withdrawal from an escrow ledger.
type EscrowWithdraw struct {
	AssetType  string `json:"asset_type"`
	Amount     uint64 `json:"amount"`
	IsInternal bool   `json:"is_internal"`
}

func (EscrowWithdraw) Kind() Kind { return KindEscrowWithdraw }

// AddLiquidity records a pool deposit and the shares minted for it.
type AddLiquidity struct {
	AssetType        string `json:"asset_type"`
	CollateralAmount uint64 `json:"collateral_amount"`
	SyntheticAmount  uint64 `json:"synthetic_amount"`
	SharesMinted     uint64 `json:"shares_minted"`
	AUM              uint64 `json:"aum"`
}

func (AddLiquidity) Kind() Kind { return KindAddLiquidity }

// RemoveLiquidity records a pool redemption.
type RemoveLiquidity struct {
	AssetType        string `json:"asset_type"`
	SharesBurned     uint64 `json:"shares_burned"`
	SyntheticAmount  uint64 `json:"synthetic_amount"`
	CollateralAmount uint64 `json:"collateral_amount"`
	AUM              uint64 `json:"aum"`
}

func (RemoveLiquidity) Kind() Kind { return KindRemoveLiquidity }

// PauseToggle records a change of the pool's pause switch.
type PauseToggle struct {
	Paused bool `json:"paused"`
}

func (PauseToggle) Kind() Kind { return KindPauseToggle }

// ConfigUpdate records a vault config replacement.
type ConfigUpdate struct {
	LiquidityFeeBps uint64 `json:"liquidity_fee_bps"`
	ElasticMintCap  uint64 `json:"elastic_mint_cap"`
}

func (ConfigUpdate) Kind() Kind { return KindConfigUpdate }

// Sink receives emitted events. Emit must not block the caller and must not
// fail it.
type Sink interface {
	Emit(e Event)
}

// LogSink writes every event to the structured log.
type LogSink struct{}

// Emit logs the event with its kind and payload.
func (LogSink) Emit(e Event) {
	eventLogger.Info().
		Str("kind", string(e.Kind())).
		Time("emitted_at", time.Now().UTC()).
		Interface("event", e).
		Msg("Event emitted")
}

var eventLogger = logger.GetForComponent("events")

// MultiSink fans an event out to several sinks.
type MultiSink []Sink

// Emit delivers the event to every sink in order.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Discard drops all events. Used by tests that do not assert on emission.
type Discard struct{}

func (Discard) Emit(Event) {}
