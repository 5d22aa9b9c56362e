/*
The settlement escrow is the thin custodial ledger privileged operators use
to move collateral into and out of a reserve out-of-band (rebalancing). Its
bookkeeping is deliberately simple: one asset, one balance, checked both
ways.
*/

package vault

import (
	"fmt"
	"sync"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/auth"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/events"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/token"
)

// SettlementEscrow is a per-asset deposit/withdraw ledger. The asset type is
// bound at creation and checked on every deposit.
type SettlementEscrow struct {
	mu sync.Mutex

	assetType string

	// availableAmount mirrors availableBalance, same lockstep rule as the
	// reserve's ledger.
	availableAmount  uint64
	availableBalance token.Balance

	sink events.Sink
}

// NewSettlementEscrow creates an empty escrow for the given asset.
func NewSettlementEscrow(assetType string, sink events.Sink) *SettlementEscrow {
	if sink == nil {
		sink = events.LogSink{}
	}
	return &SettlementEscrow{
		assetType:        assetType,
		availableBalance: token.Zero(assetType),
		sink:             sink,
	}
}

// AssetType returns the asset this escrow is bound to.
func (e *SettlementEscrow) AssetType() string {
	return e.assetType
}

// Amount returns the collateral currently held in escrow.
func (e *SettlementEscrow) Amount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.availableAmount
}

// Deposit credits the ledger. account names the depositor for the event
// record; isInternal marks protocol-initiated moves (vault settlement) as
// opposed to external custodial deposits.
func (e *SettlementEscrow) Deposit(b token.Balance, account string, isInternal bool) error {
	if b.Denom() != e.assetType {
		return fmt.Errorf("%w: escrow holds %s, deposit is %s", ErrWrongAssetType, e.assetType, b.Denom())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	amount := b.Amount()
	if err := e.availableBalance.Join(b); err != nil {
		return err
	}
	e.availableAmount += amount

	e.sink.Emit(events.EscrowDeposit{
		AssetType:  e.assetType,
		Amount:     amount,
		Account:    account,
		IsInternal: isInternal,
	})

	return nil
}

// Withdraw debits the ledger. Fails on underflow when amount exceeds the
// holding.
func (e *SettlementEscrow) Withdraw(amount uint64, isInternal bool) (token.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.availableBalance.Split(amount)
	if err != nil {
		return token.Zero(e.assetType), err
	}
	e.availableAmount -= amount

	e.sink.Emit(events.EscrowWithdraw{
		AssetType:  e.assetType,
		Amount:     amount,
		IsInternal: isInternal,
	})

	return out, nil
}

// AdminWithdraw is the external-facing, capability-gated wrapper around
// Withdraw.
func (e *SettlementEscrow) AdminWithdraw(cap *auth.WithdrawCap, amount uint64) (token.Balance, error) {
	if cap == nil {
		return token.Zero(e.assetType), ErrMissingCapability
	}
	return e.Withdraw(amount, false)
}
