/*
Capability tokens. Possession of a non-nil capability is the sole evidence of
privilege the core accepts; issuance, transfer and revocation belong to the
hosting platform.
*/

package auth

// AdminCap authorizes reserve and config management, fee claims and version
// migration.
type AdminCap struct {
	_ struct{}
}

// HandlerCap authorizes pause toggling and escrow settlement.
type HandlerCap struct {
	_ struct{}
}

// WithdrawCap authorizes escrow admin withdrawals.
type WithdrawCap struct {
	_ struct{}
}

// CapabilitySet is everything Issue hands out. The daemon creates exactly one
// set at startup and decides who gets which reference.
type CapabilitySet struct {
	Admin    *AdminCap
	Handler  *HandlerCap
	Withdraw *WithdrawCap
}

// Issue mints one capability of each kind.
func Issue() CapabilitySet {
	return CapabilitySet{
		Admin:    &AdminCap{},
		Handler:  &HandlerCap{},
		Withdraw: &WithdrawCap{},
	}
}
