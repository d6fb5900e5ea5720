package domain

import "errors"

// Error taxonomy for settlement transitions. Input-validation and
// authorization errors are rejected before any state mutation;
// state-conflict and timing errors are preconditions on the record's current
// phase or elapsed time; arithmetic errors abort the transition rather than
// wrap or saturate.
var (
	// Input validation.
	ErrInvalidParticipants = errors.New("party_a and party_b must be distinct")
	ErrInvalidStake        = errors.New("stake amount must be positive")
	ErrStakeBelowSetupCost = errors.New("stake amount must exceed setup cost")
	ErrInvalidWinner       = errors.New("winner must be party_a or party_b")

	// Authorization.
	ErrUnauthorized = errors.New("caller not authorized for this transition")

	// State conflicts.
	ErrAlreadyDeposited     = errors.New("party has already deposited")
	ErrAlreadySettled       = errors.New("wager already settled")
	ErrDuplicateWager       = errors.New("wager already exists for this pair")
	ErrBothAlreadyDeposited = errors.New("both parties already deposited")
	ErrNotBothDeposited     = errors.New("both parties must deposit first")

	// Timing.
	ErrDecisionWindowExpired    = errors.New("decision window has expired")
	ErrDecisionWindowNotExpired = errors.New("decision window has not expired")
	ErrDepositWindowNotExpired  = errors.New("deposit window has not expired")

	// Arithmetic.
	ErrInvalidFeeMargin = errors.New("fee does not cover setup cost")
	ErrRefundUnderflow  = errors.New("setup cost charge exceeds the refundable stake")
	ErrAmountOverflow   = errors.New("amount arithmetic overflow")

	// Infrastructure.
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLockHeld          = errors.New("lock already held")
)

// ErrorCode returns the stable machine-readable code for a settlement error,
// or "" for errors outside the taxonomy. These codes are part of the API
// surface.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParticipants):
		return "INVALID_PARTICIPANTS"
	case errors.Is(err, ErrInvalidStake):
		return "INVALID_STAKE"
	case errors.Is(err, ErrStakeBelowSetupCost):
		return "STAKE_BELOW_SETUP_COST"
	case errors.Is(err, ErrInvalidWinner):
		return "INVALID_WINNER_SELECTOR"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrAlreadyDeposited):
		return "ALREADY_DEPOSITED"
	case errors.Is(err, ErrAlreadySettled):
		return "ALREADY_SETTLED"
	case errors.Is(err, ErrDuplicateWager):
		return "DUPLICATE_WAGER"
	case errors.Is(err, ErrBothAlreadyDeposited):
		return "BOTH_ALREADY_DEPOSITED"
	case errors.Is(err, ErrNotBothDeposited):
		return "NOT_BOTH_DEPOSITED"
	case errors.Is(err, ErrDecisionWindowExpired):
		return "DECISION_WINDOW_EXPIRED"
	case errors.Is(err, ErrDecisionWindowNotExpired):
		return "DECISION_WINDOW_NOT_EXPIRED"
	case errors.Is(err, ErrDepositWindowNotExpired):
		return "DEPOSIT_WINDOW_NOT_EXPIRED"
	case errors.Is(err, ErrInvalidFeeMargin):
		return "INVALID_FEE_MARGIN"
	case errors.Is(err, ErrRefundUnderflow):
		return "REFUND_UNDERFLOW"
	case errors.Is(err, ErrAmountOverflow):
		return "AMOUNT_OVERFLOW"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	default:
		return ""
	}
}
