package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAccountDeterministic(t *testing.T) {
	a := DeriveAccount("ns", "vault", "alice", "bob")
	b := DeriveAccount("ns", "vault", "alice", "bob")
	assert.Equal(t, a, b)
	assert.Len(t, string(a), 64)
}

func TestDeriveAccountSeparatesKeys(t *testing.T) {
	// The separator must keep ("ab","c") distinct from ("a","bc").
	a := DeriveAccount("ns", "ab", "c")
	b := DeriveAccount("ns", "a", "bc")
	assert.NotEqual(t, a, b)
}

func TestWagerKeyOrderSensitive(t *testing.T) {
	ab := WagerKey("ns", "alice", "bob")
	ba := WagerKey("ns", "bob", "alice")
	assert.NotEqual(t, ab, ba)

	assert.Equal(t, ab, WagerKey("ns", "alice", "bob"))
	assert.NotEqual(t, ab, WagerKey("other", "alice", "bob"))
}

func TestWinnerValid(t *testing.T) {
	assert.True(t, WinnerPartyA.Valid())
	assert.True(t, WinnerPartyB.Valid())
	assert.False(t, Winner("").Valid())
	assert.False(t, Winner("draw").Valid())
}

func TestWagerPhase(t *testing.T) {
	w := Wager{}
	assert.Equal(t, PhaseCreated, w.Phase())

	w.DepositedA = true
	assert.Equal(t, PhasePartiallyFunded, w.Phase())

	w.DepositedB = true
	assert.Equal(t, PhaseFunded, w.Phase())

	w.Resolution = ResolutionWonA
	assert.Equal(t, PhaseSettled, w.Phase())
	assert.True(t, w.Settled())
}

func TestWinnerAccount(t *testing.T) {
	w := Wager{PartyA: "alice", PartyB: "bob"}

	_, ok := w.WinnerAccount()
	assert.False(t, ok)

	w.Resolution = ResolutionWonA
	acct, ok := w.WinnerAccount()
	require.True(t, ok)
	assert.Equal(t, AccountID("alice"), acct)

	w.Resolution = ResolutionWonB
	acct, ok = w.WinnerAccount()
	require.True(t, ok)
	assert.Equal(t, AccountID("bob"), acct)

	w.Resolution = ResolutionRefunded
	_, ok = w.WinnerAccount()
	assert.False(t, ok)
}

func TestDepositWindowRemaining(t *testing.T) {
	created := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	w := Wager{CreatedAt: created}

	assert.Equal(t, DepositWindow, w.DepositWindowRemaining(created))
	assert.Equal(t, 10*time.Second, w.DepositWindowRemaining(created.Add(20*time.Second)))
	assert.Equal(t, time.Duration(0), w.DepositWindowRemaining(created.Add(31*time.Second)))

	// No deposit window once both parties have funded.
	w.DepositedA = true
	w.DepositedB = true
	assert.Equal(t, time.Duration(0), w.DepositWindowRemaining(created))
}

func TestDecisionWindowRemaining(t *testing.T) {
	activated := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	w := Wager{
		DepositedA:  true,
		DepositedB:  true,
		ActivatedAt: activated,
	}

	assert.Equal(t, DecisionWindow, w.DecisionWindowRemaining(activated))
	assert.Equal(t, 30*time.Second, w.DecisionWindowRemaining(activated.Add(90*time.Second)))
	assert.Equal(t, time.Duration(0), w.DecisionWindowRemaining(activated.Add(121*time.Second)))

	// No decision window before activation or after settlement.
	assert.Equal(t, time.Duration(0), (&Wager{DepositedA: true}).DecisionWindowRemaining(activated))
	w.Resolution = ResolutionWonA
	assert.Equal(t, time.Duration(0), w.DecisionWindowRemaining(activated))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "DECISION_WINDOW_EXPIRED", ErrorCode(ErrDecisionWindowExpired))
	assert.Equal(t, "UNAUTHORIZED", ErrorCode(ErrUnauthorized))
	assert.Equal(t, "INVALID_FEE_MARGIN", ErrorCode(ErrInvalidFeeMargin))
	assert.Equal(t, "STAKE_BELOW_SETUP_COST", ErrorCode(ErrStakeBelowSetupCost))
	assert.Equal(t, "REFUND_UNDERFLOW", ErrorCode(ErrRefundUnderflow))
	assert.Equal(t, "", ErrorCode(assert.AnError))
}
