// Package escrow implements the settlement state machine for two-party
// wagers: creation, symmetric deposits, arbiter-declared outcomes, and the
// time-boxed recovery and cancellation paths. The package owns the rules and
// the payout arithmetic; value custody is delegated to the injected ledger
// port and persistence to the caller.
//
// Every transition validates all preconditions and computes every transfer
// amount before the first ledger call, so a failed transition never leaves a
// partially applied record.
package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/escrowlabs/escrowd/internal/domain"
)

// Machine applies settlement transitions against wager records.
type Machine struct {
	ledger    domain.Ledger
	namespace string
	logger    *slog.Logger
}

// New creates a Machine using the given ledger and derivation namespace.
func New(ledger domain.Ledger, namespace string, logger *slog.Logger) *Machine {
	return &Machine{
		ledger:    ledger,
		namespace: namespace,
		logger:    logger.With(slog.String("component", "escrow")),
	}
}

// now returns the ledger clock truncated to whole seconds, matching the
// unix-timestamp granularity of the upstream contract's windows.
func (m *Machine) now() time.Time {
	return m.ledger.Now().UTC().Truncate(time.Second)
}

// CreateParams are the inputs to Create. The funder who pays for record
// allocation may be any identity and is not recorded.
type CreateParams struct {
	PartyA       domain.AccountID
	PartyB       domain.AccountID
	Arbiter      domain.AccountID
	FeeRecipient domain.AccountID
	StakeAmount  uint64
}

// Create allocates a new wager record and its stake vault. The record id and
// vault address derive deterministically (and order-sensitively) from the
// party pair; duplicate detection against existing records is the caller's
// responsibility since the machine holds no storage.
func (m *Machine) Create(p CreateParams) (domain.Wager, error) {
	if p.PartyA == p.PartyB {
		return domain.Wager{}, domain.ErrInvalidParticipants
	}
	if p.StakeAmount == 0 {
		return domain.Wager{}, domain.ErrInvalidStake
	}
	// The stake must survive a full setup-cost charge, or a lone depositor
	// could never be made whole on cancellation.
	if p.StakeAmount <= m.ledger.SetupCost() {
		return domain.Wager{}, domain.ErrStakeBelowSetupCost
	}

	now := m.now()
	w := domain.Wager{
		ID:           domain.WagerKey(m.namespace, p.PartyA, p.PartyB),
		PartyA:       p.PartyA,
		PartyB:       p.PartyB,
		Arbiter:      p.Arbiter,
		FeeRecipient: p.FeeRecipient,
		Vault:        m.ledger.Derive(m.namespace, "vault", string(p.PartyA), string(p.PartyB)),
		StakeAmount:  p.StakeAmount,
		SetupCost:    m.ledger.SetupCost(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	m.logger.Info("wager created",
		slog.String("wager_id", w.ID),
		slog.String("party_a", string(w.PartyA)),
		slog.String("party_b", string(w.PartyB)),
		slog.Uint64("stake_amount", w.StakeAmount),
		slog.Uint64("setup_cost", w.SetupCost),
	)
	return w, nil
}

// DepositA transfers party A's stake into the vault and marks the deposit.
func (m *Machine) DepositA(ctx context.Context, w *domain.Wager, caller domain.AccountID) error {
	return m.deposit(ctx, w, caller, w.PartyA, &w.DepositedA)
}

// DepositB transfers party B's stake into the vault and marks the deposit.
func (m *Machine) DepositB(ctx context.Context, w *domain.Wager, caller domain.AccountID) error {
	return m.deposit(ctx, w, caller, w.PartyB, &w.DepositedB)
}

func (m *Machine) deposit(ctx context.Context, w *domain.Wager, caller, party domain.AccountID, flag *bool) error {
	if w.Settled() {
		return domain.ErrAlreadySettled
	}
	if *flag {
		return domain.ErrAlreadyDeposited
	}
	if caller != party {
		return domain.ErrUnauthorized
	}

	if err := m.ledger.Transfer(ctx, party, w.Vault, w.StakeAmount); err != nil {
		return fmt.Errorf("escrow: deposit %s to vault: %w", party, err)
	}
	*flag = true
	now := m.now()
	w.UpdatedAt = now
	if w.BothDeposited() {
		w.ActivatedAt = now
		m.logger.Info("wager activated",
			slog.String("wager_id", w.ID),
			slog.Duration("decision_window", domain.DecisionWindow),
		)
	} else {
		m.logger.Info("stake deposited",
			slog.String("wager_id", w.ID),
			slog.String("party", string(party)),
			slog.Uint64("amount", w.StakeAmount),
		)
	}
	return nil
}

// Settle declares the outcome. Only the arbiter may call it, both parties
// must have deposited, and the decision window must not have elapsed
// (equality at the boundary favors settlement). The winner receives its
// share of the full pool; the fee recipient absorbs the setup cost out of
// the gross fee; the vault retains the setup cost as the ledger reserve.
func (m *Machine) Settle(ctx context.Context, w *domain.Wager, caller domain.AccountID, winner domain.Winner) (Split, error) {
	if w.Settled() {
		return Split{}, domain.ErrAlreadySettled
	}
	if caller != w.Arbiter {
		return Split{}, domain.ErrUnauthorized
	}
	if !w.BothDeposited() {
		return Split{}, domain.ErrNotBothDeposited
	}
	if !winner.Valid() {
		return Split{}, domain.ErrInvalidWinner
	}
	if m.now().Sub(w.ActivatedAt) > domain.DecisionWindow {
		return Split{}, domain.ErrDecisionWindowExpired
	}

	split, err := SettlementSplit(w.StakeAmount, w.SetupCost)
	if err != nil {
		return Split{}, err
	}

	winnerAccount := w.PartyA
	resolution := domain.ResolutionWonA
	if winner == domain.WinnerPartyB {
		winnerAccount = w.PartyB
		resolution = domain.ResolutionWonB
	}

	if err := m.ledger.Transfer(ctx, w.Vault, winnerAccount, split.WinnerShare); err != nil {
		return Split{}, fmt.Errorf("escrow: pay winner %s: %w", winnerAccount, err)
	}
	if err := m.ledger.Transfer(ctx, w.Vault, w.FeeRecipient, split.NetFee); err != nil {
		return Split{}, fmt.Errorf("escrow: pay fee recipient %s: %w", w.FeeRecipient, err)
	}

	w.Resolution = resolution
	w.UpdatedAt = m.now()
	m.logger.Info("wager settled",
		slog.String("wager_id", w.ID),
		slog.String("winner", string(winner)),
		slog.Uint64("winner_share", split.WinnerShare),
		slog.Uint64("net_fee", split.NetFee),
	)
	return split, nil
}

// Recover refunds both parties after the arbiter failed to act within the
// decision window. Any caller may trigger it. Each party absorbs half of the
// setup cost; the vault retains the reserve.
func (m *Machine) Recover(ctx context.Context, w *domain.Wager) (uint64, error) {
	if w.Settled() {
		return 0, domain.ErrAlreadySettled
	}
	if !w.BothDeposited() {
		return 0, domain.ErrNotBothDeposited
	}
	if m.now().Sub(w.ActivatedAt) <= domain.DecisionWindow {
		return 0, domain.ErrDecisionWindowNotExpired
	}

	refund, err := RecoveryRefund(w.StakeAmount, w.SetupCost)
	if err != nil {
		return 0, err
	}

	if err := m.ledger.Transfer(ctx, w.Vault, w.PartyA, refund); err != nil {
		return 0, fmt.Errorf("escrow: refund %s: %w", w.PartyA, err)
	}
	if err := m.ledger.Transfer(ctx, w.Vault, w.PartyB, refund); err != nil {
		return 0, fmt.Errorf("escrow: refund %s: %w", w.PartyB, err)
	}

	w.Resolution = domain.ResolutionRefunded
	w.UpdatedAt = m.now()
	m.logger.Info("wager recovered",
		slog.String("wager_id", w.ID),
		slog.Uint64("refund_each", refund),
	)
	return refund, nil
}

// Cancel refunds the lone depositor (if any) after the deposit window
// elapsed without both parties funding. Any caller may trigger it. The full
// setup cost is charged to the single depositor since no counterpart ever
// funded the vault.
func (m *Machine) Cancel(ctx context.Context, w *domain.Wager) (uint64, error) {
	if w.Settled() {
		return 0, domain.ErrAlreadySettled
	}
	if w.BothDeposited() {
		return 0, domain.ErrBothAlreadyDeposited
	}
	if m.now().Sub(w.CreatedAt) <= domain.DepositWindow {
		return 0, domain.ErrDepositWindowNotExpired
	}

	var refunded uint64
	if w.DepositedA || w.DepositedB {
		refund, err := CancelRefund(w.StakeAmount, w.SetupCost)
		if err != nil {
			return 0, err
		}
		depositor := w.PartyA
		if w.DepositedB {
			depositor = w.PartyB
		}
		if err := m.ledger.Transfer(ctx, w.Vault, depositor, refund); err != nil {
			return 0, fmt.Errorf("escrow: refund depositor %s: %w", depositor, err)
		}
		refunded = refund
	}

	w.Resolution = domain.ResolutionCancelled
	w.UpdatedAt = m.now()
	m.logger.Info("wager cancelled",
		slog.String("wager_id", w.ID),
		slog.Uint64("refunded", refunded),
	)
	return refunded, nil
}
