// Package service orchestrates settlement transitions: per-wager locking,
// record persistence, audit logging, and event publication around the
// escrow state machine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/escrowlabs/escrowd/internal/domain"
	"github.com/escrowlabs/escrowd/internal/escrow"
)

const (
	// lockTTL bounds how long a crashed replica can hold a wager lock.
	lockTTL = 10 * time.Second

	// EventChannel is the pub/sub channel carrying wager lifecycle events.
	EventChannel = "wagers"

	// EventStream is the durable stream mirroring EventChannel.
	EventStream = "stream:wagers"
)

// WagerStatus is the read-model returned by queries: the record plus the
// derived time-remaining values.
type WagerStatus struct {
	Wager                   domain.Wager
	Phase                   domain.Phase
	DepositWindowRemaining  time.Duration
	DecisionWindowRemaining time.Duration
}

// EscrowService applies settlement transitions with the request-at-a-time
// discipline the state machine assumes: one distributed lock per wager id,
// validate-then-mutate inside the lock, then persist, audit, and publish.
// Ledger movements and the record update run inside one unit of work, so a
// failed persist rolls the vault back too. Cache, audit store, and signal
// bus are optional; a nil port skips that concern.
type EscrowService struct {
	wagers  domain.WagerStore
	machine *escrow.Machine
	ledger  domain.Ledger
	uow     domain.UnitOfWork
	locks   domain.LockManager
	cache   domain.WagerCache
	audit   domain.AuditStore
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewEscrowService creates an EscrowService.
func NewEscrowService(
	wagers domain.WagerStore,
	machine *escrow.Machine,
	ledger domain.Ledger,
	uow domain.UnitOfWork,
	locks domain.LockManager,
	cache domain.WagerCache,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *EscrowService {
	return &EscrowService{
		wagers:  wagers,
		machine: machine,
		ledger:  ledger,
		uow:     uow,
		locks:   locks,
		cache:   cache,
		audit:   audit,
		bus:     bus,
		logger:  logger.With(slog.String("component", "escrow_service")),
	}
}

// Create allocates a new wager for a party pair. It returns
// domain.ErrDuplicateWager when a record for the pair already exists;
// settled records block re-creation until they are archived and pruned.
func (s *EscrowService) Create(ctx context.Context, p escrow.CreateParams) (domain.Wager, error) {
	w, err := s.machine.Create(p)
	if err != nil {
		s.auditReject(ctx, "wager.create", "", err)
		return domain.Wager{}, err
	}

	unlock, err := s.locks.Acquire(ctx, w.ID, lockTTL)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("service: lock wager %s: %w", w.ID, err)
	}
	defer unlock()

	if _, err := s.wagers.GetByID(ctx, w.ID); err == nil {
		s.auditReject(ctx, "wager.create", w.ID, domain.ErrDuplicateWager)
		return domain.Wager{}, domain.ErrDuplicateWager
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Wager{}, fmt.Errorf("service: check existing wager %s: %w", w.ID, err)
	}

	if err := s.wagers.Create(ctx, w); err != nil {
		return domain.Wager{}, fmt.Errorf("service: persist wager %s: %w", w.ID, err)
	}

	s.auditOK(ctx, "wager.create", w, map[string]any{
		"stake_amount": w.StakeAmount,
		"setup_cost":   w.SetupCost,
	})
	s.publish(ctx, "wager_created", w, nil)
	return w, nil
}

// Deposit routes the caller to the matching symmetric deposit entry point.
// A caller that is neither party is rejected with domain.ErrUnauthorized.
func (s *EscrowService) Deposit(ctx context.Context, id string, caller domain.AccountID) (domain.Wager, error) {
	return s.transition(ctx, id, "wager.deposit", func(ctx context.Context, w *domain.Wager) (map[string]any, error) {
		var err error
		switch caller {
		case w.PartyA:
			err = s.machine.DepositA(ctx, w, caller)
		case w.PartyB:
			err = s.machine.DepositB(ctx, w, caller)
		default:
			err = domain.ErrUnauthorized
		}
		if err != nil {
			return nil, err
		}
		detail := map[string]any{
			"party":  string(caller),
			"amount": w.StakeAmount,
		}
		return detail, nil
	})
}

// Settle applies the arbiter's outcome declaration.
func (s *EscrowService) Settle(ctx context.Context, id string, caller domain.AccountID, winner domain.Winner) (domain.Wager, error) {
	return s.transition(ctx, id, "wager.settle", func(ctx context.Context, w *domain.Wager) (map[string]any, error) {
		split, err := s.machine.Settle(ctx, w, caller, winner)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"winner":       string(winner),
			"winner_share": split.WinnerShare,
			"net_fee":      split.NetFee,
			"total_pool":   split.TotalPool,
		}, nil
	})
}

// Recover refunds both parties after the decision window expired. Any
// caller may trigger it; the caller is recorded for audit only.
func (s *EscrowService) Recover(ctx context.Context, id string, caller domain.AccountID) (domain.Wager, error) {
	return s.transition(ctx, id, "wager.recover", func(ctx context.Context, w *domain.Wager) (map[string]any, error) {
		refund, err := s.machine.Recover(ctx, w)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"caller":      string(caller),
			"refund_each": refund,
		}, nil
	})
}

// Cancel refunds the lone depositor after the deposit window expired. Any
// caller may trigger it.
func (s *EscrowService) Cancel(ctx context.Context, id string, caller domain.AccountID) (domain.Wager, error) {
	return s.transition(ctx, id, "wager.cancel", func(ctx context.Context, w *domain.Wager) (map[string]any, error) {
		refunded, err := s.machine.Cancel(ctx, w)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"caller":   string(caller),
			"refunded": refunded,
		}, nil
	})
}

// Get returns the wager and its derived window status. Reads go through the
// snapshot cache when one is configured.
func (s *EscrowService) Get(ctx context.Context, id string) (WagerStatus, error) {
	var w domain.Wager
	var err error

	if s.cache != nil {
		w, err = s.cache.Get(ctx, id)
	}
	if s.cache == nil || err != nil {
		w, err = s.wagers.GetByID(ctx, id)
		if err != nil {
			return WagerStatus{}, err
		}
		if s.cache != nil {
			if cerr := s.cache.Set(ctx, w); cerr != nil {
				s.logger.DebugContext(ctx, "wager cache set failed",
					slog.String("wager_id", id),
					slog.String("error", cerr.Error()),
				)
			}
		}
	}

	now := s.ledger.Now().UTC()
	return WagerStatus{
		Wager:                   w,
		Phase:                   w.Phase(),
		DepositWindowRemaining:  w.DepositWindowRemaining(now),
		DecisionWindowRemaining: w.DecisionWindowRemaining(now),
	}, nil
}

// List returns wager records with pagination.
func (s *EscrowService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Wager, error) {
	return s.wagers.List(ctx, opts)
}

// transition runs a settlement transition under the per-wager lock: load,
// then apply and persist inside one unit of work, then invalidate cache,
// audit, publish. The ledger movements the transition makes and the record
// update commit together; when either fails the whole unit rolls back, so a
// retried request finds the vault exactly where the record says it is. A
// rejected transition leaves the record and vault untouched and is still
// audited.
func (s *EscrowService) transition(ctx context.Context, id, event string, fn func(ctx context.Context, w *domain.Wager) (map[string]any, error)) (domain.Wager, error) {
	unlock, err := s.locks.Acquire(ctx, id, lockTTL)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("service: lock wager %s: %w", id, err)
	}
	defer unlock()

	w, err := s.wagers.GetByID(ctx, id)
	if err != nil {
		return domain.Wager{}, err
	}

	var detail map[string]any
	var rejected error
	err = s.uow.Do(ctx, func(ctx context.Context) error {
		d, err := fn(ctx, &w)
		if err != nil {
			rejected = err
			return err
		}
		detail = d
		if err := s.wagers.Update(ctx, w); err != nil {
			return fmt.Errorf("service: persist wager %s: %w", id, err)
		}
		return nil
	})
	if rejected != nil {
		s.auditReject(ctx, event, id, rejected)
		return domain.Wager{}, rejected
	}
	if err != nil {
		return domain.Wager{}, err
	}

	if s.cache != nil {
		if cerr := s.cache.Invalidate(ctx, id); cerr != nil {
			s.logger.WarnContext(ctx, "wager cache invalidate failed",
				slog.String("wager_id", id),
				slog.String("error", cerr.Error()),
			)
		}
	}

	s.auditOK(ctx, event, w, detail)
	s.publish(ctx, eventName(event, w), w, detail)
	return w, nil
}

// eventName maps a transition to the event published on the bus. Deposits
// that activate the wager publish wager_activated instead of
// wager_deposited.
func eventName(event string, w domain.Wager) string {
	switch event {
	case "wager.deposit":
		if w.BothDeposited() {
			return "wager_activated"
		}
		return "wager_deposited"
	case "wager.settle":
		return "wager_settled"
	case "wager.recover":
		return "wager_recovered"
	case "wager.cancel":
		return "wager_cancelled"
	default:
		return event
	}
}

func (s *EscrowService) auditOK(ctx context.Context, event string, w domain.Wager, detail map[string]any) {
	if s.audit == nil {
		return
	}
	entry := map[string]any{
		"wager_id":   w.ID,
		"phase":      string(w.Phase()),
		"resolution": string(w.Resolution),
	}
	for k, v := range detail {
		entry[k] = v
	}
	if err := s.audit.Log(ctx, event, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("wager_id", w.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *EscrowService) auditReject(ctx context.Context, event, id string, cause error) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event+".rejected", map[string]any{
		"wager_id": id,
		"code":     domain.ErrorCode(cause),
		"error":    cause.Error(),
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("wager_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Event is the JSON payload published for every wager lifecycle change.
type Event struct {
	Event      string            `json:"event"`
	WagerID    string            `json:"wager_id"`
	Phase      domain.Phase      `json:"phase"`
	Resolution domain.Resolution `json:"resolution,omitempty"`
	Detail     map[string]any    `json:"detail,omitempty"`
	At         time.Time         `json:"at"`
}

func (s *EscrowService) publish(ctx context.Context, event string, w domain.Wager, detail map[string]any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(Event{
		Event:      event,
		WagerID:    w.ID,
		Phase:      w.Phase(),
		Resolution: w.Resolution,
		Detail:     detail,
		At:         s.ledger.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, EventChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, EventStream, payload); err != nil {
		s.logger.WarnContext(ctx, "event stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
