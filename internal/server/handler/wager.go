package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/escrowlabs/escrowd/internal/domain"
	"github.com/escrowlabs/escrowd/internal/escrow"
	"github.com/escrowlabs/escrowd/internal/service"
)

// WagerService defines the methods the wager handler requires.
type WagerService interface {
	Create(ctx context.Context, p escrow.CreateParams) (domain.Wager, error)
	Deposit(ctx context.Context, id string, caller domain.AccountID) (domain.Wager, error)
	Settle(ctx context.Context, id string, caller domain.AccountID, winner domain.Winner) (domain.Wager, error)
	Recover(ctx context.Context, id string, caller domain.AccountID) (domain.Wager, error)
	Cancel(ctx context.Context, id string, caller domain.AccountID) (domain.Wager, error)
	Get(ctx context.Context, id string) (service.WagerStatus, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Wager, error)
}

// WagerHandler serves the settlement transition and query endpoints.
type WagerHandler struct {
	wagers WagerService
	logger *slog.Logger
}

// NewWagerHandler creates a WagerHandler.
func NewWagerHandler(wagers WagerService, logger *slog.Logger) *WagerHandler {
	return &WagerHandler{wagers: wagers, logger: logger}
}

// wagerView is the JSON shape of a wager record in responses.
type wagerView struct {
	ID           string    `json:"id"`
	PartyA       string    `json:"party_a"`
	PartyB       string    `json:"party_b"`
	Arbiter      string    `json:"arbiter"`
	FeeRecipient string    `json:"fee_recipient"`
	Vault        string    `json:"vault"`
	StakeAmount  uint64    `json:"stake_amount"`
	SetupCost    uint64    `json:"setup_cost"`
	DepositedA   bool      `json:"deposited_a"`
	DepositedB   bool      `json:"deposited_b"`
	Phase        string    `json:"phase"`
	Resolution   string    `json:"resolution,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ActivatedAt  time.Time `json:"activated_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func viewOf(w domain.Wager) wagerView {
	return wagerView{
		ID:           w.ID,
		PartyA:       string(w.PartyA),
		PartyB:       string(w.PartyB),
		Arbiter:      string(w.Arbiter),
		FeeRecipient: string(w.FeeRecipient),
		Vault:        string(w.Vault),
		StakeAmount:  w.StakeAmount,
		SetupCost:    w.SetupCost,
		DepositedA:   w.DepositedA,
		DepositedB:   w.DepositedB,
		Phase:        string(w.Phase()),
		Resolution:   string(w.Resolution),
		CreatedAt:    w.CreatedAt,
		ActivatedAt:  w.ActivatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

// CreateWager allocates a new wager between two parties.
// POST /api/wagers
func (h *WagerHandler) CreateWager(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PartyA       string `json:"party_a"`
		PartyB       string `json:"party_b"`
		Arbiter      string `json:"arbiter"`
		FeeRecipient string `json:"fee_recipient"`
		StakeAmount  uint64 `json:"stake_amount"`
		Funder       string `json:"funder"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PartyA == "" || req.PartyB == "" || req.Arbiter == "" || req.FeeRecipient == "" {
		writeError(w, http.StatusBadRequest, "party_a, party_b, arbiter, and fee_recipient are required")
		return
	}

	wager, err := h.wagers.Create(r.Context(), escrow.CreateParams{
		PartyA:       domain.AccountID(req.PartyA),
		PartyB:       domain.AccountID(req.PartyB),
		Arbiter:      domain.AccountID(req.Arbiter),
		FeeRecipient: domain.AccountID(req.FeeRecipient),
		StakeAmount:  req.StakeAmount,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: create wager rejected",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewOf(wager))
}

// Deposit funds the caller's stake into the vault.
// POST /api/wagers/{id}/deposit
func (h *WagerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, "deposit", func(ctx context.Context, id string, caller domain.AccountID, _ string) (domain.Wager, error) {
		return h.wagers.Deposit(ctx, id, caller)
	})
}

// Settle declares the outcome on behalf of the arbiter.
// POST /api/wagers/{id}/settle
func (h *WagerHandler) Settle(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, "settle", func(ctx context.Context, id string, caller domain.AccountID, winner string) (domain.Wager, error) {
		return h.wagers.Settle(ctx, id, caller, domain.Winner(winner))
	})
}

// Recover triggers the post-activation timeout refund.
// POST /api/wagers/{id}/recover
func (h *WagerHandler) Recover(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, "recover", func(ctx context.Context, id string, caller domain.AccountID, _ string) (domain.Wager, error) {
		return h.wagers.Recover(ctx, id, caller)
	})
}

// Cancel triggers the pre-activation no-show refund.
// POST /api/wagers/{id}/cancel
func (h *WagerHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, "cancel", func(ctx context.Context, id string, caller domain.AccountID, _ string) (domain.Wager, error) {
		return h.wagers.Cancel(ctx, id, caller)
	})
}

// applyTransition is the shared body of the four transition endpoints.
func (h *WagerHandler) applyTransition(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	fn func(ctx context.Context, id string, caller domain.AccountID, winner string) (domain.Wager, error),
) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing wager id")
		return
	}

	var req struct {
		Caller string `json:"caller"`
		Winner string `json:"winner"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	wager, err := fn(r.Context(), id, domain.AccountID(req.Caller), req.Winner)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: transition rejected",
			slog.String("transition", name),
			slog.String("wager_id", id),
			slog.String("code", domain.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(wager))
}

// GetWager returns a wager snapshot plus derived window remainders.
// GET /api/wagers/{id}
func (h *WagerHandler) GetWager(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing wager id")
		return
	}

	status, err := h.wagers.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wager":                          viewOf(status.Wager),
		"deposit_window_remaining_sec":   int64(status.DepositWindowRemaining.Seconds()),
		"decision_window_remaining_sec":  int64(status.DecisionWindowRemaining.Seconds()),
	})
}

// ListWagers returns wager records with pagination.
// GET /api/wagers
func (h *WagerHandler) ListWagers(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wagers, err := h.wagers.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list wagers failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list wagers")
		return
	}

	views := make([]wagerView, 0, len(wagers))
	for _, wg := range wagers {
		views = append(views, viewOf(wg))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wagers": views,
		"count":  len(views),
	})
}
