package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/escrowlabs/escrowd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a settlement error to its HTTP status and writes a
// response carrying both the message and the stable machine-readable code.
func writeDomainError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	if code := domain.ErrorCode(err); code != "" {
		body["code"] = code
	}
	writeJSON(w, statusFor(err), body)
}

// statusFor maps the error taxonomy to HTTP statuses: input validation 400,
// authorization 403, missing records 404, state and timing conflicts 409,
// arithmetic 422, everything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidParticipants),
		errors.Is(err, domain.ErrInvalidStake),
		errors.Is(err, domain.ErrStakeBelowSetupCost),
		errors.Is(err, domain.ErrInvalidWinner):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyDeposited),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrDuplicateWager),
		errors.Is(err, domain.ErrBothAlreadyDeposited),
		errors.Is(err, domain.ErrNotBothDeposited),
		errors.Is(err, domain.ErrDecisionWindowExpired),
		errors.Is(err, domain.ErrDecisionWindowNotExpired),
		errors.Is(err, domain.ErrDepositWindowNotExpired),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidFeeMargin),
		errors.Is(err, domain.ErrRefundUnderflow),
		errors.Is(err, domain.ErrAmountOverflow),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts extracts standard pagination and time-range parameters from
// the query string. Defaults: limit=50 (max 500), offset=0. since/until are
// RFC 3339 timestamps; a malformed timestamp is an error, unlike the numeric
// parameters which fall back to their defaults.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.ListOpts{}, fmt.Errorf("invalid since timestamp %q: expected RFC 3339", v)
		}
		opts.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.ListOpts{}, fmt.Errorf("invalid until timestamp %q: expected RFC 3339", v)
		}
		opts.Until = &t
	}

	return opts, nil
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
