package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"stakegov/core"
	goverrors "stakegov/core/errors"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// errBadRequest marks malformed input detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, goverrors.ErrProposalNotFound):
		return http.StatusNotFound
	case errors.Is(err, goverrors.ErrVotingClosed),
		errors.Is(err, goverrors.ErrVotingStillOpen),
		errors.Is(err, goverrors.ErrProposalAlreadyExecuted),
		errors.Is(err, goverrors.ErrStakeAlreadyActive),
		errors.Is(err, goverrors.ErrAlreadyVoted):
		return http.StatusConflict
	case errors.Is(err, goverrors.ErrQuorumNotMet):
		return http.StatusPreconditionFailed
	case errors.Is(err, goverrors.ErrInsufficientSpendable),
		errors.Is(err, goverrors.ErrInsufficientBalance),
		errors.Is(err, goverrors.ErrInvalidAmount),
		errors.Is(err, goverrors.ErrInvalidWeight),
		errors.Is(err, goverrors.ErrInvalidUnstake),
		errors.Is(err, goverrors.ErrInvalidUnfreeze),
		errors.Is(err, goverrors.ErrNoActiveStake):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if status != http.StatusBadRequest {
		resp.Reason = goverrors.Reason(err)
	}
	writeJSON(w, status, resp)
}
