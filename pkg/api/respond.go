package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/phenomenon0/betchain/pkg/chain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      status,
		RequestID: requestIDFrom(r.Context()),
	})
}

// statusFor maps a revert class to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chain.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, chain.ErrConfiguration):
		return http.StatusConflict
	case errors.Is(err, chain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chain.ErrState):
		return http.StatusConflict
	case errors.Is(err, chain.ErrValue):
		return http.StatusBadRequest
	case errors.Is(err, chain.ErrTransfer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondRevert reports a failed contract call and records it.
func (s *Server) respondRevert(w http.ResponseWriter, r *http.Request, operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordRevert(operation, err)
	}
	status := statusFor(err)
	respondJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   chain.Reason(err),
		Kind:      chain.KindName(err),
		Code:      status,
		RequestID: requestIDFrom(r.Context()),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// parseHash validates a 32-byte 0x-prefixed identifier.
func parseHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func eventIDParam(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	id, ok := parseHash(chi.URLParam(r, "eventID"))
	if !ok {
		respondError(w, r, http.StatusBadRequest, "invalid event id")
	}
	return id, ok
}
