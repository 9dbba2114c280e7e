package handler

import (
	"net/http"

	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/voting"
)

// ScannerHandler serves the polling-station endpoints.
type ScannerHandler struct {
	votes *voting.Service
}

// NewScannerHandler creates a new ScannerHandler.
func NewScannerHandler(votes *voting.Service) *ScannerHandler {
	return &ScannerHandler{votes: votes}
}

// scanRequest accepts the field names used by the scanner app, the staff
// console and the legacy clients. Any of them may carry a bare number or the
// raw QR payload.
type scanRequest struct {
	RegistrationNumber string `json:"registration_number"`
	VoterRegNo         string `json:"voter_reg_no"`
	RegNo              string `json:"regno"`
	Scan               string `json:"scan"`
}

func (s scanRequest) raw() string {
	for _, v := range []string{s.RegistrationNumber, s.VoterRegNo, s.RegNo, s.Scan} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (h *ScannerHandler) decodeScan(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req scanRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondBadBody(w)
		return "", false
	}
	regNo, err := voting.ParseScanInput(req.raw())
	if err != nil {
		RespondError(w, err)
		return "", false
	}
	return regNo, true
}

// Lookup handles POST /scanner/lookup.
func (h *ScannerHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	regNo, ok := h.decodeScan(w, r)
	if !ok {
		return
	}
	view, err := h.votes.Lookup(r.Context(), regNo)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// MarkVoted handles POST /scanner/mark-voted.
func (h *ScannerHandler) MarkVoted(w http.ResponseWriter, r *http.Request) {
	regNo, ok := h.decodeScan(w, r)
	if !ok {
		return
	}
	if _, err := h.votes.MarkVoted(r.Context(), regNo, nil); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "voter marked as voted"})
}

// Confirm handles POST /voter/confirm. The confirming staff member is
// recorded on the voter.
func (h *ScannerHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	regNo, ok := h.decodeScan(w, r)
	if !ok {
		return
	}
	rec, err := h.votes.MarkVoted(r.Context(), regNo, auth.AccountFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "confirmed", "record": rec})
}
