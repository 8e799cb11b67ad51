package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
)

type confirmBody struct {
	PaySchool bool `json:"paySchool"`
	PayBus    bool `json:"payBus"`
}

// handleConfirmMonth marks the selected streams of one month as fully paid.
func (s *Server) handleConfirmMonth(w http.ResponseWriter, r *http.Request) {
	var body confirmBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		writeError(w, r, log.OpConfirm, err)
		return
	}
	fee, err := s.fees.ConfirmMonthPayment(r.Context(),
		r.PathValue("id"), r.PathValue("session"), r.PathValue("month"),
		body.PaySchool, body.PayBus)
	if err != nil {
		writeError(w, r, log.OpConfirm, err)
		return
	}
	NewJSONResponse(map[string]any{
		"month":     r.PathValue("month"),
		"fee":       fee,
		"state":     fee.Status(),
		"tuition":   fee.StreamStatus(core.Tuition),
		"transport": fee.StreamStatus(core.Transport),
	}).Write(w)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	v, err := s.fees.Ledger(r.Context(), r.PathValue("id"), strings.TrimSpace(r.URL.Query().Get("session")))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse(v).Write(w)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := s.fees.Receipt(r.Context(), r.PathValue("id"), r.PathValue("session"), r.PathValue("month"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse(rc).Write(w)
}

// handleOverview lists the month status of every student of a class. The
// month defaults to the current one.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month := strings.TrimSpace(q.Get("month"))
	if month == "" {
		month = core.MonthOf(s.now().Month()).String()
	}
	ov, err := s.fees.Overview(r.Context(), sanitizeInput(q.Get("class")), sessionParam(q, s.currentSession), month)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse(ov).Write(w)
}

// handleWords spells a rupee amount the way receipts print it.
func (s *Server) handleWords(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("amount")
	if strings.TrimSpace(raw) == "" {
		writeError(w, r, log.OpRead, fmt.Errorf("%w: amount", core.ErrMissingField))
		return
	}
	amount, err := core.ParseAmount(raw)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	words, err := amount.InWords()
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse(map[string]any{"amount": amount, "words": words}).Write(w)
}
