package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"credpulse/agents"
	"credpulse/auth"
	"credpulse/invoice"
	"credpulse/orchestrator"
	"credpulse/session"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := s.authSvc.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"account_id": account.ID,
		"email":      account.Email,
		"role":       string(account.Role),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.authSvc.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":      result.Token,
		"account_id": result.Account.ID,
		"role":       string(result.Account.Role),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InvoiceID == "" || req.BuyerID == "" || req.MerchantID == "" {
		writeError(w, http.StatusBadRequest, "invoice_id, buyer_id and merchant_id are required")
		return
	}

	if claims, ok := claimsFrom(r.Context()); ok && claims.Role == auth.RoleMerchant && claims.MerchantID != req.MerchantID {
		writeError(w, http.StatusForbidden, "merchant accounts may only analyze their own invoices")
		return
	}

	inv, err := s.invoices.GetForMerchant(r.Context(), req.MerchantID, req.InvoiceID)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invoice not found for merchant")
			return
		}
		s.logger.Error().Err(err).Str("invoice_id", req.InvoiceID).Msg("invoice lookup failed")
		writeError(w, http.StatusInternalServerError, "invoice lookup failed")
		return
	}
	if inv.BuyerID != req.BuyerID {
		writeError(w, http.StatusBadRequest, "invoice is not drawn on the given buyer")
		return
	}

	sess, err := s.orch.Analyze(r.Context(), agents.Case{
		InvoiceID:     inv.ID,
		BuyerID:       inv.BuyerID,
		MerchantID:    inv.MerchantID,
		InvoiceAmount: inv.Amount,
		InvoiceDate:   inv.InvoiceDate,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidCase) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("analysis failed to start")
		writeError(w, http.StatusInternalServerError, "analysis failed to start")
		return
	}

	select {
	case <-sess.Done():
		s.writeTerminal(w, sess.Snapshot())
	case <-time.After(s.syncWait):
		writeJSON(w, http.StatusAccepted, pendingResponse(sess, s.syncWait))
	case <-r.Context().Done():
		// Client went away; the run continues and remains pollable.
		writeJSON(w, http.StatusAccepted, pendingResponse(sess, s.syncWait))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.GetByID(r.PathValue("sessionID"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error().Err(err).Msg("session lookup failed")
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}

	snap := sess.Snapshot()
	if !snap.State.Terminal() {
		writeJSON(w, http.StatusOK, pendingResponse(sess, s.syncWait))
		return
	}
	s.writeTerminal(w, snap)
}

func (s *Server) writeTerminal(w http.ResponseWriter, snap session.Snapshot) {
	if snap.State == session.StateFailed {
		writeJSON(w, http.StatusInternalServerError, sessionResponse(snap))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(snap))
}

func (s *Server) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, 3)
	for _, name := range agents.CanonicalOrder() {
		names = append(names, string(name))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agents": names,
	})
}
