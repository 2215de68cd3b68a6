package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/service"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

// ── Pass decisions ───────────────────────────────────────────────────────────

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	passes, err := s.svcs.Passes.ListPending(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, types.PassListResponse{Passes: passes})
}

func (s *Server) handleListPasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	passes, err := s.svcs.Passes.List(r.Context(), q.Get("status"), q.Get("site_id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, types.PassListResponse{Passes: passes})
}

func (s *Server) handleGetPass(w http.ResponseWriter, r *http.Request) {
	p, err := s.svcs.Passes.Get(r.Context(), chi.URLParam(r, "passID"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, types.PassResponse{Pass: p})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req types.ApproveRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	p, err := s.svcs.Passes.Approve(r.Context(), chi.URLParam(r, "passID"), req.TTLHours)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, types.PassResponse{Pass: p, Message: "Pass approved"})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req types.ReasonRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	p, err := s.svcs.Passes.Reject(r.Context(), chi.URLParam(r, "passID"), req.Reason)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, types.PassResponse{Pass: p, Message: "Pass rejected"})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req types.ReasonRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	p, err := s.svcs.Passes.Revoke(r.Context(), chi.URLParam(r, "passID"), req.Reason)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, types.PassResponse{Pass: p, Message: "Pass revoked"})
}

// ── Pauses ───────────────────────────────────────────────────────────────────

func (s *Server) handleGlobalPause(w http.ResponseWriter, r *http.Request) {
	var req types.PauseRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	resp, err := s.svcs.Pauses.SetGlobal(r.Context(), req.Value())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSitePause(w http.ResponseWriter, r *http.Request) {
	var req types.PauseRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	resp, err := s.svcs.Pauses.SetSite(r.Context(), chi.URLParam(r, "siteID"), req.Value())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svcs.Pauses.Status(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

// ── Principals ───────────────────────────────────────────────────────────────

func (s *Server) handleRegisterGate(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterGateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	p, err := s.svcs.Principals.RegisterGate(r.Context(), req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, types.PrincipalResponse{Principal: p, Message: "Gate registered"})
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	p, err := s.svcs.Principals.RegisterUser(r.Context(), req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, types.PrincipalResponse{Principal: p, Message: "User registered"})
}

func (s *Server) handleListGates(w http.ResponseWriter, r *http.Request) {
	s.listPrincipals(w, r, store.KindGate)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.listPrincipals(w, r, store.KindUser)
}

func (s *Server) listPrincipals(w http.ResponseWriter, r *http.Request, kind store.PrincipalKind) {
	ps, err := s.svcs.Principals.List(r.Context(), kind)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, types.PrincipalListResponse{Principals: ps})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	kind := store.PrincipalKind(chi.URLParam(r, "kind"))
	if kind != store.KindUser && kind != store.KindGate {
		respondWithError(w, r, service.NewValidationError("kind must be user or gate"))
		return
	}

	resp, err := s.svcs.Principals.PublicKey(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// ── Audit & statistics ───────────────────────────────────────────────────────

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondWithError(w, r, service.NewValidationError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	logs, err := s.svcs.Audit.List(r.Context(), limit, q.Get("event_type"), q.Get("result"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, types.AuditLogResponse{Logs: logs})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svcs.Passes.Statistics(r.Context(), r.URL.Query().Get("site_id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
