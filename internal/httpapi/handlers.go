package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/catalog"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/service"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

// ── Login & catalog ──────────────────────────────────────────────────────────

func (s *Server) handleUserLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	resp, err := s.svcs.Logins.UserLogin(r.Context(), req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGateLogin(w http.ResponseWriter, r *http.Request) {
	var req types.GateLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	resp, err := s.svcs.Logins.GateLogin(r.Context(), req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

type sitesResponse struct {
	Sites []catalog.Entry `json:"sites"`
}

type purposesResponse struct {
	Purposes []catalog.Entry `json:"purposes"`
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, sitesResponse{Sites: s.svcs.Catalog.Sites()})
}

func (s *Server) handlePurposes(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, purposesResponse{Purposes: s.svcs.Catalog.Purposes()})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	resp, err := s.svcs.Logins.Me(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// ── Passes (owner) ───────────────────────────────────────────────────────────

func (s *Server) handleCreatePass(w http.ResponseWriter, r *http.Request) {
	var req types.CreatePassRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	p, err := s.svcs.Passes.Create(r.Context(), id.Subject, req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, types.PassResponse{Pass: p, Message: "Pass application submitted"})
}

func (s *Server) handleListMyPasses(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	passes, err := s.svcs.Passes.ListMine(r.Context(), id.Subject)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, types.PassListResponse{Passes: passes})
}

func (s *Server) handleRequestQR(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	resp, err := s.svcs.Passes.RequestQR(r.Context(), chi.URLParam(r, "passID"), id.Subject, r.URL.Query().Get("format"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// ── Scan (gate) ──────────────────────────────────────────────────────────────

// handleScan accepts JSON or protobuf and answers in the same encoding.
// Denials are 200 responses; only transport and auth failures are errors.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	proto := isProtobuf(r)

	var (
		req types.ScanRequest
		err error
	)
	if proto {
		req, err = readScanProto(r)
		if err != nil && !errors.Is(err, errBodyTooLarge) {
			err = service.NewValidationError("invalid protobuf body")
		}
	} else {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		respondWithDecodeError(w, r, err)
		return
	}

	gate, _ := auth.IdentityFromContext(r.Context())
	resp, err := s.svcs.Scans.Scan(r.Context(), gate.Subject, req.QRPayload)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	if proto {
		writeScanProto(w, http.StatusOK, resp)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}
