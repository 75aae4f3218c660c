package station

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zombor/rxscan/internal/barcode"
)

const defaultScanLimit = 100

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{
		"error": message,
	})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateIdentifier):
		return http.StatusConflict
	case errors.Is(err, barcode.ErrUnknownKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleMintIdentifier mints and registers a new identifier
func (s *Server) handleMintIdentifier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind barcode.Kind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	identifier, err := s.service.Mint(req.Kind)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			slog.Error("Error minting identifier", "kind", req.Kind, "error", err)
		}
		writeError(w, err.Error(), code)
		return
	}

	writeJSON(w, http.StatusCreated, identifier)
}

// handleListIdentifiers returns all registered identifiers
func (s *Server) handleListIdentifiers(w http.ResponseWriter, r *http.Request) {
	identifiers, err := s.service.ListIdentifiers()
	if err != nil {
		slog.Error("Error listing identifiers", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, identifiers)
}

// handleGetIdentifier returns a single identifier
func (s *Server) handleGetIdentifier(w http.ResponseWriter, r *http.Request) {
	identifier, err := s.service.GetIdentifier(r.PathValue("id"))
	if err != nil {
		writeError(w, "Identifier not found", statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, identifier)
}

// handleGetBars returns the bar graphic description of an identifier
func (s *Server) handleGetBars(w http.ResponseWriter, r *http.Request) {
	graphic, err := s.service.Bars(r.PathValue("id"))
	if err != nil {
		writeError(w, "Identifier not found", statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, graphic)
}

// handleGetLabel serves the stored SVG label of an identifier
func (s *Server) handleGetLabel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.service.Label(id)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			slog.Error("Error rendering label", "id", id, "error", err)
		}
		writeError(w, "Label unavailable", code)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(data)
}

// handleDecode interprets a token without recording it
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Decode(req.Token))
}

// handleListScans returns the scan log tail; ?limit=0 returns everything
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := defaultScanLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	scans, err := s.service.ListScans(limit)
	if err != nil {
		slog.Error("Error listing scans", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}
