package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/models"
)

type sessionRequest struct {
	ClientID string `json:"client_id"`
}

// session issues a signed bearer token for the given client id.
func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   req.ClientID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    "go-list-sync-devserver",
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		log.Err(err).Msg("failed to sign session token")
		http.Error(w, "failed to sign token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.Token{SignedString: signed, ExpiresAt: expiresAt})
}

// submit applies one mutation and answers with the server verdict: 200 for
// applied, 409 with conflict info for a contested submission.
func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)

	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed submit request", http.StatusBadRequest)
		return
	}

	m := req.Mutation
	if m.ID == "" || m.ItemID == "" || !validType(m.Type) {
		http.Error(w, "mutation id, item id, and a valid type are required", http.StatusUnprocessableEntity)
		return
	}

	resp := s.apply(m, clientIDFromContext(r.Context()), time.Now())
	switch {
	case resp.Applied:
		log.Debug().
			Str("mutation_id", m.ID).
			Str("item_id", m.ItemID).
			Int64("version", resp.AppliedVersion).
			Msg("mutation applied")
		writeJSON(w, http.StatusOK, resp)
	case resp.Conflict != nil:
		log.Debug().
			Str("mutation_id", m.ID).
			Str("item_id", m.ItemID).
			Msg("mutation contested")
		writeJSON(w, http.StatusConflict, resp)
	default:
		// neither applied nor contested: the mutation referenced state
		// the server has never seen
		http.Error(w, "unknown item", http.StatusUnprocessableEntity)
	}
}

func (s *Server) fetchHandler(w http.ResponseWriter, r *http.Request) {
	var req models.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed fetch request", http.StatusBadRequest)
		return
	}

	items := s.fetch(req)
	writeJSON(w, http.StatusOK, models.FetchResponse{Items: items, Length: len(items)})
}

func validType(t models.MutationType) bool {
	switch t {
	case models.MutationCreate, models.MutationUpdate, models.MutationDelete:
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
