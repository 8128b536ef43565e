package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
	"github.com/Clark-Hu/rate-the-washroom/internal/users"
)

type userSyncRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type userPatchRequest struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type userResponse struct {
	ID        string    `json:"id"`
	PublicID  string    `json:"public_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	var req userSyncRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	user, created, err := s.users.Sync(r.Context(), caller.ID, users.SyncParams{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.respondServiceError(w, err, http.StatusUnprocessableEntity)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, toUserResponse(user))
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	user, err := s.users.Me(r.Context(), caller.ID)
	if err != nil {
		s.respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	s.respondJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handlePatchUser(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	var req userPatchRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	_, err := s.users.Update(r.Context(), chi.URLParam(r, "userID"), caller.ID, users.UpdateParams{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.respondServiceError(w, err, http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	if err := s.users.Delete(r.Context(), chi.URLParam(r, "userID"), caller.ID); err != nil {
		s.respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListUsers enumerates profiles, but only outside production.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.IsDevelopment() {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		return
	}

	list, err := s.users.List(r.Context())
	if err != nil {
		s.respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	items := make([]userResponse, 0, len(list))
	for _, u := range list {
		items = append(items, toUserResponse(u))
	}
	s.respondJSON(w, http.StatusOK, items)
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		PublicID:  u.PublicID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
