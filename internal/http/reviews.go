package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
	"github.com/Clark-Hu/rate-the-washroom/internal/reviews"
)

type reviewCreateRequest struct {
	WashroomID  string  `json:"washroom_id"`
	UserID      *string `json:"user_id"`
	Rating      *int    `json:"rating"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type reviewEditRequest struct {
	Rating      *int    `json:"rating"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type reviewResponse struct {
	ID          string    `json:"id"`
	WashroomID  string    `json:"washroom_id"`
	UserID      string    `json:"user_id"`
	Rating      int       `json:"rating"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Likes       int       `json:"likes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	var req reviewCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.UserID != nil && strings.TrimSpace(*req.UserID) != "" && strings.TrimSpace(*req.UserID) != caller.ID {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "user_id must match the authenticated caller")
		return
	}
	if req.Rating == nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "rating is required")
		return
	}

	review, created, err := s.reviews.SubmitReview(r.Context(), reviews.SubmitParams{
		FacilityID: req.WashroomID,
		AuthorID:   caller.ID,
		Rating:     *req.Rating,
		Title:      normalizeStringPtr(req.Title),
		Body:       normalizeStringPtr(req.Description),
	})
	if err != nil {
		s.respondServiceError(w, err, http.StatusUnprocessableEntity)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, toReviewResponse(review))
}

func (s *Server) handleEditReview(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	var req reviewEditRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	review, err := s.reviews.EditReview(r.Context(), chi.URLParam(r, "reviewID"), caller.ID, reviews.EditParams{
		Rating: req.Rating,
		Title:  normalizeStringPtr(req.Title),
		Body:   normalizeStringPtr(req.Description),
	})
	if err != nil {
		s.respondServiceError(w, err, http.StatusUnprocessableEntity)
		return
	}
	s.respondJSON(w, http.StatusOK, toReviewResponse(review))
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	if err := s.reviews.DeleteReview(r.Context(), chi.URLParam(r, "reviewID"), caller.ID); err != nil {
		s.respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFacilityReviews(w http.ResponseWriter, r *http.Request) {
	items, err := s.reviews.ListByFacility(r.Context(), chi.URLParam(r, "washroomID"))
	if err != nil {
		s.respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	s.respondJSON(w, http.StatusOK, toReviewResponses(items))
}

func (s *Server) handleListAuthorReviews(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	items, err := s.reviews.ListByAuthor(r.Context(), chi.URLParam(r, "userID"), caller.ID)
	if err != nil {
		s.respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	s.respondJSON(w, http.StatusOK, toReviewResponses(items))
}

func toReviewResponse(review domain.Review) reviewResponse {
	return reviewResponse{
		ID:          review.ID,
		WashroomID:  review.FacilityID,
		UserID:      review.AuthorID,
		Rating:      review.Rating,
		Title:       review.Title,
		Description: review.Body,
		Likes:       review.Likes,
		CreatedAt:   review.CreatedAt,
		UpdatedAt:   review.UpdatedAt,
	}
}

func toReviewResponses(items []domain.Review) []reviewResponse {
	out := make([]reviewResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toReviewResponse(item))
	}
	return out
}
