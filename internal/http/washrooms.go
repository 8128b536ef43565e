package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
)

type washroomCreateRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Address          string   `json:"address"`
	City             string   `json:"city"`
	Country          string   `json:"country"`
	Lat              *float64 `json:"lat"`
	Long             *float64 `json:"long"`
	OpeningHours     *string  `json:"opening_hours"`
	WheelchairAccess bool     `json:"wheelchair_access"`
	// Aggregates are derived from reviews; supplied values are ignored.
	OverallRating *float64 `json:"overall_rating"`
	RatingCount   *int64   `json:"rating_count"`
}

type washroomResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	Country          string    `json:"country"`
	Lat              float64   `json:"lat"`
	Long             float64   `json:"long"`
	OpeningHours     *string   `json:"opening_hours"`
	WheelchairAccess bool      `json:"wheelchair_access"`
	OverallRating    float64   `json:"overall_rating"`
	RatingCount      int64     `json:"rating_count"`
	CreatedBy        *string   `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *Server) handleFindWashrooms(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBounds(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	facilities, err := s.geo.FindInBounds(r.Context(), bounds)
	if err != nil {
		s.respondServiceError(w, err, http.StatusBadRequest)
		return
	}

	items := make([]washroomResponse, 0, len(facilities))
	for _, f := range facilities {
		items = append(items, toWashroomResponse(f))
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetWashroom(w http.ResponseWriter, r *http.Request) {
	facility, err := s.geo.GetFacility(r.Context(), chi.URLParam(r, "washroomID"))
	if err != nil {
		s.respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	s.respondJSON(w, http.StatusOK, toWashroomResponse(facility))
}

func (s *Server) handleCreateWashroom(w http.ResponseWriter, r *http.Request) {
	if !s.verifyBearer(r.Header.Get("Authorization")) {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req washroomCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.Lat == nil || req.Long == nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "lat and long are required")
		return
	}

	facility, err := s.geo.CreateFacility(r.Context(), repository.FacilityCreateParams{
		Name:             req.Name,
		Description:      strings.TrimSpace(req.Description),
		Address:          strings.TrimSpace(req.Address),
		City:             strings.TrimSpace(req.City),
		Country:          strings.TrimSpace(req.Country),
		Location:         domain.Location{Latitude: *req.Lat, Longitude: *req.Long},
		OpeningHours:     normalizeStringPtr(req.OpeningHours),
		WheelchairAccess: req.WheelchairAccess,
	})
	if err != nil {
		s.respondServiceError(w, err, http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Location", "/api/v1/washrooms/"+facility.ID)
	s.respondJSON(w, http.StatusCreated, toWashroomResponse(facility))
}

// parseBounds reads min_lat, min_lon, max_lat and max_lon. Range and
// ordering checks are left to domain.Bounds.Validate.
func parseBounds(query url.Values) (domain.Bounds, error) {
	var (
		b      domain.Bounds
		fields = []struct {
			name string
			dst  *float64
		}{
			{"min_lat", &b.MinLat},
			{"min_lon", &b.MinLon},
			{"max_lat", &b.MaxLat},
			{"max_lon", &b.MaxLon},
		}
	)
	for _, f := range fields {
		raw := strings.TrimSpace(query.Get(f.name))
		if raw == "" {
			return domain.Bounds{}, fmt.Errorf("%s is required", f.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("invalid %s value", f.name)
		}
		*f.dst = v
	}
	return b, nil
}

func toWashroomResponse(f domain.Facility) washroomResponse {
	return washroomResponse{
		ID:               f.ID,
		Name:             f.Name,
		Description:      f.Description,
		Address:          f.Address,
		City:             f.City,
		Country:          f.Country,
		Lat:              f.Location.Latitude,
		Long:             f.Location.Longitude,
		OpeningHours:     f.OpeningHours,
		WheelchairAccess: f.WheelchairAccess,
		OverallRating:    f.OverallRating,
		RatingCount:      f.RatingCount,
		CreatedBy:        f.CreatedBy,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}
