package httpserver

import (
	"context"
	"net/http"
	"testing"
)

func syncUser(t *testing.T, srv *Server, authz, username string) userResponse {
	t.Helper()
	rec := do(srv, http.MethodPost, "/api/v1/users/sync", authz, map[string]any{
		"username": username, "email": username + "@example.com", "first_name": "F", "last_name": "L",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sync status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	return decode[userResponse](t, rec)
}

func TestSyncUser_CreatedThenUpdated(t *testing.T) {
	srv := buildTestServer(t)
	authz := bearerFor(t, srv, "uid-1")

	created := syncUser(t, srv, authz, "alice")
	if created.ID != "uid-1" || created.PublicID == "" {
		t.Fatalf("unexpected profile %+v", created)
	}

	rec := do(srv, http.MethodPost, "/api/v1/users/sync", authz, map[string]any{
		"username": "alice2", "email": "alice@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	updated := decode[userResponse](t, rec)
	if updated.PublicID != created.PublicID || updated.Username != "alice2" {
		t.Fatalf("unexpected profile %+v", updated)
	}

	rec = do(srv, http.MethodGet, "/api/v1/users/me", authz, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, want 200", rec.Code)
	}
	if me := decode[userResponse](t, rec); me.Username != "alice2" {
		t.Fatalf("me username = %q", me.Username)
	}
}

func TestSyncUser_Errors(t *testing.T) {
	srv := buildTestServer(t)
	authz := bearerFor(t, srv, "uid-1")

	if rec := do(srv, http.MethodPost, "/api/v1/users/sync", "", map[string]any{"username": "x"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := do(srv, http.MethodPost, "/api/v1/users/sync", authz, map[string]any{"email": "x@example.com"}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if rec := do(srv, http.MethodPost, "/api/v1/users/sync", authz, `{"username":}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	syncUser(t, srv, authz, "taken")
	other := bearerFor(t, srv, "uid-2")
	rec := do(srv, http.MethodPost, "/api/v1/users/sync", other, map[string]any{"username": "taken", "email": "other@example.com"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	if rec := do(srv, http.MethodGet, "/api/v1/users/me", other, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPatchUser(t *testing.T) {
	srv := buildTestServer(t)
	authz := bearerFor(t, srv, "uid-1")
	syncUser(t, srv, authz, "bob")

	rec := do(srv, http.MethodPatch, "/api/v1/users/uid-1", authz, map[string]any{"first_name": "Robert"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	me := decode[userResponse](t, do(srv, http.MethodGet, "/api/v1/users/me", authz, nil))
	if me.FirstName != "Robert" || me.Username != "bob" {
		t.Fatalf("unexpected profile %+v", me)
	}

	if rec := do(srv, http.MethodPatch, "/api/v1/users/uid-2", authz, map[string]any{"first_name": "x"}); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if rec := do(srv, http.MethodPatch, "/api/v1/users/uid-1", authz, map[string]any{"email": "nope"}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestDeleteUser_RecomputesAggregates(t *testing.T) {
	srv := buildTestServer(t)
	f := createFacility(t, srv, "Sunset Beach", 49.28, -123.14)
	leaver := bearerFor(t, srv, "leaver")
	stayer := bearerFor(t, srv, "stayer")
	syncUser(t, srv, leaver, "leaver")

	for _, c := range []struct {
		authz  string
		rating int
	}{{leaver, 1}, {stayer, 5}} {
		rec := do(srv, http.MethodPost, "/api/v1/reviews", c.authz, map[string]any{"washroom_id": f.ID, "rating": c.rating})
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
		}
	}

	if rec := do(srv, http.MethodDelete, "/api/v1/users/leaver", stayer, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if rec := do(srv, http.MethodDelete, "/api/v1/users/leaver", leaver, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if rec := do(srv, http.MethodDelete, "/api/v1/users/leaver", leaver, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}

	got := decode[washroomResponse](t, do(srv, http.MethodGet, "/api/v1/washrooms/"+f.ID, "", nil))
	if got.RatingCount != 1 || got.OverallRating != 5 {
		t.Fatalf("aggregate = %d/%v, want 1/5", got.RatingCount, got.OverallRating)
	}
	count, sum, err := srv.repo.Reviews.Totals(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if count != 1 || sum != 5 {
		t.Fatalf("review rows = %d/%d, want 1/5", count, sum)
	}
}

func TestListUsers_DevelopmentOnly(t *testing.T) {
	srv := buildTestServer(t)
	authz := bearerFor(t, srv, "uid-1")
	syncUser(t, srv, authz, "amy")

	if rec := do(srv, http.MethodGet, "/api/v1/users", authz, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 outside development", rec.Code)
	}

	srv.cfg.Environment = "dev"
	rec := do(srv, http.MethodGet, "/api/v1/users", authz, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if list := decode[[]userResponse](t, rec); len(list) != 1 || list[0].Username != "amy" {
		t.Fatalf("unexpected list %+v", list)
	}
}
