package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reyadatime/reyadatime/internal/auth"
	"github.com/reyadatime/reyadatime/internal/catalog"
	"github.com/reyadatime/reyadatime/internal/config"
	"github.com/reyadatime/reyadatime/internal/errs"
	"github.com/reyadatime/reyadatime/internal/storage"
)

const testSecret = "api-test-secret"

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "reyada-api" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if decodeBody(t, rr)["error_code"] != "NOT_READY" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	if err := combined(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckDatabaseConfig(t *testing.T) {
	cfg := loadConfig(t, nil)
	if err := CheckDatabaseConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckDatabaseConfig() error = %v", err)
	}
	cfg.Database.Driver = config.DriverNeonHTTP
	cfg.Database.DSN = ""
	if err := CheckDatabaseConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected error for neon driver without endpoint")
	}
}

func TestProtectedRouteRequiresBearerToken(t *testing.T) {
	repo := &fakeCatalog{
		getProfile: func(_ context.Context, userID string) (catalog.Profile, error) {
			return catalog.Profile{ID: userID, Email: "a@example.com"}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Catalog: repo})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, "user-1"))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if decodeBody(t, rr)["id"] != "user-1" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestProtectedRoutesFailClosedWithoutMiddleware(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Catalog: &fakeCatalog{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/bookings", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestBrowsingRequiresAuthWhenConfigured(t *testing.T) {
	repo := &fakeCatalog{}
	open := newTestHandler(t, nil, Dependencies{Catalog: repo})
	rr := httptest.NewRecorder()
	open.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/countries", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("open status = %d", rr.Code)
	}

	closed := newTestHandler(t, map[string]string{"REYADA_AUTH_REQUIRED": "true"}, Dependencies{Catalog: repo})
	rr = httptest.NewRecorder()
	closed.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/countries", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("closed status = %d", rr.Code)
	}
}

func TestSignInReturnsSession(t *testing.T) {
	fake := &fakeAuth{
		signIn: func(creds auth.Credentials) (auth.AuthResponse, error) {
			if creds.Email != "a@example.com" || creds.Password != "secret-pass" {
				t.Fatalf("unexpected credentials: %+v", creds)
			}
			return auth.AuthResponse{
				User:    auth.User{"id": "user-1", "email": creds.Email},
				Session: &auth.Session{AccessToken: "tok", TokenType: "bearer"},
			}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Auth: fake.factory})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", strings.NewReader(`{"email":"a@example.com","password":"secret-pass"}`))
	req.Header.Set("Accept-Language", "ar-QA,ar;q=0.9")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	session, _ := decodeBody(t, rr)["session"].(map[string]any)
	if session["access_token"] != "tok" {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if fake.lastLanguage != "ar-QA,ar;q=0.9" {
		t.Fatalf("accept language = %q", fake.lastLanguage)
	}
}

func TestSignInRejectsInvalidCredentials(t *testing.T) {
	fake := &fakeAuth{
		signIn: func(auth.Credentials) (auth.AuthResponse, error) {
			return auth.AuthResponse{}, errs.New(errs.KindInvalidCredentials, "Invalid login credentials")
		},
	}
	h := newTestHandler(t, nil, Dependencies{Auth: fake.factory})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/auth/signin", strings.NewReader(`{"email":"a@example.com","password":"nope"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "INVALID_CREDENTIALS" || body["message"] != "Invalid login credentials" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestSignUpValidatesInput(t *testing.T) {
	fake := &fakeAuth{
		signUp: func(auth.SignUpInput) (auth.AuthResponse, error) {
			t.Fatal("SignUp should not be called")
			return auth.AuthResponse{}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Auth: fake.factory})

	tests := []struct {
		body string
		code string
	}{
		{`{"email":"not-an-email","password":"long-enough"}`, "INVALID_EMAIL"},
		{`{"email":"a@example.com","password":"short"}`, "WEAK_PASSWORD"},
		{`{"email":"a@example.com","password":"long-enough","role":"admin"}`, "INVALID_JSON"},
	}
	for _, tc := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/auth/signup", strings.NewReader(tc.body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d for %s", rr.Code, tc.body)
		}
		if got := decodeBody(t, rr)["error_code"]; got != tc.code {
			t.Fatalf("error_code = %v, want %s", got, tc.code)
		}
	}
}

func TestSignUpCreatesUserAndMapsConflict(t *testing.T) {
	calls := 0
	fake := &fakeAuth{
		signUp: func(input auth.SignUpInput) (auth.AuthResponse, error) {
			calls++
			if calls > 1 {
				return auth.AuthResponse{}, errs.New(errs.KindConflict, "User already registered")
			}
			if input.Email != "new@example.com" || input.Data["full_name"] != "Noor" {
				t.Fatalf("unexpected input: %+v", input)
			}
			return auth.AuthResponse{User: auth.User{"id": "user-2"}}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Auth: fake.factory})
	body := `{"email":" new@example.com ","password":"long-enough","data":{"full_name":"Noor"}}`

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/auth/signup", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/auth/signup", strings.NewReader(body)))
	if rr.Code != http.StatusConflict {
		t.Fatalf("second status = %d", rr.Code)
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	fake := &fakeAuth{
		signIn: func(auth.Credentials) (auth.AuthResponse, error) {
			return auth.AuthResponse{}, nil
		},
	}
	h := newTestHandler(t, map[string]string{
		"REYADA_HTTP_AUTH_RATE_PER_MINUTE": "1",
		"REYADA_HTTP_AUTH_RATE_BURST":      "1",
	}, Dependencies{Auth: fake.factory})

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	if code := send("10.0.0.1:5000"); code != http.StatusOK {
		t.Fatalf("first status = %d", code)
	}
	if code := send("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", code)
	}
	if code := send("10.0.0.2:5000"); code != http.StatusOK {
		t.Fatalf("other client status = %d", code)
	}
}

func TestUpstreamFailureIsRetryable(t *testing.T) {
	repo := &fakeCatalog{
		listCountries: func(context.Context) ([]catalog.Country, error) {
			return nil, errs.New(errs.KindTransport, "connection refused")
		},
	}
	h := newTestHandler(t, nil, Dependencies{Catalog: repo})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/countries", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	if decodeBody(t, rr)["retryable"] != true {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestListCitiesValidatesCountryID(t *testing.T) {
	var gotCountry int64
	repo := &fakeCatalog{
		listCities: func(_ context.Context, countryID int64) ([]catalog.City, error) {
			gotCountry = countryID
			return []catalog.City{{ID: 7, CountryID: countryID, NameEN: "Doha"}}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Catalog: repo})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/countries/abc/cities", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/countries/3/cities", nil))
	if rr.Code != http.StatusOK || gotCountry != 3 {
		t.Fatalf("status = %d, country = %d", rr.Code, gotCountry)
	}
}

func TestListFacilitiesAppliesFilterAndCount(t *testing.T) {
	var mu sync.Mutex
	var filters []catalog.FacilityFilter
	repo := &fakeCatalog{
		listFacilities: func(_ context.Context, filter catalog.FacilityFilter) ([]catalog.Facility, error) {
			mu.Lock()
			filters = append(filters, filter)
			mu.Unlock()
			return []catalog.Facility{
				{ID: "kuwait", Location: &catalog.Location{Latitude: 29.3759, Longitude: 47.9774}},
				{ID: "doha", Location: &catalog.Location{Latitude: 25.2854, Longitude: 51.5310}},
			}, nil
		},
		countFacilities: func(_ context.Context, filter catalog.FacilityFilter) (int64, error) {
			mu.Lock()
			filters = append(filters, filter)
			mu.Unlock()
			return 12, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Catalog: repo})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/facilities?country=qa&city_id=4&type=padel&q=club&featured=true&limit=5&near=25.29,51.53", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}

	want := catalog.FacilityFilter{CountryCode: "qa", CityID: 4, FacilityType: "padel", Search: "club", FeaturedOnly: true, Limit: 5}
	if len(filters) != 2 || filters[0] != want || filters[1] != want {
		t.Fatalf("filters = %+v", filters)
	}

	var body struct {
		Facilities []catalog.Facility `json:"facilities"`
		Count      int64              `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.Count != 12 || len(body.Facilities) != 2 || body.Facilities[0].ID != "doha" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestListFacilitiesRejectsBadQuery(t *testing.T) {
	h := newTestHandler(t, nil, Dependencies{Catalog: &fakeCatalog{}})
	for _, target := range []string{
		"/v1/facilities?city_id=x",
		"/v1/facilities?featured=maybe",
		"/v1/facilities?limit=0",
		"/v1/facilities?near=25.2",
		"/v1/facilities?near=95,51",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s status = %d", target, rr.Code)
		}
	}
}

func TestGetFacilityIncludesReviewsAndMapsNotFound(t *testing.T) {
	repo := &fakeCatalog{
		getFacility: func(_ context.Context, id string) (catalog.Facility, error) {
			if id != "fac-1" {
				return catalog.Facility{}, errs.New(errs.KindNotFound, "No rows found")
			}
			return catalog.Facility{ID: id, NameEN: "Aspire Padel"}, nil
		},
		listReviews: func(_ context.Context, id string, limit int) ([]catalog.Review, error) {
			if limit != facilityReviewLimit {
				t.Fatalf("limit = %d", limit)
			}
			return []catalog.Review{{ID: "r1", FacilityID: id, Rating: 5}}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Catalog: repo})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/facilities/fac-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	reviews, _ := body["reviews"].([]any)
	if len(reviews) != 1 {
		t.Fatalf("body = %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/facilities/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rr.Code)
	}
}

func TestUpdateProfileUsesCallerID(t *testing.T) {
	repo := &fakeCatalog{
		updateProfile: func(_ context.Context, userID string, in catalog.ProfileUpdate) (catalog.Profile, error) {
			if in.FullName == nil || *in.FullName != "Noor" {
				t.Fatalf("update = %+v", in)
			}
			return catalog.Profile{ID: userID, FullName: *in.FullName}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Catalog: repo})

	req := authedRequest(t, http.MethodPatch, "/v1/profile", strings.NewReader(`{"full_name":"Noor"}`), "user-9")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if decodeBody(t, rr)["id"] != "user-9" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestUploadAvatarStoresObjectAndUpdatesProfile(t *testing.T) {
	store := &memoryObjects{objects: map[string][]byte{}}
	var savedURL string
	repo := &fakeCatalog{
		updateProfile: func(_ context.Context, userID string, in catalog.ProfileUpdate) (catalog.Profile, error) {
			if in.AvatarURL == nil {
				t.Fatal("avatar url not set")
			}
			savedURL = *in.AvatarURL
			return catalog.Profile{ID: userID, AvatarURL: savedURL}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{
		Catalog: repo,
		Storage: storage.NewService(store, "https://cdn.example.com/media/", nil),
	})

	body, contentType := multipartFile(t, "Me.PNG", "image/png", []byte("\x89PNG\r\n\x1a\nrest"))
	req := authedRequest(t, http.MethodPost, "/v1/profile/avatar", body, "user-3")
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if _, ok := store.objects["user-3/avatar.png"]; !ok {
		t.Fatalf("stored keys = %v", store.keys())
	}
	if store.contentTypes["user-3/avatar.png"] != "image/png" {
		t.Fatalf("content type = %q", store.contentTypes["user-3/avatar.png"])
	}
	if savedURL != "https://cdn.example.com/media/user-3/avatar.png" {
		t.Fatalf("avatar url = %q", savedURL)
	}
}

func TestUploadAvatarRejectsOversizedAndMissingFile(t *testing.T) {
	store := &memoryObjects{objects: map[string][]byte{}}
	h := newTestHandler(t, map[string]string{"REYADA_HTTP_MAX_UPLOAD_BYTES": "64"}, Dependencies{
		Catalog: &fakeCatalog{},
		Storage: storage.NewService(store, "https://cdn.example.com", nil),
	})

	body, contentType := multipartFile(t, "big.jpg", "image/jpeg", bytes.Repeat([]byte("a"), 1024))
	req := authedRequest(t, http.MethodPost, "/v1/profile/avatar", body, "user-3")
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized status = %d, body=%s", rr.Code, rr.Body.String())
	}

	req = authedRequest(t, http.MethodPost, "/v1/profile/avatar", strings.NewReader(""), "user-3")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing status = %d", rr.Code)
	}
	if len(store.objects) != 0 {
		t.Fatalf("unexpected objects: %v", store.keys())
	}
}

func TestCreateBookingPassesCaller(t *testing.T) {
	repo := &fakeCatalog{
		createBooking: func(_ context.Context, in catalog.CreateBookingInput) (catalog.Booking, error) {
			if in.UserID != "user-5" || in.FacilityID != "fac-1" || in.DurationMinutes != 90 {
				t.Fatalf("input = %+v", in)
			}
			return catalog.Booking{ID: "b1", Reference: "ABC", Status: catalog.BookingPending}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Catalog: repo})

	body := `{"facility_id":"fac-1","booking_date":"2026-03-05","time_slot":"18:00","duration_minutes":90,"number_of_players":4}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/bookings", strings.NewReader(body), "user-5"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/bookings", strings.NewReader(`{"booking_date":"2026-03-05"}`), "user-5"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing facility status = %d", rr.Code)
	}
}

func TestCancelBooking(t *testing.T) {
	var gotReason string
	repo := &fakeCatalog{
		cancelBooking: func(_ context.Context, userID, bookingID, reason string) (catalog.Booking, error) {
			if bookingID != "b1" {
				return catalog.Booking{}, errs.New(errs.KindNotFound, "No rows found")
			}
			gotReason = reason
			return catalog.Booking{ID: bookingID, UserID: userID, Status: catalog.BookingCancelledByUser}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Catalog: repo})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/bookings/b1/cancel", strings.NewReader(`{"reason":"rain"}`), "user-5"))
	if rr.Code != http.StatusOK || gotReason != "rain" {
		t.Fatalf("status = %d, reason = %q", rr.Code, gotReason)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/bookings/b1/cancel", nil, "user-5"))
	if rr.Code != http.StatusOK || gotReason != "" {
		t.Fatalf("no body status = %d, reason = %q", rr.Code, gotReason)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/v1/bookings/other/cancel", nil, "user-5"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rr.Code)
	}
}

func TestOwnedFacilitiesRequireOwnerRole(t *testing.T) {
	var seen []catalog.FacilityFilter
	repo := &fakeCatalog{
		listFacilities: func(_ context.Context, filter catalog.FacilityFilter) ([]catalog.Facility, error) {
			seen = append(seen, filter)
			return []catalog.Facility{{ID: "f-1", OwnerID: filter.OwnerID}}, nil
		},
	}
	h := newTestHandler(t, nil, Dependencies{Catalog: repo})

	send := func(target, userID, role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer "+issueRoleToken(t, userID, role))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("/v1/owner/facilities", "user-1", auth.RoleUser); rr.Code != http.StatusForbidden {
		t.Fatalf("user status = %d", rr.Code)
	}
	rr := send("/v1/owner/facilities", "owner-1", auth.RoleOwner)
	if rr.Code != http.StatusOK || decodeBody(t, rr)["owner_id"] != "owner-1" {
		t.Fatalf("owner status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if rr := send("/v1/owner/facilities?owner_id=owner-2", "owner-1", auth.RoleOwner); rr.Code != http.StatusForbidden {
		t.Fatalf("owner peeking status = %d", rr.Code)
	}
	rr = send("/v1/owner/facilities?owner_id=owner-2", "admin-1", auth.RoleSuperAdmin)
	if rr.Code != http.StatusOK || decodeBody(t, rr)["owner_id"] != "owner-2" {
		t.Fatalf("admin status = %d, body=%s", rr.Code, rr.Body.String())
	}

	if len(seen) != 2 {
		t.Fatalf("catalog calls = %d, want 2", len(seen))
	}
	for _, filter := range seen {
		if !filter.IncludeInactive {
			t.Fatalf("filter = %+v, want inactive included", filter)
		}
	}
	if seen[0].OwnerID != "owner-1" || seen[1].OwnerID != "owner-2" {
		t.Fatalf("owners = %q, %q", seen[0].OwnerID, seen[1].OwnerID)
	}
}

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	if values == nil {
		values = map[string]string{}
	}
	values["REYADA_AUTH_TOKEN_SECRET"] = testSecret
	cfg, err := config.Load("reyada-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func newTestHandler(t *testing.T, env map[string]string, deps Dependencies) http.Handler {
	t.Helper()
	validator, err := auth.NewJWTValidator(testSecret)
	if err != nil {
		t.Fatalf("NewJWTValidator() error = %v", err)
	}
	deps.AuthMiddleware = auth.Middleware(nil, validator)
	return NewHandler(loadConfig(t, env), deps)
}

func issueToken(t *testing.T, userID string) string {
	t.Helper()
	return issueRoleToken(t, userID, auth.RoleUser)
}

func issueRoleToken(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Identity{UserID: userID, Role: role}, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func authedRequest(t *testing.T, method, target string, body io.Reader, userID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, userID))
	return req
}

func multipartFile(t *testing.T, filename, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("part.Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close() error = %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v, body=%s", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

type fakeAuth struct {
	signIn       func(auth.Credentials) (auth.AuthResponse, error)
	signUp       func(auth.SignUpInput) (auth.AuthResponse, error)
	lastLanguage string
}

func (f *fakeAuth) factory(acceptLanguage string) Authenticator {
	f.lastLanguage = acceptLanguage
	return f
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, creds auth.Credentials) (auth.AuthResponse, error) {
	return f.signIn(creds)
}

func (f *fakeAuth) SignUp(_ context.Context, input auth.SignUpInput) (auth.AuthResponse, error) {
	return f.signUp(input)
}

type fakeCatalog struct {
	listCountries   func(context.Context) ([]catalog.Country, error)
	listCities      func(context.Context, int64) ([]catalog.City, error)
	listFacilities  func(context.Context, catalog.FacilityFilter) ([]catalog.Facility, error)
	countFacilities func(context.Context, catalog.FacilityFilter) (int64, error)
	getFacility     func(context.Context, string) (catalog.Facility, error)
	listReviews     func(context.Context, string, int) ([]catalog.Review, error)
	getProfile      func(context.Context, string) (catalog.Profile, error)
	updateProfile   func(context.Context, string, catalog.ProfileUpdate) (catalog.Profile, error)
	createBooking   func(context.Context, catalog.CreateBookingInput) (catalog.Booking, error)
	listBookings    func(context.Context, string) ([]catalog.Booking, error)
	cancelBooking   func(context.Context, string, string, string) (catalog.Booking, error)
}

var _ catalog.Repository = (*fakeCatalog)(nil)

func (f *fakeCatalog) HealthCheck(context.Context) error { return nil }

func (f *fakeCatalog) ListCountries(ctx context.Context) ([]catalog.Country, error) {
	if f.listCountries == nil {
		return []catalog.Country{}, nil
	}
	return f.listCountries(ctx)
}

func (f *fakeCatalog) ListCities(ctx context.Context, countryID int64) ([]catalog.City, error) {
	if f.listCities == nil {
		return []catalog.City{}, nil
	}
	return f.listCities(ctx, countryID)
}

func (f *fakeCatalog) ListFacilities(ctx context.Context, filter catalog.FacilityFilter) ([]catalog.Facility, error) {
	if f.listFacilities == nil {
		return []catalog.Facility{}, nil
	}
	return f.listFacilities(ctx, filter)
}

func (f *fakeCatalog) CountFacilities(ctx context.Context, filter catalog.FacilityFilter) (int64, error) {
	if f.countFacilities == nil {
		return 0, nil
	}
	return f.countFacilities(ctx, filter)
}

func (f *fakeCatalog) GetFacility(ctx context.Context, id string) (catalog.Facility, error) {
	if f.getFacility == nil {
		return catalog.Facility{}, errs.New(errs.KindNotFound, "No rows found")
	}
	return f.getFacility(ctx, id)
}

func (f *fakeCatalog) ListReviews(ctx context.Context, id string, limit int) ([]catalog.Review, error) {
	if f.listReviews == nil {
		return []catalog.Review{}, nil
	}
	return f.listReviews(ctx, id, limit)
}

func (f *fakeCatalog) GetProfile(ctx context.Context, userID string) (catalog.Profile, error) {
	if f.getProfile == nil {
		return catalog.Profile{}, errs.New(errs.KindNotFound, "No rows found")
	}
	return f.getProfile(ctx, userID)
}

func (f *fakeCatalog) UpdateProfile(ctx context.Context, userID string, in catalog.ProfileUpdate) (catalog.Profile, error) {
	if f.updateProfile == nil {
		return catalog.Profile{}, errs.New(errs.KindValidation, "no profile fields to update")
	}
	return f.updateProfile(ctx, userID, in)
}

func (f *fakeCatalog) CreateBooking(ctx context.Context, in catalog.CreateBookingInput) (catalog.Booking, error) {
	if f.createBooking == nil {
		return catalog.Booking{}, errs.New(errs.KindValidation, "bookings disabled")
	}
	return f.createBooking(ctx, in)
}

func (f *fakeCatalog) ListBookingsForUser(ctx context.Context, userID string) ([]catalog.Booking, error) {
	if f.listBookings == nil {
		return []catalog.Booking{}, nil
	}
	return f.listBookings(ctx, userID)
}

func (f *fakeCatalog) CancelBooking(ctx context.Context, userID, bookingID, reason string) (catalog.Booking, error) {
	if f.cancelBooking == nil {
		return catalog.Booking{}, errs.New(errs.KindNotFound, "No rows found")
	}
	return f.cancelBooking(ctx, userID, bookingID, reason)
}

type memoryObjects struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func (m *memoryObjects) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contentTypes == nil {
		m.contentTypes = map[string]string{}
	}
	m.objects[key] = data
	m.contentTypes[key] = opts.ContentType
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for key := range m.objects {
		out = append(out, key)
	}
	return out
}
