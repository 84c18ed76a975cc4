package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/reyadatime/reyadatime/internal/auth"
	"github.com/reyadatime/reyadatime/internal/catalog"
)

const facilityReviewLimit = 10

func handleListCountries(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	countries, err := deps.Catalog.ListCountries(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"countries": countries})
}

func handleListCities(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	countryID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || countryID <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_COUNTRY_ID", "country id must be a positive integer", false, nil)
		return
	}
	cities, err := deps.Catalog.ListCities(r.Context(), countryID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"country_id": countryID, "cities": cities})
}

func handleListFacilities(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	filter, err := facilityFilterFromQuery(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILTER", err.Error(), false, nil)
		return
	}
	var origin *catalog.Location
	if raw := strings.TrimSpace(r.URL.Query().Get("near")); raw != "" {
		loc, err := parseLocation(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILTER", err.Error(), false, nil)
			return
		}
		origin = &loc
	}

	var (
		facilities []catalog.Facility
		total      int64
	)
	group, ctx := errgroup.WithContext(r.Context())
	group.Go(func() error {
		var err error
		facilities, err = deps.Catalog.ListFacilities(ctx, filter)
		return err
	})
	group.Go(func() error {
		var err error
		total, err = deps.Catalog.CountFacilities(ctx, filter)
		return err
	})
	if err := group.Wait(); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if origin != nil {
		catalog.SortByDistance(facilities, origin.Point())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"facilities": facilities,
		"count":      total,
	})
}

func handleGetFacility(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	facilityID := strings.TrimSpace(r.PathValue("id"))

	var (
		facility catalog.Facility
		reviews  []catalog.Review
	)
	group, ctx := errgroup.WithContext(r.Context())
	group.Go(func() error {
		var err error
		facility, err = deps.Catalog.GetFacility(ctx, facilityID)
		return err
	})
	group.Go(func() error {
		var err error
		reviews, err = deps.Catalog.ListReviews(ctx, facilityID, facilityReviewLimit)
		return err
	})
	if err := group.Wait(); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"facility": facility,
		"reviews":  reviews,
	})
}

// handleListOwnedFacilities lists the caller's facilities, inactive ones
// included. Admins may pass owner_id to look at another owner.
func handleListOwnedFacilities(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity.UserID == "" {
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", false, nil)
		return
	}
	if !identity.HasRole(auth.RoleOwner) {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "facility owner role required", false, nil)
		return
	}
	if !requireCatalog(deps, w, r) {
		return
	}

	ownerID := identity.UserID
	if requested := strings.TrimSpace(r.URL.Query().Get("owner_id")); requested != "" && requested != ownerID {
		if !identity.IsAdmin() {
			writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "only admins may list another owner's facilities", false, nil)
			return
		}
		ownerID = requested
	}
	facilities, err := deps.Catalog.ListFacilities(r.Context(), catalog.FacilityFilter{OwnerID: ownerID, IncludeInactive: true})
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner_id": ownerID, "facilities": facilities})
}

func facilityFilterFromQuery(r *http.Request) (catalog.FacilityFilter, error) {
	values := r.URL.Query()
	filter := catalog.FacilityFilter{
		CountryCode:  strings.TrimSpace(values.Get("country")),
		FacilityType: strings.TrimSpace(values.Get("type")),
		Search:       strings.TrimSpace(values.Get("q")),
	}
	if raw := values.Get("city_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, fmt.Errorf("city_id must be a positive integer")
		}
		filter.CityID = id
	}
	if raw := values.Get("featured"); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("featured must be a boolean")
		}
		filter.FeaturedOnly = featured
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("limit must be a positive integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

// parseLocation reads "lat,lng".
func parseLocation(raw string) (catalog.Location, error) {
	latRaw, lngRaw, ok := strings.Cut(raw, ",")
	if !ok {
		return catalog.Location{}, fmt.Errorf("near must be lat,lng")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	if err != nil || lat < -90 || lat > 90 {
		return catalog.Location{}, fmt.Errorf("near latitude is invalid")
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if err != nil || lng < -180 || lng > 180 {
		return catalog.Location{}, fmt.Errorf("near longitude is invalid")
	}
	return catalog.Location{Latitude: lat, Longitude: lng}, nil
}
