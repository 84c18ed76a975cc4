package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/reyadatime/reyadatime/internal/catalog"
)

type createBookingRequest struct {
	FacilityID      string `json:"facility_id"`
	BookingDate     string `json:"booking_date"`
	TimeSlot        string `json:"time_slot"`
	DurationMinutes int    `json:"duration_minutes"`
	NumberOfPlayers int    `json:"number_of_players"`
	PaymentMethod   string `json:"payment_method"`
	PromoCode       string `json:"promo_code"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

func handleListBookings(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok || !requireCatalog(deps, w, r) {
		return
	}
	bookings, err := deps.Catalog.ListBookingsForUser(r.Context(), userID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func handleCreateBooking(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok || !requireCatalog(deps, w, r) {
		return
	}
	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FacilityID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "FACILITY_REQUIRED", "facility_id is required", false, nil)
		return
	}
	booking, err := deps.Catalog.CreateBooking(r.Context(), catalog.CreateBookingInput{
		UserID:          userID,
		FacilityID:      strings.TrimSpace(req.FacilityID),
		BookingDate:     req.BookingDate,
		TimeSlot:        req.TimeSlot,
		DurationMinutes: req.DurationMinutes,
		NumberOfPlayers: req.NumberOfPlayers,
		PaymentMethod:   req.PaymentMethod,
		PromoCode:       req.PromoCode,
	})
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// handleCancelBooking accepts an optional JSON body carrying a reason.
func handleCancelBooking(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok || !requireCatalog(deps, w, r) {
		return
	}
	var req cancelBookingRequest
	if r.Body != nil && r.ContentLength != 0 {
		decoder := newStrictDecoder(r.Body)
		if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
			return
		}
	}
	booking, err := deps.Catalog.CancelBooking(r.Context(), userID, r.PathValue("id"), req.Reason)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}
