// Package catalog holds the marketplace models (countries, facilities, profiles,
// bookings) and a repository that reads and writes them through the query builder.
package catalog

import (
	"context"
	"time"
)

type Repository interface {
	HealthCheck(ctx context.Context) error
	ListCountries(ctx context.Context) ([]Country, error)
	ListCities(ctx context.Context, countryID int64) ([]City, error)
	ListFacilities(ctx context.Context, filter FacilityFilter) ([]Facility, error)
	CountFacilities(ctx context.Context, filter FacilityFilter) (int64, error)
	GetFacility(ctx context.Context, facilityID string) (Facility, error)
	ListReviews(ctx context.Context, facilityID string, limit int) ([]Review, error)
	GetProfile(ctx context.Context, userID string) (Profile, error)
	UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (Profile, error)
	CreateBooking(ctx context.Context, in CreateBookingInput) (Booking, error)
	ListBookingsForUser(ctx context.Context, userID string) ([]Booking, error)
	CancelBooking(ctx context.Context, userID, bookingID, reason string) (Booking, error)
}

const (
	BookingPending         = "pending"
	BookingConfirmed       = "confirmed"
	BookingCompleted       = "completed"
	BookingCancelledByUser = "cancelled_by_user"
	BookingCancelledByHost = "cancelled_by_facility"
)

type Country struct {
	ID       int64  `json:"id"`
	NameEN   string `json:"name_en"`
	NameAR   string `json:"name_ar"`
	Code     string `json:"code"`
	FlagURL  string `json:"flag_url,omitempty"`
	IsActive bool   `json:"is_active"`
}

type City struct {
	ID        int64  `json:"id"`
	CountryID int64  `json:"country_id"`
	NameEN    string `json:"name_en"`
	NameAR    string `json:"name_ar"`
	IsActive  bool   `json:"is_active"`
}

type Profile struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	FullName    string         `json:"full_name"`
	Phone       string         `json:"phone,omitempty"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	CountryID   *int64         `json:"country_id,omitempty"`
	CityID      *int64         `json:"city_id,omitempty"`
	Role        string         `json:"role"`
	IsActive    bool           `json:"is_active"`
	Preferences map[string]any `json:"preferences,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
}

// ProfileUpdate carries the editable profile fields; nil fields are left unchanged.
type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	CountryID *int64  `json:"country_id,omitempty"`
	CityID    *int64  `json:"city_id,omitempty"`
}

type Photo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// Owner is the public slice of a facility owner's profile.
type Owner struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Facility struct {
	ID                 string         `json:"id"`
	OwnerID            string         `json:"owner_id"`
	NameEN             string         `json:"name_en"`
	NameAR             string         `json:"name_ar"`
	DescriptionEN      string         `json:"description_en"`
	DescriptionAR      string         `json:"description_ar"`
	FacilityType       string         `json:"facility_type"`
	AddressEN          string         `json:"address_en"`
	AddressAR          string         `json:"address_ar"`
	CountryID          int64          `json:"country_id"`
	CityID             int64          `json:"city_id"`
	Location           *Location      `json:"location,omitempty"`
	OpeningHours       map[string]any `json:"opening_hours,omitempty"`
	Rating             float64        `json:"rating"`
	ReviewCount        int            `json:"review_count"`
	AmenitiesEN        []string       `json:"amenities_en"`
	AmenitiesAR        []string       `json:"amenities_ar"`
	VerificationStatus string         `json:"verification_status"`
	IsActive           bool           `json:"is_active"`
	PricePerHour       float64        `json:"price_per_hour"`
	Currency           string         `json:"currency"`
	Capacity           int            `json:"capacity"`
	IsFeatured         bool           `json:"is_featured"`
	FeaturedUntil      *time.Time     `json:"featured_until,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	Country *Country `json:"country,omitempty"`
	City    *City    `json:"city,omitempty"`
	Photos  []Photo  `json:"photos,omitempty"`
	Owner   *Owner   `json:"owner,omitempty"`
}

type FacilityFilter struct {
	CountryCode  string
	CityID       int64
	FacilityType string
	Search       string
	FeaturedOnly bool
	Limit        int

	// OwnerID narrows to one owner's facilities. IncludeInactive keeps
	// deactivated ones, which browsing never shows.
	OwnerID         string
	IncludeInactive bool
}

type Booking struct {
	ID                 string     `json:"id"`
	Reference          string     `json:"reference"`
	UserID             string     `json:"user_id"`
	FacilityID         string     `json:"facility_id"`
	BookingDate        time.Time  `json:"booking_date"`
	TimeSlot           string     `json:"time_slot"`
	DurationMinutes    int        `json:"duration_minutes"`
	NumberOfPlayers    int        `json:"number_of_players"`
	TotalPrice         float64    `json:"total_price"`
	Status             string     `json:"status"`
	PaymentStatus      string     `json:"payment_status"`
	PaymentMethod      string     `json:"payment_method,omitempty"`
	PromoCode          string     `json:"promo_code,omitempty"`
	DiscountAmount     float64    `json:"discount_amount,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	Facility *Facility `json:"facility,omitempty"`
}

type CreateBookingInput struct {
	UserID          string `json:"user_id"`
	FacilityID      string `json:"facility_id"`
	// BookingDate is a calendar date, YYYY-MM-DD.
	BookingDate     string `json:"booking_date"`
	TimeSlot        string `json:"time_slot"`
	DurationMinutes int    `json:"duration_minutes"`
	NumberOfPlayers int    `json:"number_of_players"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	PromoCode       string `json:"promo_code,omitempty"`
}

type Review struct {
	ID         string    `json:"id"`
	BookingID  string    `json:"booking_id"`
	UserID     string    `json:"user_id"`
	FacilityID string    `json:"facility_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}
