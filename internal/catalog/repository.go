package catalog

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/reyadatime/reyadatime/internal/errs"
	"github.com/reyadatime/reyadatime/internal/observability"
	"github.com/reyadatime/reyadatime/internal/query"
)

const (
	facilityListColumns = "*, country:countries(id, name_en, name_ar, code), city:cities(id, name_en, name_ar), photos(id, url, position)"
	facilityColumns     = "*, country:countries(id, name_en, name_ar, code), city:cities(id, name_en, name_ar), photos(id, url, position), owner:profiles!owner_id(id, full_name, avatar_url)"
	profileColumns      = "id, email, full_name, phone, avatar_url, country_id, city_id, role, is_active, preferences, created_at, updated_at, last_login_at"
	bookingColumns      = "*, facility:facilities(id, name_en, name_ar, address_en, address_ar, facility_type, currency)"

	defaultFacilityLimit = 50
	maxFacilityLimit     = 200
)

type Options struct {
	Logger *slog.Logger
	Clock  func() time.Time
	// ProfileFetchAttempts bounds GetProfile tries on transport failures.
	ProfileFetchAttempts int
	ProfileFetchBackoff  time.Duration
}

type Store struct {
	db              *query.Client
	logger          *slog.Logger
	now             func() time.Time
	profileAttempts int
	profileBackoff  time.Duration
}

var _ Repository = (*Store)(nil)

func NewStore(db *query.Client, opts Options) *Store {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	attempts := opts.ProfileFetchAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Store{
		db:              db,
		logger:          observability.WithComponent(opts.Logger, "catalog"),
		now:             now,
		profileAttempts: attempts,
		profileBackoff:  opts.ProfileFetchBackoff,
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Store) HealthCheck(ctx context.Context) error {
	p, ok := s.db.Executor().(pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return errs.Wrap(errs.KindTransport, err)
	}
	return nil
}

func (s *Store) ListCountries(ctx context.Context) ([]Country, error) {
	var countries []Country
	res := s.db.From("countries").Select("*").Eq("is_active", true).Order("name_en", query.Asc).Execute(ctx)
	if err := res.Decode(&countries); err != nil {
		return nil, errs.From(err)
	}
	return nonNil(countries), nil
}

func (s *Store) ListCities(ctx context.Context, countryID int64) ([]City, error) {
	var cities []City
	res := s.db.From("cities").Select("*").
		Eq("country_id", countryID).
		Eq("is_active", true).
		Order("name_en", query.Asc).
		Execute(ctx)
	if err := res.Decode(&cities); err != nil {
		return nil, errs.From(err)
	}
	return nonNil(cities), nil
}

func (s *Store) ListFacilities(ctx context.Context, filter FacilityFilter) ([]Facility, error) {
	b := s.db.From("facilities").Select(facilityListColumns)
	applyFacilityFilter(b, filter)
	b.Order("is_featured", query.Desc).Order("rating", query.Desc).Limit(facilityLimit(filter.Limit))

	var facilities []Facility
	if err := b.Execute(ctx).Decode(&facilities); err != nil {
		return nil, errs.From(err)
	}
	return nonNil(facilities), nil
}

func (s *Store) CountFacilities(ctx context.Context, filter FacilityFilter) (int64, error) {
	b := s.db.From("facilities").Select("*", query.SelectOptions{Count: query.CountExact, Head: true})
	applyFacilityFilter(b, filter)
	res := b.Execute(ctx)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.Count == nil {
		return 0, nil
	}
	return *res.Count, nil
}

func applyFacilityFilter(b *query.Builder, filter FacilityFilter) {
	if !filter.IncludeInactive {
		b.Eq("is_active", true)
	}
	if code := strings.TrimSpace(filter.CountryCode); code != "" {
		b.Eq("country.code", strings.ToUpper(code))
	}
	if filter.CityID > 0 {
		b.Eq("city_id", filter.CityID)
	}
	if kind := strings.TrimSpace(filter.FacilityType); kind != "" {
		b.Eq("facility_type", kind)
	}
	if filter.FeaturedOnly {
		b.Eq("is_featured", true)
	}
	if term := searchTerm(filter.Search); term != "" {
		b.Or("name_en.ilike.%" + term + "%,name_ar.ilike.%" + term + "%")
	}
	if owner := strings.TrimSpace(filter.OwnerID); owner != "" {
		b.Eq("owner_id", owner)
	}
}

// searchTerm drops the characters that delimit or-group conditions.
func searchTerm(raw string) string {
	return strings.TrimSpace(strings.NewReplacer(",", " ", "(", " ", ")", " ").Replace(raw))
}

func facilityLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultFacilityLimit
	case limit > maxFacilityLimit:
		return maxFacilityLimit
	default:
		return limit
	}
}

func (s *Store) GetFacility(ctx context.Context, facilityID string) (Facility, error) {
	var facility Facility
	res := s.db.From("facilities").Select(facilityColumns).Eq("id", facilityID).Single().Execute(ctx)
	if err := res.Decode(&facility); err != nil {
		return Facility{}, errs.From(err)
	}
	return facility, nil
}

func (s *Store) ListReviews(ctx context.Context, facilityID string, limit int) ([]Review, error) {
	b := s.db.From("reviews").Select("*").Eq("facility_id", facilityID).Order("created_at", query.Desc)
	if limit > 0 {
		b.Limit(limit)
	}
	var reviews []Review
	if err := b.Execute(ctx).Decode(&reviews); err != nil {
		return nil, errs.From(err)
	}
	return nonNil(reviews), nil
}

// GetProfile reads a profile, retrying transport failures. A profile row can lag
// behind sign-up when the two inserts are not batched.
func (s *Store) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var lastErr *errs.Error
	for attempt := 1; attempt <= s.profileAttempts; attempt++ {
		var profile Profile
		res := s.db.From("profiles").Select(profileColumns).Eq("id", userID).Single().Execute(ctx)
		err := res.Decode(&profile)
		if err == nil {
			return profile, nil
		}
		lastErr = errs.From(err)
		if lastErr.Kind != errs.KindTransport || attempt == s.profileAttempts {
			break
		}
		s.logger.WarnContext(ctx, "retrying profile fetch",
			slog.String("user_id", userID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if err := sleepContext(ctx, s.profileBackoff*time.Duration(attempt)); err != nil {
			return Profile{}, errs.Wrap(errs.KindTransport, err)
		}
	}
	return Profile{}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (Profile, error) {
	changes := query.Record{}
	if in.FullName != nil {
		changes["full_name"] = strings.TrimSpace(*in.FullName)
	}
	if in.Phone != nil {
		changes["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.AvatarURL != nil {
		changes["avatar_url"] = *in.AvatarURL
	}
	if in.CountryID != nil {
		changes["country_id"] = *in.CountryID
	}
	if in.CityID != nil {
		changes["city_id"] = *in.CityID
	}
	if len(changes) == 0 {
		return Profile{}, errs.New(errs.KindValidation, "no profile fields to update")
	}
	changes["updated_at"] = s.now().UTC()

	var profile Profile
	res := s.db.From("profiles").Update(changes).Eq("id", userID).Select(profileColumns).Single().Execute(ctx)
	if err := res.Decode(&profile); err != nil {
		return Profile{}, errs.From(err)
	}
	return profile, nil
}

func (s *Store) CreateBooking(ctx context.Context, in CreateBookingInput) (Booking, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(in.BookingDate))
	if err != nil {
		return Booking{}, errs.New(errs.KindValidation, "booking_date must be YYYY-MM-DD")
	}
	if strings.TrimSpace(in.TimeSlot) == "" {
		return Booking{}, errs.New(errs.KindValidation, "time_slot is required")
	}
	if in.DurationMinutes <= 0 || in.DurationMinutes%30 != 0 {
		return Booking{}, errs.New(errs.KindValidation, "duration_minutes must be a positive multiple of 30")
	}
	if in.NumberOfPlayers <= 0 {
		return Booking{}, errs.New(errs.KindValidation, "number_of_players must be positive")
	}

	var facility struct {
		ID           string  `json:"id"`
		PricePerHour float64 `json:"price_per_hour"`
		Capacity     int     `json:"capacity"`
		IsActive     bool    `json:"is_active"`
	}
	res := s.db.From("facilities").Select("id, price_per_hour, capacity, is_active").Eq("id", in.FacilityID).Single().Execute(ctx)
	if err := res.Decode(&facility); err != nil {
		return Booking{}, errs.From(err)
	}
	if !facility.IsActive {
		return Booking{}, errs.New(errs.KindValidation, "facility is not accepting bookings")
	}
	if facility.Capacity > 0 && in.NumberOfPlayers > facility.Capacity {
		return Booking{}, errs.Newf(errs.KindValidation, "facility holds at most %d players", facility.Capacity)
	}

	now := s.now().UTC()
	row := query.Record{
		"reference":         strings.ToUpper(xid.New().String()),
		"user_id":           in.UserID,
		"facility_id":       facility.ID,
		"booking_date":      date.Format(time.DateOnly),
		"time_slot":         strings.TrimSpace(in.TimeSlot),
		"duration_minutes":  in.DurationMinutes,
		"number_of_players": in.NumberOfPlayers,
		"total_price":       bookingPrice(facility.PricePerHour, in.DurationMinutes),
		"status":            BookingPending,
		"payment_status":    "pending",
		"created_at":        now,
		"updated_at":        now,
	}
	if in.PaymentMethod != "" {
		row["payment_method"] = in.PaymentMethod
	}
	if in.PromoCode != "" {
		row["promo_code"] = in.PromoCode
	}

	var booking Booking
	if err := s.db.From("bookings").Insert(row).Select(bookingColumns).Single().Execute(ctx).Decode(&booking); err != nil {
		return Booking{}, errs.From(err)
	}
	s.logger.InfoContext(ctx, "booking created",
		slog.String("booking_id", booking.ID),
		slog.String("facility_id", booking.FacilityID),
		slog.String("user_id", booking.UserID),
	)
	return booking, nil
}

// bookingPrice is the hourly rate prorated to the booked minutes, in cents precision.
func bookingPrice(pricePerHour float64, minutes int) float64 {
	return math.Round(pricePerHour*float64(minutes)/60*100) / 100
}

func (s *Store) ListBookingsForUser(ctx context.Context, userID string) ([]Booking, error) {
	var bookings []Booking
	res := s.db.From("bookings").Select(bookingColumns).
		Eq("user_id", userID).
		Order("booking_date", query.Desc).
		Order("created_at", query.Desc).
		Execute(ctx)
	if err := res.Decode(&bookings); err != nil {
		return nil, errs.From(err)
	}
	return nonNil(bookings), nil
}

// CancelBooking cancels a pending or confirmed booking owned by userID. Any other
// booking reports not found.
func (s *Store) CancelBooking(ctx context.Context, userID, bookingID, reason string) (Booking, error) {
	now := s.now().UTC()
	changes := query.Record{
		"status":       BookingCancelledByUser,
		"cancelled_at": now,
		"updated_at":   now,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		changes["cancellation_reason"] = reason
	}

	var booking Booking
	res := s.db.From("bookings").Update(changes).
		Eq("id", bookingID).
		Eq("user_id", userID).
		In("status", BookingPending, BookingConfirmed).
		Select(bookingColumns).
		Single().
		Execute(ctx)
	if err := res.Decode(&booking); err != nil {
		return Booking{}, errs.From(err)
	}
	s.logger.InfoContext(ctx, "booking cancelled", slog.String("booking_id", booking.ID))
	return booking, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
