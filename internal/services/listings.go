package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

const (
	MinListingYear     = 1950
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	carMakesCacheKey   = "car_makes:all"
)

// ListingInput is the editable part of a listing.
type ListingInput struct {
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	VIN          string   `json:"vin"`
	Description  string   `json:"description"`
	DailyRate    float64  `json:"daily_rate"`
	Location     string   `json:"location"`
	Seats        int      `json:"seats"`
	Transmission string   `json:"transmission"`
	FuelType     string   `json:"fuel_type"`
	Features     []string `json:"features"`
	Photos       []string `json:"photos"`
}

// ListingFilter narrows a search. Zero values match everything.
type ListingFilter struct {
	Make         string
	Model        string
	Location     string
	MinRate      float64
	MaxRate      float64
	MinSeats     int
	Transmission string
	FuelType     string
	Sort         string // newest, price_asc or price_desc
	Limit        int
	Offset       int
}

// ListingService manages car listings and the make catalogue.
type ListingService struct {
	listings repositories.Listings
	bookings repositories.Bookings
	makes    repositories.CarMakes
	profiles *ProfileService
	cache    *Cache
	log      zerolog.Logger
	now      func() time.Time
}

func NewListingService(listings repositories.Listings, bookings repositories.Bookings, makes repositories.CarMakes, profiles *ProfileService, cache *Cache, log zerolog.Logger) *ListingService {
	return &ListingService{
		listings: listings,
		bookings: bookings,
		makes:    makes,
		profiles: profiles,
		cache:    cache,
		log:      log.With().Str("component", "listings").Logger(),
		now:      time.Now,
	}
}

func (s *ListingService) validate(in *ListingInput) error {
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	in.Location = strings.TrimSpace(in.Location)
	in.VIN = strings.ToUpper(strings.TrimSpace(in.VIN))

	maxYear := s.now().Year() + 1
	switch {
	case in.Make == "":
		return fmt.Errorf("%w: make is required", ErrInvalidInput)
	case in.Model == "":
		return fmt.Errorf("%w: model is required", ErrInvalidInput)
	case in.Year < MinListingYear || in.Year > maxYear:
		return fmt.Errorf("%w: year must be between %d and %d", ErrInvalidInput, MinListingYear, maxYear)
	case in.DailyRate <= 0:
		return fmt.Errorf("%w: daily rate must be positive", ErrInvalidInput)
	case in.Seats < 0:
		return fmt.Errorf("%w: seats cannot be negative", ErrInvalidInput)
	}
	return nil
}

func applyListingInput(l *models.CarListing, in ListingInput) {
	l.Make = in.Make
	l.Model = in.Model
	l.Year = in.Year
	l.VIN = in.VIN
	l.Description = strings.TrimSpace(in.Description)
	l.DailyRate = in.DailyRate
	l.Location = in.Location
	l.Seats = in.Seats
	l.Transmission = strings.ToLower(strings.TrimSpace(in.Transmission))
	l.FuelType = strings.ToLower(strings.TrimSpace(in.FuelType))
	l.Features = in.Features
	l.Photos = in.Photos
}

// Create lists a car for the caller, who must have finished onboarding.
func (s *ListingService) Create(ctx context.Context, caller string, in ListingInput) (*models.CarListing, error) {
	if err := s.profiles.RequireOnboarded(ctx, caller); err != nil {
		return nil, err
	}
	if err := s.validate(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	l := &models.CarListing{
		ID:        uuid.NewString(),
		OwnerID:   caller,
		Status:    models.CarActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyListingInput(l, in)

	if err := s.listings.Insert(ctx, l); err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	s.log.Info().Str("listing_id", l.ID).Str("owner_id", caller).Msg("listing created")
	return l, nil
}

// Get returns any listing.
func (s *ListingService) Get(ctx context.Context, id string) (*models.CarListing, error) {
	l, err := s.listings.Get(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	return l, nil
}

func (s *ListingService) loadOwned(ctx context.Context, id, caller string) (*models.CarListing, error) {
	if caller == "" {
		return nil, ErrUnauthenticated
	}
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != caller {
		return nil, ErrForbidden
	}
	return l, nil
}

// Update replaces the editable fields. Owner, id and status are kept.
func (s *ListingService) Update(ctx context.Context, id, caller string, in ListingInput) (*models.CarListing, error) {
	l, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	applyListingInput(l, in)
	l.UpdatedAt = s.now().UTC()

	if err := s.listings.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	return l, nil
}

// SetStatus changes availability.
func (s *ListingService) SetStatus(ctx context.Context, id, caller string, status models.CarStatus) (*models.CarListing, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	l, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	l.Status = status
	l.UpdatedAt = s.now().UTC()
	if err := s.listings.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	return l, nil
}

// Delete removes a listing that has no approved booking.
func (s *ListingService) Delete(ctx context.Context, id, caller string) error {
	l, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return err
	}
	bookings, err := s.bookings.ListByCar(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	for _, b := range bookings {
		if b.Status == models.BookingApproved {
			return fmt.Errorf("%w: the car has an approved booking", ErrBookingConflict)
		}
	}
	if err := s.listings.Delete(ctx, l.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("delete listing: %w", err)
	}
	s.log.Info().Str("listing_id", l.ID).Msg("listing deleted")
	return nil
}

// ListByOwner returns an owner's listings, newest first.
func (s *ListingService) ListByOwner(ctx context.Context, ownerID string) ([]models.CarListing, error) {
	out, err := s.listings.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return out, nil
}

// Search filters active listings and pages the result. It also returns the
// total number of matches before paging.
func (s *ListingService) Search(ctx context.Context, f ListingFilter) ([]models.CarListing, int, error) {
	active, err := s.listings.ListActive(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}

	matched := make([]models.CarListing, 0, len(active))
	for _, l := range active {
		if f.matches(&l) {
			matched = append(matched, l)
		}
	}

	switch f.Sort {
	case "price_asc":
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].DailyRate < matched[j].DailyRate })
	case "price_desc":
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].DailyRate > matched[j].DailyRate })
	default:
		models.SortListingsNewestFirst(matched)
	}

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	if f.Offset >= total || f.Offset < 0 {
		return []models.CarListing{}, total, nil
	}
	end := f.Offset + limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (f ListingFilter) matches(l *models.CarListing) bool {
	if f.Make != "" && !strings.EqualFold(l.Make, f.Make) {
		return false
	}
	if f.Model != "" && !strings.EqualFold(l.Model, f.Model) {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(l.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.MinRate > 0 && l.DailyRate < f.MinRate {
		return false
	}
	if f.MaxRate > 0 && l.DailyRate > f.MaxRate {
		return false
	}
	if f.MinSeats > 0 && l.Seats < f.MinSeats {
		return false
	}
	if f.Transmission != "" && !strings.EqualFold(l.Transmission, f.Transmission) {
		return false
	}
	if f.FuelType != "" && !strings.EqualFold(l.FuelType, f.FuelType) {
		return false
	}
	return true
}

// DefaultCarMakes seeds an empty catalogue.
var DefaultCarMakes = []models.CarMake{
	{ID: "audi", Name: "Audi", Models: []string{"A3", "A4", "Q3", "Q5"}},
	{ID: "bmw", Name: "BMW", Models: []string{"1 Series", "3 Series", "X1", "X3"}},
	{ID: "ford", Name: "Ford", Models: []string{"Fiesta", "Focus", "Mustang", "Ranger"}},
	{ID: "honda", Name: "Honda", Models: []string{"Civic", "Accord", "CR-V", "Jazz"}},
	{ID: "hyundai", Name: "Hyundai", Models: []string{"i10", "i20", "Creta", "Tucson"}},
	{ID: "kia", Name: "Kia", Models: []string{"Picanto", "Rio", "Seltos", "Sportage"}},
	{ID: "mercedes-benz", Name: "Mercedes-Benz", Models: []string{"A-Class", "C-Class", "E-Class", "GLC"}},
	{ID: "tesla", Name: "Tesla", Models: []string{"Model 3", "Model S", "Model X", "Model Y"}},
	{ID: "toyota", Name: "Toyota", Models: []string{"Corolla", "Camry", "RAV4", "Yaris"}},
	{ID: "volkswagen", Name: "Volkswagen", Models: []string{"Golf", "Polo", "Passat", "Tiguan"}},
}

// ListCarMakes returns the catalogue, seeding it on first use.
func (s *ListingService) ListCarMakes(ctx context.Context) ([]models.CarMake, error) {
	var cached []models.CarMake
	if ok, err := s.cache.Get(ctx, carMakesCacheKey, &cached); err != nil {
		s.log.Warn().Err(err).Msg("car makes cache read failed")
	} else if ok {
		return cached, nil
	}

	makes, err := s.makes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list car makes: %w", err)
	}
	if len(makes) == 0 {
		err := s.makes.InsertMany(ctx, DefaultCarMakes)
		if err != nil && !errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("seed car makes: %w", err)
		}
		if makes, err = s.makes.List(ctx); err != nil {
			return nil, fmt.Errorf("list car makes: %w", err)
		}
	}

	if err := s.cache.Set(ctx, carMakesCacheKey, makes, CarMakesCacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("car makes cache write failed")
	}
	return makes, nil
}
