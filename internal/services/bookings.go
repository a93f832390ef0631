package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories"
)

// BookingInput is a rental request.
type BookingInput struct {
	CarID     string    `json:"car_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Note      string    `json:"note"`
}

// BookingRole selects which side of a booking a listing is for.
type BookingRole string

const (
	RoleRenter BookingRole = "renter"
	RoleOwner  BookingRole = "owner"
)

type transitionActor int

const (
	actorOwner transitionActor = 1 << iota
	actorRenter
)

type transition struct {
	from, to models.BookingStatus
}

// allowed maps each legal status change to who may make it.
var allowed = map[transition]transitionActor{
	{models.BookingPending, models.BookingApproved}:   actorOwner,
	{models.BookingPending, models.BookingRejected}:   actorOwner,
	{models.BookingPending, models.BookingCanceled}:   actorOwner | actorRenter,
	{models.BookingApproved, models.BookingCanceled}:  actorOwner | actorRenter,
	{models.BookingApproved, models.BookingCompleted}: actorOwner,
}

// actorsFor is everyone who may move a booking into to from some state.
func actorsFor(to models.BookingStatus) transitionActor {
	var actors transitionActor
	for t, a := range allowed {
		if t.to == to {
			actors |= a
		}
	}
	return actors
}

// BookingService handles rental requests and their lifecycle.
type BookingService struct {
	bookings repositories.Bookings
	listings repositories.Listings
	events   repositories.BookingEvents
	profiles *ProfileService
	log      zerolog.Logger
	now      func() time.Time
}

func NewBookingService(bookings repositories.Bookings, listings repositories.Listings, events repositories.BookingEvents, profiles *ProfileService, log zerolog.Logger) *BookingService {
	return &BookingService{
		bookings: bookings,
		listings: listings,
		events:   events,
		profiles: profiles,
		log:      log.With().Str("component", "bookings").Logger(),
		now:      time.Now,
	}
}

// BookingDays counts started days; a 25 hour rental is two days.
func BookingDays(start, end time.Time) int {
	return int(math.Ceil(end.Sub(start).Hours() / 24))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateBooking requests a car for a date range.
func (s *BookingService) CreateBooking(ctx context.Context, caller string, in BookingInput) (*models.Booking, error) {
	if err := s.profiles.RequireOnboarded(ctx, caller); err != nil {
		return nil, err
	}
	if in.CarID == "" {
		return nil, fmt.Errorf("%w: car_id is required", ErrInvalidInput)
	}
	start, end := in.StartDate.UTC(), in.EndDate.UTC()
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start date must be before end date", ErrInvalidInput)
	}
	now := s.now().UTC()
	if start.Before(startOfDay(now)) {
		return nil, fmt.Errorf("%w: start date is in the past", ErrInvalidInput)
	}

	car, err := s.listings.Get(ctx, in.CarID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	if car.OwnerID == caller {
		return nil, fmt.Errorf("%w: you cannot book your own car", ErrInvalidInput)
	}
	if car.Status != models.CarActive {
		return nil, fmt.Errorf("%w: the car is not available", ErrInvalidInput)
	}

	if err := s.checkAvailable(ctx, car.ID, "", start, end); err != nil {
		return nil, err
	}

	days := BookingDays(start, end)
	b := &models.Booking{
		ID:         uuid.NewString(),
		CarID:      car.ID,
		OwnerID:    car.OwnerID,
		RenterID:   caller,
		StartDate:  start,
		EndDate:    end,
		Days:       days,
		DailyRate:  car.DailyRate,
		TotalPrice: float64(days) * car.DailyRate,
		Status:     models.BookingPending,
		Note:       strings.TrimSpace(in.Note),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.bookings.Insert(ctx, b); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	s.log.Info().Str("booking_id", b.ID).Str("car_id", car.ID).Str("renter_id", caller).Msg("booking requested")
	return b, nil
}

// checkAvailable fails when an approved booking other than skipID overlaps.
func (s *BookingService) checkAvailable(ctx context.Context, carID, skipID string, start, end time.Time) error {
	existing, err := s.bookings.ListByCar(ctx, carID)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	for _, b := range existing {
		if b.ID != skipID && b.Status == models.BookingApproved && b.Overlaps(start, end) {
			return ErrBookingConflict
		}
	}
	return nil
}

// UpdateBookingStatus moves a booking along its lifecycle. Only the owner
// approves, rejects or completes; either side may cancel.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, id string, to models.BookingStatus, caller string) (*models.Booking, error) {
	if caller == "" {
		return nil, ErrUnauthenticated
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}

	b, err := s.GetBooking(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	// Permission depends on the target status alone; legality of the move
	// from the current status is checked after.
	var actor transitionActor
	if caller == b.OwnerID {
		actor |= actorOwner
	}
	if caller == b.RenterID {
		actor |= actorRenter
	}
	if may := actorsFor(to); may != 0 && may&actor == 0 {
		return nil, ErrForbidden
	}
	actors, ok := allowed[transition{b.Status, to}]
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, b.Status, to)
	}
	if actors&actor == 0 {
		return nil, ErrForbidden
	}

	if to == models.BookingApproved {
		if err := s.checkAvailable(ctx, b.CarID, b.ID, b.StartDate, b.EndDate); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	err = s.bookings.UpdateStatus(ctx, b.ID, b.Status, to, now)
	if errors.Is(err, repositories.ErrNotFound) {
		// Someone else moved it first.
		return nil, fmt.Errorf("%w: booking status changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}

	from := b.Status
	b.Status = to
	b.UpdatedAt = now

	event := models.BookingEvent{BookingID: b.ID, From: from, To: to, ActorID: caller, CreatedAt: now}
	if err := s.events.Record(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("booking_id", b.ID).Msg("record booking event failed")
	}

	s.log.Info().Str("booking_id", b.ID).Str("from", string(from)).Str("to", string(to)).Msg("booking status changed")
	return b, nil
}

// GetBooking returns a booking the caller takes part in.
func (s *BookingService) GetBooking(ctx context.Context, id, caller string) (*models.Booking, error) {
	if caller == "" {
		return nil, ErrUnauthenticated
	}
	b, err := s.bookings.Get(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if !b.IsParticipant(caller) {
		return nil, ErrForbidden
	}
	return b, nil
}

// ListBookings returns the caller's bookings as renter or owner, newest first.
func (s *BookingService) ListBookings(ctx context.Context, caller string, role BookingRole) ([]models.Booking, error) {
	if caller == "" {
		return nil, ErrUnauthenticated
	}
	var (
		out []models.Booking
		err error
	)
	switch role {
	case RoleRenter, "":
		out, err = s.bookings.ListByRenter(ctx, caller)
	case RoleOwner:
		out, err = s.bookings.ListByOwner(ctx, caller)
	default:
		return nil, fmt.Errorf("%w: role must be renter or owner", ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return out, nil
}

// BookingHistory returns the status changes of a booking, oldest first.
func (s *BookingService) BookingHistory(ctx context.Context, id, caller string) ([]models.BookingEvent, error) {
	if _, err := s.GetBooking(ctx, id, caller); err != nil {
		return nil, err
	}
	events, err := s.events.ListByBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list booking events: %w", err)
	}
	return events, nil
}
