// Package repositories declares the storage contracts the services depend on.
// Implementations live in mongostore (production), memstore (in-process) and
// audit (Postgres booking history).
package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Conversations stores two-party threads.
type Conversations interface {
	ListByParticipant(ctx context.Context, uid string) ([]models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	// Insert fails with ErrDuplicate when the id is taken.
	Insert(ctx context.Context, c *models.Conversation) error
	UpdateLastMessage(ctx context.Context, id string, last models.LastMessage, updatedAt time.Time) error
}

// Messages stores conversation messages.
type Messages interface {
	Insert(ctx context.Context, m *models.Message) error
	// ConfirmSent stamps the store-assigned send time and returns it.
	ConfirmSent(ctx context.Context, id string) (time.Time, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	ListUnread(ctx context.Context, conversationID, senderID string) ([]models.Message, error)
	CountByConversation(ctx context.Context, conversationID string) (int, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
}

// Profiles stores user profiles and the username index.
type Profiles interface {
	Get(ctx context.Context, uid string) (*models.UserProfile, error)
	// ResolveUsername maps a lowercased username to its uid.
	ResolveUsername(ctx context.Context, usernameLower string) (string, error)
	// Save upserts a profile whose username did not change.
	Save(ctx context.Context, p *models.UserProfile) error
	// SaveWithUsername writes the profile, removes previousLower (when it still
	// maps to the profile) and inserts the new mapping in one transaction.
	// A taken username fails with ErrDuplicate and changes nothing.
	SaveWithUsername(ctx context.Context, p *models.UserProfile, previousLower string) error
}

// Listings stores car listings.
type Listings interface {
	Insert(ctx context.Context, l *models.CarListing) error
	Update(ctx context.Context, l *models.CarListing) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.CarListing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.CarListing, error)
	// ListActive returns active listings, newest first.
	ListActive(ctx context.Context) ([]models.CarListing, error)
}

// Bookings stores rental requests.
type Bookings interface {
	Insert(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id string) (*models.Booking, error)
	// UpdateStatus moves a booking from one status to another. It fails with
	// ErrNotFound when no booking with that id currently has status from.
	UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error
	ListByRenter(ctx context.Context, renterID string) ([]models.Booking, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Booking, error)
	ListByCar(ctx context.Context, carID string) ([]models.Booking, error)
}

// CarMakes stores the make/model catalogue.
type CarMakes interface {
	List(ctx context.Context) ([]models.CarMake, error)
	InsertMany(ctx context.Context, makes []models.CarMake) error
}

// BookingEvents stores the booking status history.
type BookingEvents interface {
	Record(ctx context.Context, e models.BookingEvent) error
	ListByBooking(ctx context.Context, bookingID string) ([]models.BookingEvent, error)
}
