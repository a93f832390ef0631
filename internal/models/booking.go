package models

import (
	"sort"
	"time"
)

// BookingStatus is the lifecycle state of a rental request.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingApproved  BookingStatus = "approved"
	BookingRejected  BookingStatus = "rejected"
	BookingCompleted BookingStatus = "completed"
	BookingCanceled  BookingStatus = "canceled"
)

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingApproved, BookingRejected, BookingCompleted, BookingCanceled:
		return true
	}
	return false
}

// Booking ties a renter, an owner, a car and a date range.
type Booking struct {
	ID         string        `bson:"_id" json:"id"`
	CarID      string        `bson:"car_id" json:"car_id"`
	OwnerID    string        `bson:"owner_id" json:"owner_id"`
	RenterID   string        `bson:"renter_id" json:"renter_id"`
	StartDate  time.Time     `bson:"start_date" json:"start_date"`
	EndDate    time.Time     `bson:"end_date" json:"end_date"`
	Days       int           `bson:"days" json:"days"`
	DailyRate  float64       `bson:"daily_rate" json:"daily_rate"`
	TotalPrice float64       `bson:"total_price" json:"total_price"`
	Status     BookingStatus `bson:"status" json:"status"`
	Note       string        `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt  time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the half-open ranges [StartDate, EndDate) intersect.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartDate.Before(end) && start.Before(b.EndDate)
}

// IsParticipant reports whether uid is the renter or the owner.
func (b *Booking) IsParticipant(uid string) bool {
	return uid != "" && (uid == b.RenterID || uid == b.OwnerID)
}

// BookingEvent is one row of the booking status audit trail.
type BookingEvent struct {
	ID        string        `json:"id"`
	BookingID string        `json:"booking_id"`
	From      BookingStatus `json:"from"`
	To        BookingStatus `json:"to"`
	ActorID   string        `json:"actor_id"`
	CreatedAt time.Time     `json:"created_at"`
}

// SortBookingsNewestFirst orders by creation time descending; ties keep id order.
func SortBookingsNewestFirst(b []Booking) {
	sort.SliceStable(b, func(i, j int) bool {
		if b[i].CreatedAt.Equal(b[j].CreatedAt) {
			return b[i].ID < b[j].ID
		}
		return b[i].CreatedAt.After(b[j].CreatedAt)
	})
}
