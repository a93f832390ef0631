package models

import (
	"sort"
	"time"
)

// CarStatus is the availability state of a listing.
type CarStatus string

const (
	CarActive      CarStatus = "active"
	CarRented      CarStatus = "rented"
	CarMaintenance CarStatus = "maintenance"
	CarInactive    CarStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s CarStatus) Valid() bool {
	switch s {
	case CarActive, CarRented, CarMaintenance, CarInactive:
		return true
	}
	return false
}

// CarListing is owned by exactly one user.
type CarListing struct {
	ID           string    `bson:"_id" json:"id"`
	OwnerID      string    `bson:"owner_id" json:"owner_id"`
	Make         string    `bson:"make" json:"make"`
	Model        string    `bson:"model" json:"model"`
	Year         int       `bson:"year" json:"year"`
	VIN          string    `bson:"vin,omitempty" json:"vin,omitempty"`
	Description  string    `bson:"description,omitempty" json:"description,omitempty"`
	DailyRate    float64   `bson:"daily_rate" json:"daily_rate"`
	Location     string    `bson:"location,omitempty" json:"location,omitempty"`
	Seats        int       `bson:"seats,omitempty" json:"seats,omitempty"`
	Transmission string    `bson:"transmission,omitempty" json:"transmission,omitempty"`
	FuelType     string    `bson:"fuel_type,omitempty" json:"fuel_type,omitempty"`
	Features     []string  `bson:"features,omitempty" json:"features,omitempty"`
	Photos       []string  `bson:"photos,omitempty" json:"photos,omitempty"`
	Status       CarStatus `bson:"status" json:"status"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// CarMake is a reference catalogue entry.
type CarMake struct {
	ID     string   `bson:"_id" json:"id"`
	Name   string   `bson:"name" json:"name"`
	Models []string `bson:"models,omitempty" json:"models,omitempty"`
}

// SortListingsNewestFirst orders by creation time descending; ties keep id order.
func SortListingsNewestFirst(l []CarListing) {
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].CreatedAt.Equal(l[j].CreatedAt) {
			return l[i].ID < l[j].ID
		}
		return l[i].CreatedAt.After(l[j].CreatedAt)
	})
}
