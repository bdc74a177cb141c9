package vehicles

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Vehicle is a car listed in the showroom catalog.
type Vehicle struct {
	ID           string     `json:"id"`
	Make         string     `json:"make"`
	Model        string     `json:"model"`
	Year         int        `json:"year"`
	Price        int64      `json:"price"` // whole euros
	Mileage      int        `json:"mileage"`
	FuelType     string     `json:"fuelType,omitempty"`
	Transmission string     `json:"transmission,omitempty"`
	Color        string     `json:"color,omitempty"`
	Description  string     `json:"description,omitempty"`
	Images       []string   `json:"images"`
	IsAvailable  bool       `json:"isAvailable"`
	SoldAt       *time.Time `json:"soldAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Title is "Year Make Model".
func (v *Vehicle) Title() string {
	return strings.TrimSpace(fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model))
}

// setAvailable stamps SoldAt when a vehicle leaves the catalog and clears it
// when it comes back.
func (v *Vehicle) setAvailable(available bool, now time.Time) {
	v.IsAvailable = available
	if available {
		v.SoldAt = nil
		return
	}
	if v.SoldAt == nil {
		stamp := now
		v.SoldAt = &stamp
	}
}

func (v *Vehicle) clone() *Vehicle {
	if v == nil {
		return nil
	}
	cp := *v
	cp.Images = append([]string(nil), v.Images...)
	if v.SoldAt != nil {
		sold := *v.SoldAt
		cp.SoldAt = &sold
	}
	return &cp
}

// Input is the admin create/update payload.
type Input struct {
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	Price        int64    `json:"price"`
	Mileage      int      `json:"mileage"`
	FuelType     string   `json:"fuelType"`
	Transmission string   `json:"transmission"`
	Color        string   `json:"color"`
	Description  string   `json:"description"`
	Images       []string `json:"images"`
	IsAvailable  *bool    `json:"isAvailable,omitempty"`
}

// ValidationError reports a missing or malformed vehicle field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "vehicles: validation failed: " + e.Message
	}
	return fmt.Sprintf("vehicles: validation failed: %s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports an unknown vehicle id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("vehicle %q not found", e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
