package models

import "time"

// TimeSlot is a computed bookable window. It is never persisted.
type TimeSlot struct {
	Start time.Time `json:"start"` // UTC
	End   time.Time `json:"end"`   // UTC
	Label string    `json:"label"` // e.g. "9:00 AM - 10:00 AM" in business time
}

// AvailabilityQuery selects the slots for one service on one business day.
type AvailabilityQuery struct {
	Date      string   `form:"date" json:"date"` // YYYY-MM-DD in business time
	ServiceID string   `form:"serviceId" json:"serviceId"`
	AddOnIDs  []string `form:"addOns" json:"addOns"`
}

// AvailabilityResponse wraps the slots for the presentation layer.
type AvailabilityResponse struct {
	Date            string     `json:"date"`
	ServiceID       string     `json:"serviceId"`
	AddOnIDs        []string   `json:"addOns"`
	DurationMinutes int        `json:"durationMinutes"`
	Slots           []TimeSlot `json:"slots"`
}
