package booking

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"washly/models"
)

const labelLayout = "3:04 PM"

// businessDay is the open/close window of one local calendar date.
type businessDay struct {
	open  time.Time
	close time.Time
}

func (s *DefaultBookingService) businessDayOf(y int, m time.Month, d int) (businessDay, bool) {
	loc := s.settings.Location
	open := time.Date(y, m, d, s.settings.OpenMinute/60, s.settings.OpenMinute%60, 0, 0, loc)
	closing := time.Date(y, m, d, s.settings.CloseMinute/60, s.settings.CloseMinute%60, 0, 0, loc)
	if s.settings.ClosedWeekdays[open.Weekday()] {
		return businessDay{}, false
	}
	return businessDay{open: open.UTC(), close: closing.UTC()}, true
}

// candidates yields every start on the granularity grid whose [start, start+duration)
// fits inside the business day. The sequence can be ranged over repeatedly.
func candidates(day businessDay, granularity, duration time.Duration, loc *time.Location) iter.Seq[models.TimeSlot] {
	return func(yield func(models.TimeSlot) bool) {
		for start := day.open; !start.Add(duration).After(day.close); start = start.Add(granularity) {
			end := start.Add(duration)
			slot := models.TimeSlot{
				Start: start,
				End:   end,
				Label: start.In(loc).Format(labelLayout) + " - " + end.In(loc).Format(labelLayout),
			}
			if !yield(slot) {
				return
			}
		}
	}
}

// freeSlots drops candidates that overlap a live booking or start before earliest.
// Touching an existing booking at either boundary is allowed.
func freeSlots(candidates iter.Seq[models.TimeSlot], booked []models.Booking, earliest time.Time) iter.Seq[models.TimeSlot] {
	return func(yield func(models.TimeSlot) bool) {
		for slot := range candidates {
			if slot.Start.Before(earliest) {
				continue
			}
			taken := slices.ContainsFunc(booked, func(b models.Booking) bool {
				return b.Status.Live() && b.Overlaps(slot.Start, slot.End)
			})
			if taken {
				continue
			}
			if !yield(slot) {
				return
			}
		}
	}
}

// parseDate reads YYYY-MM-DD as a business-local date and enforces the horizon.
func (s *DefaultBookingService) parseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, raw, s.settings.Location)
	if err != nil {
		return time.Time{}, invalid("date", "must be YYYY-MM-DD, got %q", raw)
	}
	if s.beyondHorizon(d) {
		return time.Time{}, invalid("date", "bookings open at most %d days ahead", s.settings.HorizonDays)
	}
	return d, nil
}

// beyondHorizon reports whether the local date of t is past the booking horizon.
func (s *DefaultBookingService) beyondHorizon(t time.Time) bool {
	if s.settings.HorizonDays <= 0 {
		return false
	}
	loc := s.settings.Location
	today := s.clock().In(loc)
	limit := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, s.settings.HorizonDays+1)
	return !t.In(loc).Before(limit)
}

func (s *DefaultBookingService) GetAvailability(ctx context.Context, q models.AvailabilityQuery) (*models.AvailabilityResponse, error) {
	if q.ServiceID == "" {
		return nil, invalid("serviceId", "is required")
	}
	date, err := s.parseDate(q.Date)
	if err != nil {
		return nil, err
	}
	sel, err := s.resolve(q.ServiceID, q.AddOnIDs)
	if err != nil {
		return nil, err
	}

	resp := &models.AvailabilityResponse{
		Date:            q.Date,
		ServiceID:       sel.Service.ID,
		AddOnIDs:        sel.AddOnIDs(),
		DurationMinutes: sel.DurationMinutes,
		Slots:           []models.TimeSlot{},
	}
	day, open := s.businessDayOf(date.Year(), date.Month(), date.Day())
	if !open {
		return resp, nil
	}

	booked, err := s.repo.ListBookings(ctx, day.open, day.close)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings for %s: %w", q.Date, err)
	}

	duration := time.Duration(sel.DurationMinutes) * time.Minute
	earliest := s.clock().Add(s.settings.LeadTime)
	resp.Slots = slices.Collect(freeSlots(candidates(day, s.settings.Granularity, duration, s.settings.Location), booked, earliest))
	if resp.Slots == nil {
		resp.Slots = []models.TimeSlot{}
	}
	return resp, nil
}

// checkOffered verifies that start is a grid candidate of its business day and
// respects the lead time. Overlap is left to the conflict guard.
func (s *DefaultBookingService) checkOffered(start time.Time, duration time.Duration) error {
	local := start.In(s.settings.Location)
	if s.beyondHorizon(start) {
		return invalid("start", "bookings open at most %d days ahead", s.settings.HorizonDays)
	}
	if start.Before(s.clock().Add(s.settings.LeadTime)) {
		return invalid("start", "must be at least %s from now", s.settings.LeadTime)
	}
	day, open := s.businessDayOf(local.Year(), local.Month(), local.Day())
	if !open {
		return invalid("start", "business is closed on %s", local.Weekday())
	}
	for slot := range candidates(day, s.settings.Granularity, duration, s.settings.Location) {
		if slot.Start.Equal(start) {
			return nil
		}
	}
	return invalid("start", "%s is not an offered slot start", local.Format(time.RFC3339))
}
