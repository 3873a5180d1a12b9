package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Event is the calendar entry mirrored for one booking.
type Event struct {
	BookingID   string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Service is the external calendar. CreateEvent must be safe to repeat for the
// same booking; CancelEvent must be safe on an already removed event.
type Service interface {
	CreateEvent(ctx context.Context, ev Event) (string, error)
	CancelEvent(ctx context.Context, externalID string) error
}

// EventID derives the calendar event id from the booking id. Google accepts
// lowercase base32hex, which covers the hex digits of a UUID.
func EventID(bookingID string) string {
	return "bk" + strings.ToLower(strings.ReplaceAll(bookingID, "-", ""))
}

// GoogleCalendar writes events through the Calendar v3 API with a service account.
type GoogleCalendar struct {
	events     *gcal.EventsService
	calendarID string
	logger     *zap.Logger
}

func NewGoogleCalendar(ctx context.Context, credentialsFile, calendarID string, logger *zap.Logger) (*GoogleCalendar, error) {
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("google calendar: %w", err)
	}
	return &GoogleCalendar{events: svc.Events, calendarID: calendarID, logger: logger}, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, ev Event) (string, error) {
	id := EventID(ev.BookingID)
	body := &gcal.Event{
		Id:          id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	_, err := g.events.Insert(g.calendarID, body).Context(ctx).Do()
	if hasStatus(err, http.StatusConflict) {
		// Same booking seen before: bring the existing (possibly cancelled) event up to date.
		body.Status = "confirmed"
		if _, err := g.events.Update(g.calendarID, id, body).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("google calendar update: %w", err)
		}
		g.logger.Info("Calendar event updated", zap.String("eventID", id))
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("google calendar insert: %w", err)
	}
	return id, nil
}

func (g *GoogleCalendar) CancelEvent(ctx context.Context, externalID string) error {
	err := g.events.Delete(g.calendarID, externalID).Context(ctx).Do()
	if hasStatus(err, http.StatusNotFound, http.StatusGone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("google calendar delete: %w", err)
	}
	return nil
}

func hasStatus(err error, codes ...int) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, c := range codes {
		if gerr.Code == c {
			return true
		}
	}
	return false
}

// LogCalendar only logs. It is used when no Google credentials are configured.
type LogCalendar struct {
	logger *zap.Logger
}

func NewLogCalendar(logger *zap.Logger) *LogCalendar {
	return &LogCalendar{logger: logger}
}

func (l *LogCalendar) CreateEvent(ctx context.Context, ev Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := EventID(ev.BookingID)
	l.logger.Info("Calendar event (log only)",
		zap.String("eventID", id),
		zap.String("summary", ev.Summary),
		zap.Time("start", ev.Start),
		zap.Time("end", ev.End))
	return id, nil
}

func (l *LogCalendar) CancelEvent(ctx context.Context, externalID string) error {
	l.logger.Info("Calendar event cancelled (log only)", zap.String("eventID", externalID))
	return ctx.Err()
}
