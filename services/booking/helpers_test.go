package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"washly/config"
	bookingRepo "washly/database/repository/booking"
	"washly/models"
	"washly/services/calendar"
	"washly/services/catalog"
	"washly/services/notification"
	"washly/services/payment"
	"washly/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// baseDay is a Monday.
var baseDay = time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return baseDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type fakeGateway struct {
	mu    sync.Mutex
	fail  error
	calls []payment.IntentRequest
}

func (g *fakeGateway) CreateIntent(_ context.Context, req payment.IntentRequest) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.fail != nil {
		return nil, g.fail
	}
	return &models.PaymentIntent{IntentID: "pi_" + req.IdempotencyKey, ClientSecret: "secret_" + req.IdempotencyKey}, nil
}

type fakeCalendar struct {
	mu        sync.Mutex
	fail      error
	created   []calendar.Event
	cancelled []string
}

func (c *fakeCalendar) CreateEvent(_ context.Context, ev calendar.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return "", c.fail
	}
	c.created = append(c.created, ev)
	return calendar.EventID(ev.BookingID), nil
}

func (c *fakeCalendar) CancelEvent(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.cancelled = append(c.cancelled, id)
	return nil
}

type fakeSMS struct {
	mu   sync.Mutex
	fail error
	sent []notification.Message
}

func (s *fakeSMS) Send(_ context.Context, msg notification.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.sent = append(s.sent, msg)
	return "SM" + msg.BookingID + string(msg.Kind), nil
}

func (s *fakeSMS) kinds() []models.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.Kind)
	}
	return out
}

// queueDispatcher holds tasks until the test drains them.
type queueDispatcher struct {
	mu      sync.Mutex
	pending []*asynq.Task
	fail    error
}

func (q *queueDispatcher) Enqueue(_ context.Context, task *asynq.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return q.fail
	}
	q.pending = append(q.pending, task)
	return nil
}

func (q *queueDispatcher) types() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.pending))
	for _, t := range q.pending {
		out = append(out, t.Type())
	}
	return out
}

func (q *queueDispatcher) pop() *asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t
}

type harness struct {
	svc   *DefaultBookingService
	repo  *bookingRepo.MemoryBookingRepo
	queue *queueDispatcher
	mux   *asynq.ServeMux
	pay   *fakeGateway
	cal   *fakeCalendar
	sms   *fakeSMS

	mu  sync.Mutex
	now time.Time
}

func defaultSettings(t *testing.T) Settings {
	t.Helper()
	s, err := SettingsFromConfig(config.Defaults())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	return s
}

func newHarness(t *testing.T, now time.Time) *harness {
	return newHarnessWith(t, now, defaultSettings(t))
}

func newHarnessWith(t *testing.T, now time.Time, settings Settings) *harness {
	t.Helper()
	h := &harness{
		repo:  bookingRepo.NewMemoryBookingRepo(),
		queue: &queueDispatcher{},
		pay:   &fakeGateway{},
		cal:   &fakeCalendar{},
		sms:   &fakeSMS{},
		now:   now,
	}
	svc, err := NewBookingService(Deps{
		Repo:     h.repo,
		Catalog:  catalog.Default(),
		Tasks:    h.queue,
		Payments: h.pay,
		Calendar: h.cal,
		SMS:      h.sms,
		Logger:   zap.NewNop(),
		Now:      h.clock,
	}, settings)
	if err != nil {
		t.Fatalf("NewBookingService: %v", err)
	}
	h.svc = svc
	h.mux = tasks.NewServeMux(svc)
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) setNow(t time.Time) {
	h.mu.Lock()
	h.now = t
	h.mu.Unlock()
}

// drain runs queued tasks, including those they enqueue, and returns their errors.
func (h *harness) drain() []error {
	var errs []error
	for task := h.queue.pop(); task != nil; task = h.queue.pop() {
		if err := h.mux.ProcessTask(context.Background(), task); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (h *harness) mustDrain(t *testing.T) {
	t.Helper()
	if errs := h.drain(); len(errs) > 0 {
		t.Fatalf("task errors: %v", errs)
	}
}

func (h *harness) get(t *testing.T, id string) *models.Booking {
	t.Helper()
	b, err := h.svc.GetBooking(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return b
}

func request(start time.Time, addOns ...string) models.CreateBookingRequest {
	return models.CreateBookingRequest{
		ServiceID: "basic-wash",
		AddOnIDs:  addOns,
		Customer:  models.Customer{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+15550001111"},
		Address:   "1 Main St",
		Start:     start.Format(time.RFC3339),
	}
}

func (h *harness) create(t *testing.T, start time.Time) *models.Booking {
	t.Helper()
	conf, err := h.svc.CreateBooking(context.Background(), request(start))
	if err != nil {
		t.Fatalf("create at %s: %v", start, err)
	}
	return &conf.Booking
}

// confirmed books start, pays for it and runs every follow-up task.
func (h *harness) confirmed(t *testing.T, start time.Time) *models.Booking {
	t.Helper()
	b := h.create(t, start)
	h.mustDrain(t)
	b = h.get(t, b.ID)
	err := h.svc.HandlePaymentEvent(context.Background(), models.PaymentEvent{
		EventID:  "evt_ok_" + b.ID,
		Type:     models.PaymentEventSucceeded,
		IntentID: b.Payment.IntentID,
	})
	if err != nil {
		t.Fatalf("payment event: %v", err)
	}
	h.mustDrain(t)
	return h.get(t, b.ID)
}

func asValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func asConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func asTransition(err error) bool {
	var tr *TransitionError
	return errors.As(err, &tr)
}

func asNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
