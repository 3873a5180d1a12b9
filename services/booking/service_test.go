package booking

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"washly/models"
	"washly/services/calendar"
	"washly/services/tasks"

	"go.uber.org/zap"
)

func TestCreateBookingReservesAndQueuesPayment(t *testing.T) {
	h := newHarness(t, at(8, 0))
	conf, err := h.svc.CreateBooking(context.Background(), request(at(10, 0), "wax"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b := conf.Booking
	if b.Status != models.StatusPendingPayment || !b.End.Equal(at(11, 30)) {
		t.Fatalf("unexpected booking %+v", b)
	}
	if conf.Quote.DepositCents != 3599 || b.Payment.DepositCents != 3599 || b.Payment.RemainingCents != 8399 {
		t.Fatalf("unexpected pricing %+v / %+v", conf.Quote, b.Payment)
	}
	if got := h.queue.types(); !slices.Equal(got, []string{tasks.TypeCreatePaymentIntent}) {
		t.Fatalf("expected payment task, got %v", got)
	}

	h.mustDrain(t)
	stored := h.get(t, b.ID)
	if stored.Payment.IntentID != "pi_"+b.ID || stored.Payment.ClientSecret == "" || stored.Payment.Attempts != 1 {
		t.Fatalf("intent not recorded: %+v", stored.Payment)
	}
	if req := h.pay.calls[0]; req.AmountCents != 3599 || req.IdempotencyKey != b.ID || req.Metadata["bookingId"] != b.ID {
		t.Fatalf("unexpected intent request %+v", req)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()

	badEmail := request(at(10, 0))
	badEmail.Customer.Email = "not-an-email"
	badPhone := request(at(10, 0))
	badPhone.Customer.Phone = "555-1234"
	noAddress := request(at(10, 0))
	noAddress.Address = "   "
	unknownService := request(at(10, 0))
	unknownService.ServiceID = "spaceship-wash"
	offGrid := request(at(10, 15))
	pastLead := request(at(8, 30))
	afterClose := request(at(16, 30))
	badStart := request(at(10, 0))
	badStart.Start = "tomorrow at ten"
	badOption := request(at(10, 0))
	badOption.PaymentOption = "layaway"

	cases := map[string]models.CreateBookingRequest{
		"email":        badEmail,
		"phone":        badPhone,
		"address":      noAddress,
		"service":      unknownService,
		"add-on":       request(at(10, 0), "gold-plating"),
		"off grid":     offGrid,
		"lead time":    pastLead,
		"after close":  afterClose,
		"start format": badStart,
		"option":       badOption,
	}
	for name, req := range cases {
		if _, err := h.svc.CreateBooking(ctx, req); !asValidation(err) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
	}
	if got, _ := h.repo.ListBookings(ctx, baseDay, baseDay.AddDate(0, 0, 1)); len(got) != 0 {
		t.Fatalf("rejected requests must not write, found %d bookings", len(got))
	}
}

func TestConcurrentCreatesOneWinner(t *testing.T) {
	h := newHarness(t, at(8, 0))
	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.CreateBooking(context.Background(), request(at(10, 0)))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case asConflict(err):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
}

func TestPaymentIntentFailureKeepsSlotReserved(t *testing.T) {
	h := newHarness(t, at(8, 0))
	h.pay.fail = errors.New("stripe unavailable")
	b := h.create(t, at(10, 0))

	errs := h.drain()
	var cerr *CollaboratorError
	if len(errs) != 1 || !errors.As(errs[0], &cerr) || cerr.Collaborator != "payment" {
		t.Fatalf("expected payment CollaboratorError, got %v", errs)
	}
	stored := h.get(t, b.ID)
	if stored.Status != models.StatusPendingPayment || stored.Payment.Paid {
		t.Fatalf("booking should stay pending and unpaid: %+v", stored)
	}
	if stored.Payment.LastError == "" || stored.Payment.Attempts != 1 {
		t.Fatalf("failure not recorded: %+v", stored.Payment)
	}
	if hasStart(availability(t, h, "2030-06-03"), at(10, 0)) {
		t.Fatalf("slot must stay reserved")
	}

	h.pay.fail = nil
	work, err := h.svc.RetrySideEffects(context.Background(), b.ID)
	if err != nil || !slices.Equal(work, []string{tasks.TypeCreatePaymentIntent}) {
		t.Fatalf("retry = %v, %v", work, err)
	}
	h.mustDrain(t)
	if got := h.get(t, b.ID); got.Payment.IntentID == "" || got.Payment.LastError != "" || got.Payment.Attempts != 2 {
		t.Fatalf("retry did not attach intent: %+v", got.Payment)
	}
}

func TestEnqueueFailureIsRecorded(t *testing.T) {
	h := newHarness(t, at(8, 0))
	h.queue.fail = errors.New("redis down")
	b := h.create(t, at(10, 0))
	if got := h.get(t, b.ID); got.Payment.LastError == "" || got.Status != models.StatusPendingPayment {
		t.Fatalf("expected recorded enqueue failure, got %+v", got.Payment)
	}
}

func TestPaymentSuccessConfirmsAndSyncs(t *testing.T) {
	h := newHarness(t, at(8, 0))
	b := h.confirmed(t, at(10, 0))

	if b.Status != models.StatusConfirmed || !b.Payment.Paid || b.Payment.PaidAt == nil {
		t.Fatalf("expected paid confirmed booking, got %+v", b)
	}
	if !b.Calendar.Synced || b.Calendar.ExternalEventID != calendar.EventID(b.ID) {
		t.Fatalf("calendar not synced: %+v", b.Calendar)
	}
	if !b.Notifications.ConfirmationSent || b.Notifications.LastDeliveryStatus != "queued" {
		t.Fatalf("confirmation not sent: %+v", b.Notifications)
	}
	if kinds := h.sms.kinds(); !slices.Equal(kinds, []models.NotificationKind{models.NotificationConfirmation}) {
		t.Fatalf("unexpected sms %v", kinds)
	}
	if !strings.Contains(h.sms.sent[0].Body, "Balance due on site") {
		t.Fatalf("confirmation should mention the balance: %q", h.sms.sent[0].Body)
	}

	// A redelivered webhook is a no-op.
	err := h.svc.HandlePaymentEvent(context.Background(), models.PaymentEvent{
		EventID:  "evt_ok_" + b.ID,
		Type:     models.PaymentEventSucceeded,
		IntentID: b.Payment.IntentID,
	})
	if err != nil {
		t.Fatalf("duplicate event: %v", err)
	}
	if len(h.queue.types()) != 0 || len(h.get(t, b.ID).History) != len(b.History) {
		t.Fatalf("duplicate event changed the booking")
	}
}

func TestCalendarFailureKeepsBookingConfirmed(t *testing.T) {
	h := newHarness(t, at(8, 0))
	h.cal.fail = errors.New("calendar quota exceeded")
	b := h.create(t, at(10, 0))
	h.mustDrain(t)
	b = h.get(t, b.ID)
	if err := h.svc.HandlePaymentEvent(context.Background(), models.PaymentEvent{
		EventID: "evt_1", Type: models.PaymentEventSucceeded, IntentID: b.Payment.IntentID,
	}); err != nil {
		t.Fatalf("payment event: %v", err)
	}
	if errs := h.drain(); len(errs) != 1 {
		t.Fatalf("expected one calendar failure, got %v", errs)
	}
	b = h.get(t, b.ID)
	if b.Status != models.StatusConfirmed || b.Calendar.Synced || b.Calendar.LastError == "" {
		t.Fatalf("expected confirmed and unsynced, got %s %+v", b.Status, b.Calendar)
	}
	if !b.Notifications.ConfirmationSent {
		t.Fatalf("confirmation should not depend on the calendar")
	}

	h.cal.fail = nil
	work, err := h.svc.RetrySideEffects(context.Background(), b.ID)
	if err != nil || !slices.Equal(work, []string{tasks.TypeCreateCalendarEvent}) {
		t.Fatalf("retry = %v, %v", work, err)
	}
	h.mustDrain(t)
	if !h.get(t, b.ID).Calendar.Synced {
		t.Fatalf("retry should sync the calendar")
	}
}

func TestPaymentFailureThenLateSuccess(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	b := h.create(t, at(10, 0))
	h.mustDrain(t)
	intent := h.get(t, b.ID).Payment.IntentID

	if err := h.svc.HandlePaymentEvent(ctx, models.PaymentEvent{
		EventID: "evt_fail", Type: models.PaymentEventFailed, IntentID: intent, Reason: "card_declined",
	}); err != nil {
		t.Fatalf("failure event: %v", err)
	}
	got := h.get(t, b.ID)
	if got.Status != models.StatusPaymentFailed || got.Payment.LastError != "card_declined" {
		t.Fatalf("expected payment_failed, got %s %+v", got.Status, got.Payment)
	}
	if hasStart(availability(t, h, "2030-06-03"), at(10, 0)) {
		t.Fatalf("a failed payment keeps the slot reserved")
	}

	if err := h.svc.HandlePaymentEvent(ctx, models.PaymentEvent{
		EventID: "evt_ok", Type: models.PaymentEventSucceeded, IntentID: intent,
	}); err != nil {
		t.Fatalf("success event: %v", err)
	}
	if got := h.get(t, b.ID); got.Status != models.StatusConfirmed || !got.Payment.Paid {
		t.Fatalf("late success should confirm, got %s", got.Status)
	}
}

func TestPaymentForCancelledBookingOnlyMarksPaid(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	b := h.create(t, at(10, 0))
	h.mustDrain(t)
	intent := h.get(t, b.ID).Payment.IntentID
	if _, err := h.svc.CancelBooking(ctx, b.ID, "changed my mind"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	h.mustDrain(t)

	if err := h.svc.HandlePaymentEvent(ctx, models.PaymentEvent{
		EventID: "evt_late", Type: models.PaymentEventSucceeded, IntentID: intent,
	}); err != nil {
		t.Fatalf("payment event: %v", err)
	}
	got := h.get(t, b.ID)
	if got.Status != models.StatusCancelled || !got.Payment.Paid {
		t.Fatalf("expected cancelled and paid, got %s paid=%v", got.Status, got.Payment.Paid)
	}
	if len(h.queue.types()) != 0 {
		t.Fatalf("no follow-up work for a cancelled booking, got %v", h.queue.types())
	}
}

func TestUnknownIntentIsAcknowledged(t *testing.T) {
	h := newHarness(t, at(8, 0))
	err := h.svc.HandlePaymentEvent(context.Background(), models.PaymentEvent{
		EventID: "evt_x", Type: models.PaymentEventSucceeded, IntentID: "pi_unknown",
	})
	if err != nil {
		t.Fatalf("unknown intent should be acknowledged, got %v", err)
	}
}

func TestCancelBookingRunsFollowUps(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	b := h.confirmed(t, at(10, 0))

	cancelled, err := h.svc.CancelBooking(ctx, b.ID, "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.StatusCancelled || cancelled.CancelledAt == nil || cancelled.CancelReason == "" {
		t.Fatalf("unexpected cancelled booking %+v", cancelled)
	}
	want := []string{tasks.TypeCancelCalendarEvent, tasks.TypeSendCancellation}
	if got := h.queue.types(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	h.mustDrain(t)

	got := h.get(t, b.ID)
	if got.Calendar.Synced || !got.Notifications.CancellationSent {
		t.Fatalf("follow-ups not applied: %+v %+v", got.Calendar, got.Notifications)
	}
	if len(h.cal.cancelled) != 1 || h.cal.cancelled[0] != calendar.EventID(b.ID) {
		t.Fatalf("calendar event not cancelled: %v", h.cal.cancelled)
	}
	if _, err := h.svc.CancelBooking(ctx, b.ID, ""); !asTransition(err) {
		t.Fatalf("second cancel: expected TransitionError, got %v", err)
	}
	if _, err := h.svc.CancelBooking(ctx, "missing", ""); !asNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRescheduleMovesRangeAndResyncs(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	b := h.confirmed(t, at(10, 0))
	other := h.create(t, at(13, 0))

	moved, err := h.svc.RescheduleBooking(ctx, b.ID, at(11, 0).Format(time.RFC3339))
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.Start.Equal(at(11, 0)) || !moved.End.Equal(at(12, 0)) || moved.Status != models.StatusConfirmed {
		t.Fatalf("unexpected moved booking %+v", moved)
	}
	if moved.Calendar.Synced {
		t.Fatalf("rescheduled booking must be resynced")
	}
	h.mustDrain(t)
	if got := h.get(t, b.ID); !got.Calendar.Synced || len(h.cal.created) != 2 {
		t.Fatalf("calendar not resynced: %+v, %d events", got.Calendar, len(h.cal.created))
	}
	if !hasStart(availability(t, h, "2030-06-03"), at(10, 0)) {
		t.Fatalf("old slot should be free")
	}

	if _, err := h.svc.RescheduleBooking(ctx, b.ID, at(12, 30).Format(time.RFC3339)); !asConflict(err) {
		t.Fatalf("expected ConflictError against %s, got %v", other.ID, err)
	}
	if _, err := h.svc.RescheduleBooking(ctx, b.ID, at(12, 15).Format(time.RFC3339)); !asValidation(err) {
		t.Fatalf("expected ValidationError for off-grid start, got %v", err)
	}
	if _, err := h.svc.MarkCompleted(ctx, b.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err = h.svc.RescheduleBooking(ctx, b.ID, at(15, 0).Format(time.RFC3339))
	if !asTransition(err) {
		t.Fatalf("expected TransitionError for completed booking, got %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "cannot be rescheduled while completed") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestReminderSweep(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	soon := h.confirmed(t, at(15, 0))
	later := h.confirmed(t, baseDay.AddDate(0, 0, 2).Add(10 * time.Hour))

	n, err := h.svc.SendDueReminders(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SendDueReminders = %d, %v", n, err)
	}
	h.mustDrain(t)
	got := h.get(t, soon.ID)
	if got.Status != models.StatusReminderSent || !got.Notifications.ReminderSent {
		t.Fatalf("expected reminder_sent, got %s", got.Status)
	}
	if h.get(t, later.ID).Status != models.StatusConfirmed {
		t.Fatalf("booking outside the window must not be reminded")
	}
	if n, _ := h.svc.SendDueReminders(ctx); n != 0 {
		t.Fatalf("reminder sent twice")
	}
}

func TestCompletePastBookings(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	done := h.confirmed(t, at(10, 0))
	pending := h.create(t, at(12, 0))
	h.mustDrain(t)

	h.setNow(at(13, 30))
	n, err := h.svc.CompletePastBookings(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CompletePastBookings = %d, %v", n, err)
	}
	if h.get(t, done.ID).Status != models.StatusCompleted {
		t.Fatalf("past confirmed booking should be completed")
	}
	if h.get(t, pending.ID).Status != models.StatusPendingPayment {
		t.Fatalf("unpaid booking must not be completed")
	}
}

func TestOperatorNoShow(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	b := h.confirmed(t, at(10, 0))
	got, err := h.svc.MarkNoShow(ctx, b.ID)
	if err != nil || got.Status != models.StatusNoShow {
		t.Fatalf("MarkNoShow = %v, %v", got, err)
	}
	if _, err := h.svc.MarkCompleted(ctx, b.ID); !asTransition(err) {
		t.Fatalf("no_show is terminal, got %v", err)
	}
	if hasStart(availability(t, h, "2030-06-03"), at(10, 0)) {
		t.Fatalf("a no-show still holds its range")
	}
}

func TestInboundSMSCancel(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	b := h.create(t, at(14, 0))

	reply, err := h.svc.HandleInboundSMS(ctx, models.InboundMessage{MessageID: "SM1", From: "+15550001111", Body: "hello"})
	if err != nil || reply != replyHelp {
		t.Fatalf("unexpected reply %q, %v", reply, err)
	}
	reply, err = h.svc.HandleInboundSMS(ctx, models.InboundMessage{MessageID: "SM2", From: "+15550001111", Body: " cancel "})
	if err != nil || !strings.HasPrefix(reply, "Your booking on") {
		t.Fatalf("unexpected reply %q, %v", reply, err)
	}
	if h.get(t, b.ID).Status != models.StatusCancelled {
		t.Fatalf("booking should be cancelled")
	}
	reply, _ = h.svc.HandleInboundSMS(ctx, models.InboundMessage{MessageID: "SM3", From: "+15550001111", Body: "CANCEL"})
	if reply != replyNotFound {
		t.Fatalf("expected not-found reply, got %q", reply)
	}
}

func TestDeliveryReportFailureClearsFlag(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	b := h.confirmed(t, at(10, 0))

	report := models.DeliveryReport{
		BookingID:  b.ID,
		Kind:       models.NotificationConfirmation,
		DeliveryID: "SM123",
		Status:     "undelivered",
		ErrorCode:  "30003",
	}
	if err := h.svc.HandleDeliveryReport(ctx, report); err != nil {
		t.Fatalf("report: %v", err)
	}
	got := h.get(t, b.ID)
	if got.Notifications.ConfirmationSent || got.Notifications.LastDeliveryStatus != "undelivered" {
		t.Fatalf("unexpected notifications %+v", got.Notifications)
	}
	if got.Notifications.LastError != "delivery undelivered (code 30003)" {
		t.Fatalf("unexpected error %q", got.Notifications.LastError)
	}
	work, err := h.svc.RetrySideEffects(ctx, b.ID)
	if err != nil || !slices.Equal(work, []string{tasks.TypeSendConfirmation}) {
		t.Fatalf("retry = %v, %v", work, err)
	}

	report.BookingID = ""
	if err := h.svc.HandleDeliveryReport(ctx, report); !asValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCalendarCallback(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	b := h.confirmed(t, at(10, 0))

	if err := h.svc.HandleCalendarCallback(ctx, models.CalendarCallback{BookingID: b.ID, Status: "cancelled"}); err != nil {
		t.Fatalf("callback: %v", err)
	}
	got := h.get(t, b.ID)
	if got.Calendar.Synced || got.Status != models.StatusConfirmed {
		t.Fatalf("external removal should only unsync: %s %+v", got.Status, got.Calendar)
	}
	if err := h.svc.HandleCalendarCallback(ctx, models.CalendarCallback{BookingID: b.ID, Status: "confirmed", ExternalEventID: "ext1"}); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if got := h.get(t, b.ID); !got.Calendar.Synced || got.Calendar.ExternalEventID != "ext1" {
		t.Fatalf("unexpected calendar %+v", got.Calendar)
	}
	if err := h.svc.HandleCalendarCallback(ctx, models.CalendarCallback{BookingID: b.ID, Status: "tentative"}); !asValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if err := h.svc.HandleCalendarCallback(ctx, models.CalendarCallback{BookingID: "missing", Status: "confirmed"}); !asNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestInlineDispatcherDrivesLifecycle(t *testing.T) {
	settings := defaultSettings(t)
	h := newHarnessWith(t, at(8, 0), settings)
	inline := tasks.NewInlineDispatcher(zap.NewNop())
	h.svc.tasks = inline
	inline.Bind(tasks.NewServeMux(h.svc))

	b := h.create(t, at(10, 0))
	inline.Wait()
	intent := h.get(t, b.ID).Payment.IntentID
	if intent == "" {
		t.Fatalf("inline task did not attach the intent")
	}
	if err := h.svc.HandlePaymentEvent(context.Background(), models.PaymentEvent{
		EventID: "evt_inline", Type: models.PaymentEventSucceeded, IntentID: intent,
	}); err != nil {
		t.Fatalf("payment event: %v", err)
	}
	inline.Wait()
	got := h.get(t, b.ID)
	if !got.Calendar.Synced || !got.Notifications.ConfirmationSent {
		t.Fatalf("follow-ups not run inline: %+v %+v", got.Calendar, got.Notifications)
	}
}

func TestQuoteAndCatalog(t *testing.T) {
	h := newHarness(t, at(8, 0))
	q, err := h.svc.Quote(models.QuoteRequest{ServiceID: "basic-wash", AddOnIDs: []string{"wax"}})
	if err != nil || q.DepositCents != 3599 {
		t.Fatalf("Quote = %+v, %v", q, err)
	}
	if _, err := h.svc.Quote(models.QuoteRequest{}); !asValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	cat := h.svc.ListCatalog()
	if len(cat.Services) != 3 || len(cat.AddOns) != 3 {
		t.Fatalf("unexpected catalog %+v", cat)
	}
	if _, err := h.svc.GetBooking(context.Background(), "missing"); !asNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUndeliveredReminderIsSentAgain(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()
	b := h.confirmed(t, at(15, 0))

	if n, err := h.svc.SendDueReminders(ctx); err != nil || n != 1 {
		t.Fatalf("SendDueReminders = %d, %v", n, err)
	}
	h.mustDrain(t)
	reminded := h.get(t, b.ID)
	if reminded.Status != models.StatusReminderSent {
		t.Fatalf("expected reminder_sent, got %s", reminded.Status)
	}

	err := h.svc.HandleDeliveryReport(ctx, models.DeliveryReport{
		BookingID:  b.ID,
		Kind:       models.NotificationReminder,
		DeliveryID: "SM-reminder",
		Status:     "undelivered",
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if got := h.get(t, b.ID); got.Notifications.ReminderSent || got.Status != models.StatusReminderSent {
		t.Fatalf("expected cleared flag on reminder_sent booking, got %s %+v", got.Status, got.Notifications)
	}

	work, err := h.svc.RetrySideEffects(ctx, b.ID)
	if err != nil || !slices.Equal(work, []string{tasks.TypeSendReminder}) {
		t.Fatalf("retry = %v, %v", work, err)
	}
	if n, err := h.svc.SendDueReminders(ctx); err != nil || n != 1 {
		t.Fatalf("sweep after failed delivery = %d, %v", n, err)
	}
	h.mustDrain(t)

	got := h.get(t, b.ID)
	if !got.Notifications.ReminderSent || got.Status != models.StatusReminderSent {
		t.Fatalf("reminder not resent: %s %+v", got.Status, got.Notifications)
	}
	if len(got.History) != len(reminded.History) {
		t.Fatalf("resend must not add a transition: %+v", got.History)
	}
	reminders := 0
	for _, k := range h.sms.kinds() {
		if k == models.NotificationReminder {
			reminders++
		}
	}
	if reminders != 2 {
		t.Fatalf("expected two reminder sends, got %d", reminders)
	}
	if n, _ := h.svc.SendDueReminders(ctx); n != 0 {
		t.Fatalf("delivered reminder picked up again")
	}
}

func TestEnqueueFailuresAreRecordedOnSubRecords(t *testing.T) {
	h := newHarness(t, at(8, 0))
	ctx := context.Background()

	paid := h.create(t, at(10, 0))
	h.mustDrain(t)
	paid = h.get(t, paid.ID)
	h.queue.fail = errors.New("redis down")
	err := h.svc.HandlePaymentEvent(ctx, models.PaymentEvent{
		EventID:  "evt_ok_" + paid.ID,
		Type:     models.PaymentEventSucceeded,
		IntentID: paid.Payment.IntentID,
	})
	if err != nil {
		t.Fatalf("payment event: %v", err)
	}
	got := h.get(t, paid.ID)
	if got.Status != models.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}
	if !strings.Contains(got.Calendar.LastError, "redis down") || !strings.Contains(got.Notifications.LastError, "redis down") {
		t.Fatalf("enqueue failures not recorded: %+v %+v", got.Calendar, got.Notifications)
	}

	h.queue.fail = nil
	work, err := h.svc.RetrySideEffects(ctx, paid.ID)
	if err != nil || !slices.Equal(work, []string{tasks.TypeCreateCalendarEvent, tasks.TypeSendConfirmation}) {
		t.Fatalf("retry = %v, %v", work, err)
	}
	h.mustDrain(t)

	h.queue.fail = errors.New("redis down")
	if _, err := h.svc.CancelBooking(ctx, paid.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got = h.get(t, paid.ID)
	if got.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if !strings.Contains(got.Calendar.LastError, tasks.TypeCancelCalendarEvent) ||
		!strings.Contains(got.Notifications.LastError, tasks.TypeSendCancellation) {
		t.Fatalf("cancel follow-up failures not recorded: %+v %+v", got.Calendar, got.Notifications)
	}
	h.queue.fail = nil
	work, err = h.svc.RetrySideEffects(ctx, paid.ID)
	if err != nil || !slices.Equal(work, []string{tasks.TypeCancelCalendarEvent, tasks.TypeSendCancellation}) {
		t.Fatalf("retry after cancel = %v, %v", work, err)
	}
}
