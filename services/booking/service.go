package booking

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"washly/config"
	bookingRepo "washly/database/repository/booking"
	"washly/models"
	"washly/services/calendar"
	"washly/services/catalog"
	"washly/services/events"
	"washly/services/notification"
	"washly/services/payment"
	"washly/services/tasks"
	"washly/utils"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Settings are the business rules of the engine, resolved from config.
type Settings struct {
	Location            *time.Location
	OpenMinute          int // minutes after local midnight
	CloseMinute         int
	ClosedWeekdays      map[time.Weekday]bool
	Granularity         time.Duration
	LeadTime            time.Duration
	HorizonDays         int
	ReminderWindow      time.Duration
	CollaboratorTimeout time.Duration
	TaskMaxRetry        int
	Pricing             PricingPolicy
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// SettingsFromConfig converts validated config into Settings.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	loc, _ := time.LoadLocation(cfg.BusinessTimezone)
	open, _ := config.ParseClock(cfg.BusinessOpen)
	closing, _ := config.ParseClock(cfg.BusinessClose)

	closed := make(map[time.Weekday]bool)
	for _, d := range cfg.ClosedWeekdays {
		key := strings.ToLower(strings.TrimSpace(d))
		if len(key) > 3 {
			key = key[:3]
		}
		wd, ok := weekdays[key]
		if !ok {
			return Settings{}, fmt.Errorf("CLOSED_WEEKDAYS: unknown weekday %q", d)
		}
		closed[wd] = true
	}

	return Settings{
		Location:            loc,
		OpenMinute:          open,
		CloseMinute:         closing,
		ClosedWeekdays:      closed,
		Granularity:         time.Duration(cfg.SlotGranularityMinutes) * time.Minute,
		LeadTime:            time.Duration(cfg.MinLeadTimeMinutes) * time.Minute,
		HorizonDays:         cfg.BookingHorizonDays,
		ReminderWindow:      time.Duration(cfg.ReminderWindowHours) * time.Hour,
		CollaboratorTimeout: cfg.CollaboratorTimeout(),
		TaskMaxRetry:        cfg.TaskMaxRetry,
		Pricing: PricingPolicy{
			DepositPercent:  cfg.DepositPercent,
			MinDepositCents: cfg.MinDepositCents,
			Currency:        cfg.Currency,
		},
	}, nil
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Repo     bookingRepo.BookingRepository
	Catalog  *catalog.Catalog
	Tasks    tasks.Dispatcher
	Payments payment.Gateway
	Calendar calendar.Service
	SMS      notification.Sender
	Events   events.Publisher
	Deduper  utils.Deduper
	Logger   *zap.Logger
	Now      func() time.Time
}

// DefaultBookingService implements BookingService and tasks.Handler.
type DefaultBookingService struct {
	repo     bookingRepo.BookingRepository
	catalog  *catalog.Catalog
	tasks    tasks.Dispatcher
	payments payment.Gateway
	calendar calendar.Service
	sms      notification.Sender
	events   events.Publisher
	deduper  utils.Deduper
	logger   *zap.Logger
	now      func() time.Time
	validate *validator.Validate
	settings Settings
}

var (
	_ BookingService = (*DefaultBookingService)(nil)
	_ tasks.Handler  = (*DefaultBookingService)(nil)
)

func NewBookingService(d Deps, s Settings) (*DefaultBookingService, error) {
	if d.Repo == nil || d.Catalog == nil || d.Tasks == nil {
		return nil, errors.New("booking service initialization error: repo, catalog and task dispatcher are required")
	}
	if d.Payments == nil || d.Calendar == nil || d.SMS == nil {
		return nil, errors.New("booking service initialization error: payment, calendar and sms collaborators are required")
	}
	if s.Location == nil || s.Granularity <= 0 || s.CloseMinute <= s.OpenMinute {
		return nil, errors.New("booking service initialization error: invalid business hours")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = events.NewLogPublisher(d.Logger)
	}
	if d.Deduper == nil {
		d.Deduper = utils.NewMemoryDeduper(utils.WebhookDedupeTTL)
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &DefaultBookingService{
		repo:     d.Repo,
		catalog:  d.Catalog,
		tasks:    d.Tasks,
		payments: d.Payments,
		calendar: d.Calendar,
		sms:      d.SMS,
		events:   d.Events,
		deduper:  d.Deduper,
		logger:   d.Logger,
		now:      d.Now,
		validate: v,
		settings: s,
	}, nil
}

func (s *DefaultBookingService) clock() time.Time {
	return s.now().UTC()
}

func (s *DefaultBookingService) ListCatalog() models.CatalogResponse {
	return models.CatalogResponse{Services: s.catalog.Services(), AddOns: s.catalog.AddOns()}
}

func (s *DefaultBookingService) Quote(req models.QuoteRequest) (*models.Quote, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	sel, err := s.resolve(req.ServiceID, req.AddOnIDs)
	if err != nil {
		return nil, err
	}
	q, err := s.settings.Pricing.Quote(sel, req.PaymentOption)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *DefaultBookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(id, err)
	}
	return b, nil
}

// resolve maps catalog lookup failures to ValidationError.
func (s *DefaultBookingService) resolve(serviceID string, addOnIDs []string) (catalog.Selection, error) {
	sel, err := s.catalog.Resolve(serviceID, addOnIDs)
	switch {
	case errors.Is(err, catalog.ErrUnknownService):
		return sel, invalid("serviceId", "unknown service %q", serviceID)
	case errors.Is(err, catalog.ErrUnknownAddOn), errors.Is(err, catalog.ErrDuplicateAddOn):
		return sel, &ValidationError{Field: "addOns", Message: err.Error()}
	case err != nil:
		return sel, err
	}
	return sel, nil
}

func (s *DefaultBookingService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return invalid(field, "failed %q validation", fe.Tag())
	}
	return invalid("", "%v", err)
}

// storeErr maps repository sentinels onto the service taxonomy.
func (s *DefaultBookingService) storeErr(id string, err error) error {
	switch {
	case errors.Is(err, bookingRepo.ErrNotFound):
		return &NotFoundError{ID: id}
	case errors.Is(err, bookingRepo.ErrVersionConflict):
		return fmt.Errorf("booking %s is busy, retry: %w", id, err)
	}
	return err
}

// enqueue dispatches one booking task. Failures are logged and returned.
func (s *DefaultBookingService) enqueue(ctx context.Context, taskType, bookingID string) error {
	task, err := tasks.NewBookingTask(taskType, bookingID, s.settings.TaskMaxRetry)
	if err != nil {
		return err
	}
	if err := s.tasks.Enqueue(ctx, task); err != nil {
		s.logger.Error("Failed to enqueue task",
			zap.String("type", taskType),
			zap.String("bookingID", bookingID),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *DefaultBookingService) publish(ctx context.Context, typ string, b *models.Booking) {
	if err := s.events.Publish(ctx, events.NewBookingEvent(typ, *b, s.clock())); err != nil {
		s.logger.Warn("Failed to publish booking event",
			zap.String("type", typ),
			zap.String("bookingID", b.ID),
			zap.Error(err))
	}
}

// collaboratorCtx bounds one payment, calendar or SMS call.
func (s *DefaultBookingService) collaboratorCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.settings.CollaboratorTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.settings.CollaboratorTimeout)
}
