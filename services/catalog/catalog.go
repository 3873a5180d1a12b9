package catalog

import (
	"errors"
	"fmt"

	"washly/models"

	"github.com/spf13/viper"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrUnknownAddOn   = errors.New("unknown add-on")
	ErrDuplicateAddOn = errors.New("add-on selected more than once")
)

// Selection is a resolved service plus its ordered add-ons.
type Selection struct {
	Service         models.Service
	AddOns          []models.AddOn
	DurationMinutes int
	TotalCents      int64
}

// AddOnIDs returns the selected add-on ids in selection order.
func (s Selection) AddOnIDs() []string {
	ids := make([]string, len(s.AddOns))
	for i, a := range s.AddOns {
		ids[i] = a.ID
	}
	return ids
}

// Catalog is the read-only set of services and add-ons.
type Catalog struct {
	services []models.Service
	addOns   []models.AddOn
	svcByID  map[string]models.Service
	addByID  map[string]models.AddOn
}

// New validates the entries and builds the lookup indexes.
func New(services []models.Service, addOns []models.AddOn) (*Catalog, error) {
	c := &Catalog{
		services: append([]models.Service(nil), services...),
		addOns:   append([]models.AddOn(nil), addOns...),
		svcByID:  make(map[string]models.Service, len(services)),
		addByID:  make(map[string]models.AddOn, len(addOns)),
	}
	if len(services) == 0 {
		return nil, errors.New("catalog needs at least one service")
	}
	for _, s := range services {
		if s.ID == "" || s.DurationMinutes <= 0 || s.PriceCents < 0 {
			return nil, fmt.Errorf("invalid service %q", s.ID)
		}
		if _, dup := c.svcByID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate service id %q", s.ID)
		}
		c.svcByID[s.ID] = s
	}
	for _, a := range addOns {
		if a.ID == "" || a.DurationMinutes < 0 || a.PriceCents < 0 {
			return nil, fmt.Errorf("invalid add-on %q", a.ID)
		}
		if _, dup := c.addByID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate add-on id %q", a.ID)
		}
		c.addByID[a.ID] = a
	}
	return c, nil
}

// Default returns the built-in vehicle-care catalog.
func Default() *Catalog {
	c, err := New(defaultServices, defaultAddOns)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultServices = []models.Service{
	{ID: "basic-wash", Name: "Basic Wash", Description: "Exterior hand wash and dry", DurationMinutes: 60, PriceCents: 8999},
	{ID: "premium-detail", Name: "Premium Detail", Description: "Full exterior and interior detail", DurationMinutes: 120, PriceCents: 18999},
	{ID: "interior-deep-clean", Name: "Interior Deep Clean", Description: "Shampoo, steam and vacuum", DurationMinutes: 90, PriceCents: 12999},
}

var defaultAddOns = []models.AddOn{
	{ID: "wax", Name: "Hand Wax", DurationMinutes: 30, PriceCents: 2999},
	{ID: "engine-bay", Name: "Engine Bay Clean", DurationMinutes: 30, PriceCents: 3999},
	{ID: "pet-hair", Name: "Pet Hair Removal", DurationMinutes: 15, PriceCents: 1999},
}

// FromViper loads the optional "catalog" block of config.yaml, falling back to Default.
func FromViper(v *viper.Viper) (*Catalog, error) {
	if !v.IsSet("catalog") {
		return Default(), nil
	}
	var raw struct {
		Services []models.Service `mapstructure:"services"`
		AddOns   []models.AddOn   `mapstructure:"addOns"`
	}
	if err := v.UnmarshalKey("catalog", &raw); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return New(raw.Services, raw.AddOns)
}

func (c *Catalog) Services() []models.Service {
	return append([]models.Service(nil), c.services...)
}

func (c *Catalog) AddOns() []models.AddOn {
	return append([]models.AddOn(nil), c.addOns...)
}

func (c *Catalog) Service(id string) (models.Service, bool) {
	s, ok := c.svcByID[id]
	return s, ok
}

func (c *Catalog) AddOn(id string) (models.AddOn, bool) {
	a, ok := c.addByID[id]
	return a, ok
}

// Resolve looks up a service and its add-ons, keeping the caller's add-on order.
func (c *Catalog) Resolve(serviceID string, addOnIDs []string) (Selection, error) {
	svc, ok := c.svcByID[serviceID]
	if !ok {
		return Selection{}, fmt.Errorf("%w: %q", ErrUnknownService, serviceID)
	}
	sel := Selection{
		Service:         svc,
		AddOns:          make([]models.AddOn, 0, len(addOnIDs)),
		DurationMinutes: svc.DurationMinutes,
		TotalCents:      svc.PriceCents,
	}
	seen := make(map[string]bool, len(addOnIDs))
	for _, id := range addOnIDs {
		a, ok := c.addByID[id]
		if !ok {
			return Selection{}, fmt.Errorf("%w: %q", ErrUnknownAddOn, id)
		}
		if seen[id] {
			return Selection{}, fmt.Errorf("%w: %q", ErrDuplicateAddOn, id)
		}
		seen[id] = true
		sel.AddOns = append(sel.AddOns, a)
		sel.DurationMinutes += a.DurationMinutes
		sel.TotalCents += a.PriceCents
	}
	return sel, nil
}
