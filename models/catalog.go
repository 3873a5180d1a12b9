package models

// Service is an immutable catalog entry customers book against.
type Service struct {
	ID              string `bson:"id" json:"id" mapstructure:"id"`
	Name            string `bson:"name" json:"name" mapstructure:"name"`
	Description     string `bson:"description,omitempty" json:"description,omitempty" mapstructure:"description"`
	DurationMinutes int    `bson:"durationMinutes" json:"durationMinutes" mapstructure:"durationMinutes"` // whole minutes
	PriceCents      int64  `bson:"priceCents" json:"priceCents" mapstructure:"priceCents"`                // minor currency units
}

// AddOn extends a service with extra time and cost.
type AddOn struct {
	ID              string `bson:"id" json:"id" mapstructure:"id"`
	Name            string `bson:"name" json:"name" mapstructure:"name"`
	DurationMinutes int    `bson:"durationMinutes" json:"durationMinutes" mapstructure:"durationMinutes"`
	PriceCents      int64  `bson:"priceCents" json:"priceCents" mapstructure:"priceCents"`
}

// CatalogResponse is returned by the catalog endpoint.
type CatalogResponse struct {
	Services []Service `json:"services"`
	AddOns   []AddOn   `json:"addOns"`
}
