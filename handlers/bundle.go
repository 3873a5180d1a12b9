package handlers

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	Catalog  *CatalogHandler
	Bookings *BookingHandler
	Webhooks *WebhookHandler
	Admin    *AdminHandler

	// JWTSecret verifies operator tokens on the admin group.
	JWTSecret []byte
	// RequestsPerMinute is the per-IP budget of the public API.
	RequestsPerMinute int
}
