package utils

import "time"

// WebhookDedupePrefix is the prefix of Redis keys marking processed webhook events.
const WebhookDedupePrefix = "webhook:seen:"

// WebhookDedupeTTL bounds how long a processed event id is remembered. Stripe
// and Twilio stop retrying well within it.
const WebhookDedupeTTL = 72 * time.Hour
