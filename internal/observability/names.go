// Package observability provides OpenTelemetry metrics, tracing and log correlation for the hub.
package observability

import (
	"github.com/msgdesk/hub/internal/datatypes"
)

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameEventsDiscarded   = "msgdesk_events_discarded_total"
	MetricNameFanOutDuration    = "msgdesk_message_publisher_fan_out_duration_seconds"
	MetricNameEventChannelDepth = "msgdesk_event_channel_depth"
	MetricNameRiverQueueDepth   = "msgdesk_river_queue_depth"

	MetricNameWebhookJobsEnqueued     = "msgdesk_webhook_jobs_enqueued_total"
	MetricNameWebhookProviderErrors   = "msgdesk_webhook_provider_errors_total"
	MetricNameWebhookDeliveries       = "msgdesk_webhook_deliveries_total"
	MetricNameWebhookDisabled         = "msgdesk_webhook_disabled_total"
	MetricNameWebhookDispatchErrors   = "msgdesk_webhook_dispatch_errors_total"
	MetricNameWebhookDeliveryDuration = "msgdesk_webhook_delivery_duration_seconds"
	MetricNameWebhookEnqueueRetries   = "msgdesk_webhook_enqueue_retries_total"

	MetricNameMessagesSent        = "msgdesk_messages_total"
	MetricNameBulkRuns            = "msgdesk_bulk_send_runs_total"
	MetricNameBulkBatchDuration   = "msgdesk_bulk_send_batch_duration_seconds"
	MetricNameBulkRunDuration     = "msgdesk_bulk_send_run_duration_seconds"
	MetricNameScheduledEnqueued   = "msgdesk_scheduled_messages_enqueued_total"
	MetricNameTemplatesSynced     = "msgdesk_templates_synced_total"
	MetricNameProviderErrors      = "msgdesk_provider_errors_total"
	MetricNameRequestBodyTooLarge = "msgdesk_request_body_too_large_total"

	MetricNameCacheHits   = "msgdesk_cache_hits_total"
	MetricNameCacheMisses = "msgdesk_cache_misses_total"
)

// Attribute keys.
const (
	AttrEventType = "event_type"
	AttrReason    = "reason"
	AttrStatus    = "status"
	AttrChannel   = "channel"
	AttrProvider  = "provider"
	AttrCache     = "cache"
)

// Cache names used as the cache attribute.
const (
	CacheWebhookList    = "webhook_list"
	CacheWebhookGetByID = "webhook_get_by_id"
	CacheTemplates      = "templates"
)

// AllowedProviderReasons for msgdesk_webhook_provider_errors_total.
var AllowedProviderReasons = map[string]bool{
	"list_failed":    true,
	"enqueue_failed": true,
}

// AllowedDeliveryStatuses for msgdesk_webhook_deliveries_total and the delivery duration histogram.
var AllowedDeliveryStatuses = map[string]bool{
	"success":      true,
	"retry":        true,
	"failed_final": true,
}

// AllowedDisabledReasons for msgdesk_webhook_disabled_total.
var AllowedDisabledReasons = map[string]bool{
	"410_gone":     true,
	"max_attempts": true,
}

// AllowedDispatchReasons for msgdesk_webhook_dispatch_errors_total.
var AllowedDispatchReasons = map[string]bool{
	"get_webhook_failed": true,
}

// AllowedChannels for messaging metrics.
var AllowedChannels = map[string]bool{
	"sms":      true,
	"whatsapp": true,
}

// AllowedMessageStatuses for msgdesk_messages_total.
var AllowedMessageStatuses = map[string]bool{
	"sent":   true,
	"failed": true,
}

// AllowedRunStatuses for msgdesk_bulk_send_runs_total.
var AllowedRunStatuses = map[string]bool{
	"completed":             true,
	"completed_with_errors": true,
	"failed":                true,
	"stopped":               true,
	"cancelled":             true,
}

// AllowedCacheNames for the cache hit/miss counters.
var AllowedCacheNames = map[string]bool{
	CacheWebhookList:    true,
	CacheWebhookGetByID: true,
	CacheTemplates:      true,
}

// NormalizeEventType returns eventType if it is a known event type, otherwise "unknown".
func NormalizeEventType(eventType string) string {
	if datatypes.IsValidEventType(eventType) {
		return eventType
	}

	return "unknown"
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeStatus returns status if in AllowedDeliveryStatuses, otherwise "other".
func NormalizeStatus(status string) string {
	return NormalizeReason(status, AllowedDeliveryStatuses)
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, AllowedCacheNames)
}
