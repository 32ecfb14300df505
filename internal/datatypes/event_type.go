// Package datatypes defines the outbound event types that webhooks subscribe to.
package datatypes

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrEventTypeTooLong   = errors.New("event type exceeds max length")
	ErrInvalidEventType   = errors.New("invalid event type")
	ErrDuplicateEventType = errors.New("duplicate event type")
)

const maxEventTypeLen = 64

// EventType identifies an outbound event. Its wire and database form is the dotted name
// returned by String.
type EventType uint16

const (
	ContactCreated EventType = iota
	ContactUpdated
	ContactDeleted
	ContactGroupCreated
	ContactGroupUpdated
	ContactGroupDeleted
	TemplatesSynced
	BulkSendStarted
	BulkSendProgress
	BulkSendCompleted
	TemplateMessageSent
	TemplateMessageFailed
	SMSMessageSent
	SMSMessageFailed
	ScheduledMessageCreated
	ScheduledMessageCancelled
	WebhookCreated
	WebhookUpdated
	WebhookDeleted
)

// eventTypeNames is indexed by EventType and must follow the constant order above.
var eventTypeNames = [...]string{
	ContactCreated:            "contact.created",
	ContactUpdated:            "contact.updated",
	ContactDeleted:            "contact.deleted",
	ContactGroupCreated:       "contact_group.created",
	ContactGroupUpdated:       "contact_group.updated",
	ContactGroupDeleted:       "contact_group.deleted",
	TemplatesSynced:           "template.synced",
	BulkSendStarted:           "bulk_send.started",
	BulkSendProgress:          "bulk_send.progress",
	BulkSendCompleted:         "bulk_send.completed",
	TemplateMessageSent:       "template_message.sent",
	TemplateMessageFailed:     "template_message.failed",
	SMSMessageSent:            "sms_message.sent",
	SMSMessageFailed:          "sms_message.failed",
	ScheduledMessageCreated:   "scheduled_message.created",
	ScheduledMessageCancelled: "scheduled_message.cancelled",
	WebhookCreated:            "webhook.created",
	WebhookUpdated:            "webhook.updated",
	WebhookDeleted:            "webhook.deleted",
}

var eventTypesByName = func() map[string]EventType {
	m := make(map[string]EventType, len(eventTypeNames))
	for et, name := range eventTypeNames {
		m[name] = EventType(et)
	}

	return m
}()

// String returns the dotted name, or "" for an unknown value.
func (et EventType) String() string {
	if int(et) >= len(eventTypeNames) {
		return ""
	}

	return eventTypeNames[et]
}

func ParseEventType(s string) (EventType, bool) {
	et, ok := eventTypesByName[s]

	return et, ok
}

// GetAllEventTypes returns every event type name in sorted order.
func GetAllEventTypes() []string {
	names := slices.Clone(eventTypeNames[:])
	slices.Sort(names)

	return names
}

func IsValidEventType(eventType string) bool {
	_, ok := eventTypesByName[eventType]

	return ok
}

// ParseEventTypes parses a subscription list, rejecting unknown, oversized and repeated names.
// An empty list parses to nil.
func ParseEventTypes(ss []string) ([]EventType, error) {
	if len(ss) == 0 {
		return nil, nil
	}

	out := make([]EventType, 0, len(ss))

	for _, s := range ss {
		if len(s) > maxEventTypeLen {
			return nil, fmt.Errorf("%w (%d): %s", ErrEventTypeTooLong, maxEventTypeLen, s)
		}

		et, ok := ParseEventType(s)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEventType, s)
		}

		if slices.Contains(out, et) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEventType, s)
		}

		out = append(out, et)
	}

	return out, nil
}

// EventTypeStrings converts types to their names for JSON and SQL text[] columns.
func EventTypeStrings(types []EventType) []string {
	if len(types) == 0 {
		return nil
	}

	out := make([]string, len(types))
	for i, et := range types {
		out[i] = et.String()
	}

	return out
}
