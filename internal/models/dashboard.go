package models

import "time"

// MessageCounts holds sent/failed totals for a period or channel
type MessageCounts struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// DailyMessageCounts is one day of the message volume chart
type DailyMessageCounts struct {
	Day time.Time `json:"day"`
	MessageCounts
}

// DashboardStats is the overview shown on the dashboard
type DashboardStats struct {
	Contacts          int64                    `json:"contacts"`
	OptedOutContacts  int64                    `json:"opted_out_contacts"`
	Groups            int64                    `json:"groups"`
	ApprovedTemplates int64                    `json:"approved_templates"`
	ActiveBulkSends   int64                    `json:"active_bulk_sends"`
	PendingScheduled  int64                    `json:"pending_scheduled"`
	Today             MessageCounts            `json:"today"`
	Last30Days        MessageCounts            `json:"last_30_days"`
	ByChannel         map[string]MessageCounts `json:"by_channel"`
	Daily             []DailyMessageCounts     `json:"daily"`
	GeneratedAt       time.Time                `json:"generated_at"`
}
