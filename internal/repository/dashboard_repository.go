package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/msgdesk/hub/internal/models"
)

// DashboardRepository runs the aggregate queries behind the dashboard
type DashboardRepository struct {
	db *pgxpool.Pool
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(db *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Stats computes the dashboard overview. Message volume covers the last days days up to now (UTC).
func (r *DashboardRepository) Stats(ctx context.Context, now time.Time, days int) (*models.DashboardStats, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))

	stats := &models.DashboardStats{
		ByChannel:   map[string]models.MessageCounts{},
		Daily:       []models.DailyMessageCounts{},
		GeneratedAt: now,
	}

	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM contacts),
			(SELECT COUNT(*) FROM contacts WHERE opted_out),
			(SELECT COUNT(*) FROM contact_groups),
			(SELECT COUNT(*) FROM templates WHERE status = 'APPROVED'),
			(SELECT COUNT(*) FROM bulk_sends WHERE status IN ('pending', 'running')),
			(SELECT COUNT(*) FROM scheduled_messages WHERE status = 'pending')
	`).Scan(&stats.Contacts, &stats.OptedOutContacts, &stats.Groups, &stats.ApprovedTemplates,
		&stats.ActiveBulkSends, &stats.PendingScheduled)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard totals: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, channel,
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM messages
		WHERE created_at >= $1
		GROUP BY day, channel
		ORDER BY day
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load message volume: %w", err)
	}
	defer rows.Close()

	daily := make(map[time.Time]*models.MessageCounts, days)

	for rows.Next() {
		var (
			day     time.Time
			channel string
			counts  models.MessageCounts
		)

		if err := rows.Scan(&day, &channel, &counts.Sent, &counts.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan message volume: %w", err)
		}

		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

		d, ok := daily[day]
		if !ok {
			d = &models.MessageCounts{}
			daily[day] = d
		}

		d.Sent += counts.Sent
		d.Failed += counts.Failed

		ch := stats.ByChannel[channel]
		ch.Sent += counts.Sent
		ch.Failed += counts.Failed
		stats.ByChannel[channel] = ch

		stats.Last30Days.Sent += counts.Sent
		stats.Last30Days.Failed += counts.Failed
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message volume: %w", err)
	}

	for day := since; !day.After(today); day = day.AddDate(0, 0, 1) {
		entry := models.DailyMessageCounts{Day: day}
		if d, ok := daily[day]; ok {
			entry.MessageCounts = *d
		}

		stats.Daily = append(stats.Daily, entry)
	}

	if d, ok := daily[today]; ok {
		stats.Today = *d
	}

	return stats, nil
}
