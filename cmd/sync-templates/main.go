// Command sync-templates pulls the approved WhatsApp message templates from Meta into the database once
// and exits. Configuration comes from the same environment variables as the API (API_KEY included).
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msgdesk/hub/internal/config"
	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/repository"
	"github.com/msgdesk/hub/internal/service"
	"github.com/msgdesk/hub/pkg/database"
	"github.com/msgdesk/hub/pkg/whatsapp"
)

const syncTimeout = 5 * time.Minute

var errWhatsAppNotConfigured = errors.New("WHATSAPP_BUSINESS_ACCOUNT_ID and WHATSAPP_ACCESS_TOKEN are required")

// noopPublisher drops events: there are no webhook subscribers to notify from a one-shot command.
type noopPublisher struct{}

func (noopPublisher) PublishEvent(context.Context, datatypes.EventType, any) {}

func (noopPublisher) PublishEventWithChangedFields(context.Context, datatypes.EventType, any, []string) {}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("template sync failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.WhatsAppBusinessAccountID == "" || cfg.WhatsAppAccessToken == "" {
		return errWhatsAppNotConfigured
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithMaxConns(2))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	client := whatsapp.NewClient(whatsapp.ClientOptions{
		BaseURL:           cfg.WhatsAppAPIBaseURL,
		AccessToken:       cfg.WhatsAppAccessToken,
		PhoneNumberID:     cfg.WhatsAppPhoneNumberID,
		BusinessAccountID: cfg.WhatsAppBusinessAccountID,
	})

	templates := service.NewTemplatesService(
		repository.NewTemplatesRepository(db), client, nil, noopPublisher{}, nil, nil,
	)

	result, err := templates.SyncTemplates(ctx)
	if err != nil {
		return err
	}

	slog.Info("template sync finished", "synced", result.Synced, "synced_at", result.SyncedAt)

	return nil
}
