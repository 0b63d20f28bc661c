package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/booking"
	"github.com/zulandar/hoxy/internal/config"
	"github.com/zulandar/hoxy/internal/db"
	"github.com/zulandar/hoxy/internal/realtime"
	"github.com/zulandar/hoxy/internal/relay"
	"github.com/zulandar/hoxy/internal/relay/discord"
	"github.com/zulandar/hoxy/internal/relay/slack"
	"github.com/zulandar/hoxy/internal/state"
	"gorm.io/gorm"
)

const defaultConfigPath = "hoxy.yaml"

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", defaultConfigPath, "path to hoxy config file")
}

// loadConfig reads path. A missing default config file yields the built-in
// defaults; any other path must exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// app bundles what every networked command needs.
type app struct {
	cfg    *config.Config
	db     *gorm.DB
	store  *state.Store
	client *api.Client
}

func openApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	gormDB, err := db.Connect(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	store, err := state.New(gormDB)
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(api.ClientOpts{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, db: gormDB, store: store, client: client}, nil
}

// resolveChat fills in the chat id and phone from saved state when the
// flags leave them empty.
func (a *app) resolveChat(chatID, phone string) (string, string, error) {
	if chatID == "" {
		saved, ok, err := a.store.ChatID()
		if err != nil {
			return "", "", err
		}
		if !ok {
			return "", "", fmt.Errorf("no chat id: pass --chat or book first")
		}
		chatID = saved
	}
	if phone == "" {
		var form booking.Form
		if ok, err := a.store.GetJSON(state.KeyBookingData, &form); err != nil {
			return "", "", err
		} else if ok {
			phone = form.Phone
		}
	}
	digits, ok := booking.NormalizePhone(phone)
	if !ok {
		return "", "", fmt.Errorf("a valid mobile number is required: pass --phone")
	}
	return chatID, digits, nil
}

// newSource returns the realtime source, or nil when none is configured.
func newSource(cfg *config.Config) (realtime.Source, error) {
	if cfg.Realtime.URL == "" {
		return nil, nil
	}
	src, err := realtime.NewSupabase(realtime.SupabaseOpts{
		URL:       cfg.Realtime.URL,
		APIKey:    cfg.Realtime.APIKey,
		Schema:    cfg.Realtime.Schema,
		Table:     cfg.Realtime.Table,
		Heartbeat: cfg.Realtime.Heartbeat(),
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// newNotifier builds the relay fan-out from config, or nil when no relay
// is configured.
func newNotifier(cfg *config.Config) (relay.Notifier, error) {
	var m relay.Multi
	if cfg.Relay.Slack.BotToken != "" {
		n, err := slack.New(slack.Opts{
			BotToken:  cfg.Relay.Slack.BotToken,
			ChannelID: cfg.Relay.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		m = append(m, n)
	}
	if cfg.Relay.Discord.BotToken != "" {
		n, err := discord.New(discord.Opts{
			BotToken:  cfg.Relay.Discord.BotToken,
			ChannelID: cfg.Relay.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		m = append(m, n)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
