package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/chat"
	"github.com/zulandar/hoxy/internal/dashboard"
	"github.com/zulandar/hoxy/internal/models"
	"github.com/zulandar/hoxy/internal/realtime"
	"github.com/zulandar/hoxy/internal/relay"
	"github.com/zulandar/hoxy/internal/state"
)

type chatFlags struct {
	configPath string
	chatID     string
	phone      string
}

func addChatFlags(cmd *cobra.Command, f *chatFlags) {
	addConfigFlag(cmd, &f.configPath)
	cmd.Flags().StringVar(&f.chatID, "chat", "", "chat id (defaults to the last booked chat)")
	cmd.Flags().StringVar(&f.phone, "phone", "", "mobile number used to book (defaults to the saved booking)")
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the artist",
	}

	cmd.AddCommand(newChatHistoryCmd())
	cmd.AddCommand(newChatSendCmd())
	cmd.AddCommand(newChatUploadCmd())
	cmd.AddCommand(newChatTailCmd())
	cmd.AddCommand(newChatServeCmd())
	return cmd
}

// chatRun is an opened session plus what it was built from.
type chatRun struct {
	app     *app
	session *chat.Session
	source  realtime.Source
	printer *printer
}

// openChat loads config and state and opens a session. With live set the
// realtime source and relay notifiers are attached.
func openChat(ctx context.Context, cmd *cobra.Command, f chatFlags, live bool) (*chatRun, error) {
	a, err := openApp(f.configPath)
	if err != nil {
		return nil, err
	}
	chatID, phone, err := a.resolveChat(f.chatID, f.phone)
	if err != nil {
		return nil, err
	}

	var (
		source   realtime.Source
		notifier relay.Notifier
	)
	if live {
		if source, err = newSource(a.cfg); err != nil {
			return nil, err
		}
		if notifier, err = newNotifier(a.cfg); err != nil {
			if source != nil {
				source.Close()
			}
			return nil, err
		}
	}

	sess, err := chat.NewSession(chat.SessionOpts{
		Backend:  a.client,
		Source:   source,
		Notifier: notifier,
		ChatID:   chatID,
		Phone:    phone,
		Role:     models.Sender(a.cfg.Chat.Role),
		PageSize: a.cfg.Chat.PageSize,
		Location: a.cfg.Chat.Location(),
	})
	if err != nil {
		return nil, err
	}
	if _, err := sess.Open(ctx); err != nil {
		sess.Close()
		if source != nil {
			source.Close()
		}
		return nil, err
	}

	artist, err := a.store.ArtistName()
	if err != nil || artist == "" {
		artist = state.DefaultArtistName
	}
	return &chatRun{
		app:     a,
		session: sess,
		source:  source,
		printer: newPrinter(cmd.OutOrStdout(), models.Sender(a.cfg.Chat.Role), artist),
	}, nil
}

func (r *chatRun) Close() {
	r.session.Close()
	if r.source != nil {
		r.source.Close()
	}
}

// startResync schedules periodic history re-fetches when configured.
func (r *chatRun) startResync(ctx context.Context) error {
	spec := r.app.cfg.Chat.ResyncCron
	if spec == "" {
		return nil
	}
	rs, err := chat.NewResyncer(spec, r.session, r.app.cfg.API.Timeout())
	if err != nil {
		return err
	}
	rs.Start(ctx)
	return nil
}

func newChatHistoryCmd() *cobra.Command {
	var (
		f   chatFlags
		all bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the chat history",
		Long:  "Prints the most recent page of messages, or the whole history with --all.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatHistory(cmd, f, all)
		},
	}

	addChatFlags(cmd, &f)
	cmd.Flags().BoolVar(&all, "all", false, "load the entire history")
	return cmd
}

func runChatHistory(cmd *cobra.Command, f chatFlags, all bool) error {
	run, err := openChat(cmd.Context(), cmd, f, false)
	if err != nil {
		return err
	}
	defer run.Close()

	if all {
		for run.session.HasMore() {
			if len(run.session.LoadOlder()) == 0 {
				break
			}
		}
	}
	msgs := run.session.Messages()
	run.printer.messages(msgs)
	if run.session.HasMore() {
		fmt.Fprintln(cmd.OutOrStdout(), "(older messages available: use --all)")
	}
	return nil
}

func newChatSendCmd() *cobra.Command {
	var f chatFlags

	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a text message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatSend(cmd, f, args[0])
		},
	}

	addChatFlags(cmd, &f)
	return cmd
}

func runChatSend(cmd *cobra.Command, f chatFlags, text string) error {
	run, err := openChat(cmd.Context(), cmd, f, false)
	if err != nil {
		return err
	}
	defer run.Close()

	m, err := run.session.Send(cmd.Context(), text)
	if err != nil {
		if api.IsTimeout(err) {
			return fmt.Errorf("%s: %w", api.TimeoutMessage, err)
		}
		return err
	}
	run.printer.message(m)
	return nil
}

func newChatUploadCmd() *cobra.Command {
	var f chatFlags

	cmd := &cobra.Command{
		Use:   "upload <image>...",
		Short: "Send up to 10 images",
		Args:  cobra.RangeArgs(1, chat.MaxImages),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatUpload(cmd, f, args)
		},
	}

	addChatFlags(cmd, &f)
	return cmd
}

func readImages(paths []string) ([]api.ImageFile, error) {
	files := make([]api.ImageFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		files = append(files, api.ImageFile{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func runChatUpload(cmd *cobra.Command, f chatFlags, paths []string) error {
	files, err := readImages(paths)
	if err != nil {
		return err
	}
	// Check limits before touching the network.
	if _, err := chat.PrepareImages(files); err != nil {
		return err
	}

	run, err := openChat(cmd.Context(), cmd, f, false)
	if err != nil {
		return err
	}
	defer run.Close()

	m, err := run.session.UploadImages(cmd.Context(), files)
	if err != nil {
		return err
	}
	run.printer.message(m)
	return nil
}

func newChatTailCmd() *cobra.Command {
	var f chatFlags

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the chat in real time",
		Long: `Prints recent messages and then every new one as it arrives over the
realtime stream. Messages from the other side are relayed to Slack or
Discord when configured, and history is re-fetched on chat.resync_cron.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatTail(cmd, f)
		},
	}

	addChatFlags(cmd, &f)
	return cmd
}

func runChatTail(cmd *cobra.Command, f chatFlags) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	run, err := openChat(ctx, cmd, f, true)
	if err != nil {
		return err
	}
	defer run.Close()

	updates, unsubscribe := run.session.Subscribe()
	defer unsubscribe()

	run.printer.messages(run.session.Messages())
	if run.source == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "(realtime not configured; relying on resync)")
	}
	if err := run.startResync(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			switch u.Type {
			case chat.UpdateAdded:
				run.printer.message(u.Message)
			case chat.UpdateChanged:
				if u.Message.IsRead && u.Message.Sender == run.printer.role {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s 읽음\n", u.Message.Timestamp)
				}
			}
		}
	}
}

func newChatServeCmd() *cobra.Command {
	var (
		f    chatFlags
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the chat in a local web view",
		Long:  "Starts a local web server with a live chat view backed by the realtime stream.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatServe(cmd, f, port)
		},
	}

	addChatFlags(cmd, &f)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (defaults to dashboard.port)")
	return cmd
}

func runChatServe(cmd *cobra.Command, f chatFlags, port int) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	run, err := openChat(ctx, cmd, f, true)
	if err != nil {
		return err
	}
	defer run.Close()

	if err := run.startResync(ctx); err != nil {
		return err
	}
	if port == 0 {
		port = run.app.cfg.Dashboard.Port
	}
	return dashboard.Start(ctx, dashboard.StartOpts{
		Session:    run.session,
		ArtistName: run.printer.artist,
		Port:       port,
		Out:        cmd.OutOrStdout(),
	})
}
