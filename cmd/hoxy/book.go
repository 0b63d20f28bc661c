package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/hoxy/internal/booking"
)

func newBookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Reservation commands",
	}

	cmd.AddCommand(newBookLinkCmd())
	cmd.AddCommand(newBookSubmitCmd())
	return cmd
}

func newBookLinkCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "link <token>",
		Short: "Show what a reservation link offers",
		Long:  "Resolves a reservation link token and prints the artist, products, and unavailable dates.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookLink(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runBookLink(cmd *cobra.Command, configPath, token string) error {
	out := cmd.OutOrStdout()

	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	now := time.Now().In(a.cfg.Chat.Location())
	landing, err := booking.LoadLanding(cmd.Context(), a.client, token, now)
	if err != nil {
		return err
	}

	link := landing.Link
	if link.Artist != nil {
		fmt.Fprintf(out, "Artist:      %s\n", link.Artist.DisplayName())
		if link.Artist.ContactLink != "" {
			fmt.Fprintf(out, "Contact:     %s\n", link.Artist.ContactLink)
		}
	}
	status := "active"
	if !landing.Active(now) {
		status = "inactive"
	}
	fmt.Fprintf(out, "Link:        %s (%s)\n", token, status)
	if link.ExpiresAt != "" {
		fmt.Fprintf(out, "Expires:     %s\n", link.ExpiresAt)
	}
	fmt.Fprintln(out, "Products:")
	for _, p := range landing.Products {
		marker := " "
		if p == landing.DefaultProduct {
			marker = "*"
		}
		fmt.Fprintf(out, "  %s %s\n", marker, p)
	}
	if len(link.UnavailableDates) > 0 {
		fmt.Fprintf(out, "Unavailable: %s\n", strings.Join(link.UnavailableDates, ", "))
	}
	return nil
}

type submitFlags struct {
	configPath string
	token      string
	form       booking.Form
	dates      []string
}

func newBookSubmitCmd() *cobra.Command {
	var f submitFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a reservation and open its chat",
		Long: `Validates the booking form, posts the reservation, and saves the chat it
opens so later chat commands can find it.

Pass --date up to three times, in priority order (YYYY-MM-DD).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookSubmit(cmd, f)
		},
	}

	addConfigFlag(cmd, &f.configPath)
	cmd.Flags().StringVar(&f.token, "token", "", "reservation link token")
	cmd.Flags().StringVar(&f.form.Name, "name", "", "customer name")
	cmd.Flags().StringVar(&f.form.Phone, "phone", "", "mobile number, e.g. 010-1234-5678")
	cmd.Flags().StringVar(&f.form.Product, "product", "", "product name (defaults to the link's product)")
	cmd.Flags().StringArrayVar(&f.dates, "date", nil, "preferred date, repeat up to 3 times")
	cmd.Flags().BoolVar(&f.form.PrivacyAgreed, "agree-privacy", false, "agree to personal data collection")
	cmd.Flags().BoolVar(&f.form.TermsAgreed, "agree-terms", false, "agree to the terms of service")
	return cmd
}

func runBookSubmit(cmd *cobra.Command, f submitFlags) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	form := f.form
	rules := booking.DateRules{}

	a, err := openApp(f.configPath)
	if err != nil {
		return err
	}
	now := time.Now().In(a.cfg.Chat.Location())

	var landing *booking.Landing
	if f.token != "" {
		landing, err = booking.LoadLanding(ctx, a.client, f.token, now)
		if err != nil {
			return err
		}
		if !landing.Active(now) {
			return fmt.Errorf("reservation link %s is no longer active", f.token)
		}
		rules = landing.Rules
		if form.Product == "" {
			form.Product = landing.DefaultProduct
		}
	} else {
		rules.Today = now
	}

	for _, d := range f.dates {
		if _, err := form.ToggleDate(d, rules); err != nil {
			return err
		}
	}

	sub, err := booking.NewSubmitter(a.client, a.store)
	if err != nil {
		return err
	}
	var res *booking.Result
	if landing != nil {
		res, err = sub.Submit(ctx, form, landing.Link)
	} else {
		res, err = sub.Submit(ctx, form, nil)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Reservation submitted for %s (%s)\n", form.Name, booking.FormatPhone(res.Phone))
	for i, d := range res.Request.DateCandidates {
		fmt.Fprintf(out, "  %d순위: %s\n", i+1, d)
	}
	fmt.Fprintf(out, "Chat %s is ready. Run `hoxy chat tail` to follow it.\n", res.ChatID)
	return nil
}
