package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/flex-integration/internal/api"
	"github.com/dgnsrekt/flex-integration/internal/events"
)

type reportAPI interface {
	ShowMarketplace(ctx context.Context) (api.Marketplace, error)
	QueryUsers(ctx context.Context, q api.UserQuery) ([]api.User, api.Meta, error)
	QueryListings(ctx context.Context, q api.ListingQuery, page int) ([]api.Listing, api.Meta, error)
	CountUsers(ctx context.Context, since time.Time) (int, error)
	CountListings(ctx context.Context, states []string, since time.Time) (int, error)
	CountTransactions(ctx context.Context, since time.Time) (int, error)
}

// formatMoney renders minor units for the currencies the marketplace uses.
func formatMoney(m *api.Money) string {
	if m == nil {
		return "no price"
	}
	major := float64(m.Amount) / 100
	switch m.Currency {
	case "USD":
		return fmt.Sprintf("$%.2f", major)
	case "EUR":
		return fmt.Sprintf("%.2f€", major)
	default:
		return "unknown currency"
	}
}

func welcomeEmailCmd() *cobra.Command {
	var listingURL string

	cmd := &cobra.Command{
		Use:   "welcome-email",
		Short: "Print a welcome email for users who joined in the last 24 hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWelcomeEmail(cmd.Context(), newAPIClient(), cmd.OutOrStdout(), time.Now(), listingURL)
		},
	}

	cmd.Flags().StringVar(&listingURL, "listing-url", "https://example.com/l/", "prefix for listing links")
	return cmd
}

func runWelcomeEmail(ctx context.Context, client reportAPI, out io.Writer, now time.Time, listingURL string) error {
	marketplace, err := client.ShowMarketplace(ctx)
	if err != nil {
		return fmt.Errorf("fetching marketplace: %w", err)
	}
	users, _, err := client.QueryUsers(ctx, api.UserQuery{
		CreatedAtStart: now.Add(-24 * time.Hour),
		Fields:         []string{"email"},
	})
	if err != nil {
		return fmt.Errorf("querying new users: %w", err)
	}
	listings, _, err := client.QueryListings(ctx, api.ListingQuery{
		States:  []string{events.StatePublished},
		Fields:  []string{"title", "price"},
		PerPage: 3,
	}, 1)
	if err != nil {
		return fmt.Errorf("querying published listings: %w", err)
	}

	writeWelcomeEmail(out, marketplace.Attributes.Name, users, listings, listingURL)
	return nil
}

func writeWelcomeEmail(out io.Writer, name string, users []api.User, listings []api.Listing, listingURL string) {
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Attributes.Email)
	}

	var sb strings.Builder
	sb.WriteString("To: team@example.com\n")
	sb.WriteString(fmt.Sprintf("bcc: %s\n", strings.Join(emails, ", ")))
	sb.WriteString(fmt.Sprintf("Subject: Welcome to %s!\n\n", name))
	sb.WriteString("Checkout some of the recently published listings:\n")
	for _, l := range listings {
		sb.WriteString(fmt.Sprintf("\n%s, %s:\n", l.Attributes.Title, formatMoney(l.Attributes.Price)))
		sb.WriteString(listingURL + l.ID.String() + "\n")
	}
	sb.WriteString("\nIf you have any questions, feel free to contact us by responding to this email.\n\n")
	sb.WriteString("Cheers,\n")
	sb.WriteString(fmt.Sprintf("%s Team\n", name))

	_, _ = io.WriteString(out, sb.String())
}

// analytics holds the marketplace totals.
type analytics struct {
	Name string

	Listings        int
	ListingsByState map[string]int
	Users           int
	Transactions    int

	MonthStart      time.Time
	NewUsers        int
	NewListings     int
	NewTransactions int
}

var analyticsStates = []string{events.StateDraft, events.StatePendingApproval, events.StatePublished, events.StateClosed}

func collectAnalytics(ctx context.Context, client reportAPI, now time.Time) (*analytics, error) {
	marketplace, err := client.ShowMarketplace(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching marketplace: %w", err)
	}

	a := &analytics{
		Name:            marketplace.Attributes.Name,
		ListingsByState: make(map[string]int, len(analyticsStates)),
		MonthStart:      time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
	}

	counts := []struct {
		dst *int
		fn  func() (int, error)
	}{
		{&a.Users, func() (int, error) { return client.CountUsers(ctx, time.Time{}) }},
		{&a.Listings, func() (int, error) { return client.CountListings(ctx, nil, time.Time{}) }},
		{&a.Transactions, func() (int, error) { return client.CountTransactions(ctx, time.Time{}) }},
		{&a.NewUsers, func() (int, error) { return client.CountUsers(ctx, a.MonthStart) }},
		{&a.NewListings, func() (int, error) { return client.CountListings(ctx, nil, a.MonthStart) }},
		{&a.NewTransactions, func() (int, error) { return client.CountTransactions(ctx, a.MonthStart) }},
	}
	for _, c := range counts {
		if *c.dst, err = c.fn(); err != nil {
			return nil, err
		}
	}
	for _, state := range analyticsStates {
		n, err := client.CountListings(ctx, []string{state}, time.Time{})
		if err != nil {
			return nil, err
		}
		a.ListingsByState[state] = n
	}
	return a, nil
}

func writeAnalytics(out io.Writer, a *analytics) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("================ %s analytics ================\n\n", a.Name))
	sb.WriteString(fmt.Sprintf("Listings: %d\n", a.Listings))
	sb.WriteString(fmt.Sprintf(" - %d draft(s)\n", a.ListingsByState[events.StateDraft]))
	sb.WriteString(fmt.Sprintf(" - %d pending approval\n", a.ListingsByState[events.StatePendingApproval]))
	sb.WriteString(fmt.Sprintf(" - %d published\n", a.ListingsByState[events.StatePublished]))
	sb.WriteString(fmt.Sprintf(" - %d closed\n\n", a.ListingsByState[events.StateClosed]))
	sb.WriteString(fmt.Sprintf("Users: %d\n", a.Users))
	sb.WriteString(fmt.Sprintf("Transactions: %d\n\n", a.Transactions))
	sb.WriteString(fmt.Sprintf("This month, starting from %s:\n", a.MonthStart.Format("Mon Jan 02 2006")))
	sb.WriteString(fmt.Sprintf(" - %d new user(s)\n", a.NewUsers))
	sb.WriteString(fmt.Sprintf(" - %d new listing(s)\n", a.NewListings))
	sb.WriteString(fmt.Sprintf(" - %d new transaction(s)\n", a.NewTransactions))
	_, _ = io.WriteString(out, sb.String())
}

func analyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Print marketplace totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := collectAnalytics(cmd.Context(), newAPIClient(), time.Now())
			if err != nil {
				return err
			}
			writeAnalytics(cmd.OutOrStdout(), a)
			return nil
		},
	}
}
