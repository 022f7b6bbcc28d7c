package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/flex-integration/internal/api"
	"github.com/dgnsrekt/flex-integration/internal/bulk"
	"github.com/dgnsrekt/flex-integration/internal/events"
)

// listingsAPI is the part of the Integration API the listing commands use.
type listingsAPI interface {
	ListAllListings(ctx context.Context, q api.ListingQuery) ([]api.Listing, error)
	CreateListing(ctx context.Context, l api.ListingCreate) (api.Listing, error)
	UpdateListing(ctx context.Context, l api.ListingUpdate) (api.Listing, error)
	ApproveListing(ctx context.Context, id uuid.UUID) (api.Listing, error)
	ShowUser(ctx context.Context, email string) (api.User, error)
}

var weekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// needsTimeBasedPlan reports whether l still has no plan or a day-based one.
func needsTimeBasedPlan(l api.Listing) bool {
	plan := l.Attributes.AvailabilityPlan
	return plan == nil || plan.Type == api.PlanTypeDay
}

// timeBasedPlan is open all day, every day, with one seat.
func timeBasedPlan(timezone string) *api.AvailabilityPlan {
	plan := &api.AvailabilityPlan{Type: api.PlanTypeTime, Timezone: timezone}
	for _, day := range weekdays {
		plan.Entries = append(plan.Entries, api.AvailabilityEntry{
			DayOfWeek: day,
			StartTime: "00:00",
			EndTime:   "00:00",
			Seats:     1,
		})
	}
	return plan
}

func planAvailabilityMigration(client listingsAPI, listings []api.Listing, timezone string, out io.Writer) bulk.Plan {
	var plan bulk.Plan
	for _, l := range listings {
		if !needsTimeBasedPlan(l) {
			continue
		}
		id := l.ID
		plan = append(plan, bulk.Job{
			Name: "update listing " + id.String(),
			Do: func(ctx context.Context) (any, error) {
				_, _ = fmt.Fprintln(out, "Updating listing", id)
				return client.UpdateListing(ctx, api.ListingUpdate{ID: id, AvailabilityPlan: timeBasedPlan(timezone)})
			},
		})
	}
	return plan
}

func bulkUpdateListingsCmd() *cobra.Command {
	var (
		dryRun   bool
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "bulk-update-listings",
		Short: "Migrate day-based availability plans to time-based plans",
		Long: `Finds listings without an availability plan or with a day-based plan and
gives them a time-based plan with one seat every day.

Runs as a dry run by default; pass --dry-run=false to write the changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := time.LoadLocation(timezone); err != nil {
				return fmt.Errorf("invalid timezone %q: %w", timezone, err)
			}
			return runBulkUpdateListings(cmd.Context(), newAPIClient(), newRunner(), cmd.OutOrStdout(), timezone, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "only report what would change")
	cmd.Flags().StringVar(&timezone, "timezone", "Europe/Helsinki", "IANA timezone of the new plans")
	return cmd
}

func runBulkUpdateListings(ctx context.Context, client listingsAPI, runner *bulk.Runner, out io.Writer, timezone string, dryRun bool) error {
	listings, err := client.ListAllListings(ctx, api.ListingQuery{PerPage: 100})
	if err != nil {
		return fmt.Errorf("querying listings: %w", err)
	}

	plan := planAvailabilityMigration(client, listings, timezone, out)
	_, _ = fmt.Fprintln(out, "Total listing count:", len(listings))
	_, _ = fmt.Fprintln(out, "Listings to migrate:", len(plan))

	if dryRun {
		_, _ = fmt.Fprintln(out, "To execute bulk update, run this command with --dry-run=false option")
		return nil
	}

	result, err := runPlan(ctx, runner, summaries(out), "bulk-update-listings", plan)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Successfully updated: %d listing(s)\n", result.Completed())
	return nil
}

func planMockListings(client listingsAPI, authorID uuid.UUID, count int) bulk.Plan {
	plan := make(bulk.Plan, 0, count)
	for i := 1; i <= count; i++ {
		extID := i
		plan = append(plan, bulk.Job{
			Name: fmt.Sprintf("create listing %d", extID),
			Do: func(ctx context.Context) (any, error) {
				return client.CreateListing(ctx, api.ListingCreate{
					Title:       fmt.Sprintf("Mock listing %d", extID),
					Description: fmt.Sprintf("Mock listing number %d created by flexctl", extID),
					AuthorID:    authorID,
					State:       events.StatePublished,
					Price:       &api.Money{Amount: 10000, Currency: "USD"},
					Metadata:    map[string]any{"extId": extID},
				})
			},
		})
	}
	return plan
}

func createListingsCmd() *cobra.Command {
	var (
		authorID string
		count    int
	)

	cmd := &cobra.Command{
		Use:   "create-listings",
		Short: "Create mock listings for an author, pacing writes to the command quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(authorID)
			if err != nil {
				return fmt.Errorf("invalid --author-id: %w", err)
			}
			if count < 1 {
				return fmt.Errorf("--count must be >= 1")
			}
			return runCreateListings(cmd.Context(), newAPIClient(), newRunner(), cmd.OutOrStdout(), id, count)
		},
	}

	cmd.Flags().StringVar(&authorID, "author-id", "", "user ID of the listings' author (required)")
	cmd.Flags().IntVar(&count, "count", 105, "number of listings to create")
	_ = cmd.MarkFlagRequired("author-id")
	return cmd
}

func runCreateListings(ctx context.Context, client listingsAPI, runner *bulk.Runner, out io.Writer, authorID uuid.UUID, count int) error {
	result, err := runPlan(ctx, runner, summaries(out), "create-listings", planMockListings(client, authorID, count))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Created %d listing(s)\n", result.Completed())
	return nil
}

func planApprovals(client listingsAPI, listings []api.Listing, out io.Writer) bulk.Plan {
	plan := make(bulk.Plan, 0, len(listings))
	for _, l := range listings {
		id := l.ID
		plan = append(plan, bulk.Job{
			Name: "approve listing " + id.String(),
			Do: func(ctx context.Context) (any, error) {
				approved, err := client.ApproveListing(ctx, id)
				if err != nil {
					return nil, err
				}
				_, _ = fmt.Fprintf(out, "Approved listing: %s (%s)\n", approved.Attributes.Title, approved.ID)
				return approved, nil
			},
		})
	}
	return plan
}

func approveListingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve-listings EMAIL",
		Short: "Approve every pending listing of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApproveListings(cmd.Context(), newAPIClient(), newRunner(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runApproveListings(ctx context.Context, client listingsAPI, runner *bulk.Runner, out io.Writer, email string) error {
	user, err := client.ShowUser(ctx, email)
	if err != nil {
		return fmt.Errorf("looking up user %s: %w", email, err)
	}

	pending, err := client.ListAllListings(ctx, api.ListingQuery{
		AuthorID: user.ID,
		States:   []string{events.StatePendingApproval},
		PerPage:  100,
	})
	if err != nil {
		return fmt.Errorf("querying pending listings: %w", err)
	}
	if len(pending) == 0 {
		_, _ = fmt.Fprintf(out, "No listings pending approval for %s\n", email)
		return nil
	}

	_, err = runPlan(ctx, runner, summaries(out), "approve-listings", planApprovals(client, pending, out))
	return err
}
