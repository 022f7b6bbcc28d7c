package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/flex-integration/internal/api"
)

type usersAPI interface {
	ShowUser(ctx context.Context, email string) (api.User, error)
	UpdateUserProfile(ctx context.Context, u api.ProfileUpdate) (api.User, error)
	UploadImage(ctx context.Context, filename string, r io.Reader) (api.Image, error)
}

func updateUserMetadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-user-metadata EMAIL",
		Short: "Mark a user as verified in their profile metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdateUserMetadata(cmd.Context(), newAPIClient(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runUpdateUserMetadata(ctx context.Context, client usersAPI, out io.Writer, email string) error {
	user, err := client.ShowUser(ctx, email)
	if err != nil {
		return fmt.Errorf("looking up user %s: %w", email, err)
	}

	updated, err := client.UpdateUserProfile(ctx, api.ProfileUpdate{
		ID:       user.ID,
		Metadata: map[string]any{"verified": true},
	})
	if err != nil {
		return fmt.Errorf("updating metadata: %w", err)
	}

	metadata, err := json.MarshalIndent(updated.Attributes.Profile.Metadata, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Metadata updated for user %s\n", updated.Attributes.Email)
	_, _ = fmt.Fprintf(out, "Current metadata: %s\n", metadata)
	return nil
}

func updateProfileImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-profile-image PATH EMAIL",
		Short: "Upload an image and set it as a user's profile image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdateProfileImage(cmd.Context(), newAPIClient(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runUpdateProfileImage(ctx context.Context, client usersAPI, out io.Writer, path, email string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer func() { _ = file.Close() }()

	user, err := client.ShowUser(ctx, email)
	if err != nil {
		return fmt.Errorf("looking up user %s: %w", email, err)
	}

	image, err := client.UploadImage(ctx, path, file)
	if err != nil {
		return err
	}

	if _, err := client.UpdateUserProfile(ctx, api.ProfileUpdate{ID: user.ID, ProfileImageID: &image.ID}); err != nil {
		return fmt.Errorf("setting profile image: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Profile image updated for user %s\n", email)
	return nil
}
