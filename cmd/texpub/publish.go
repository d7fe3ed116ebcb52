package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPublishCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <slug>",
		Short: "Recompile a stored post and update its pages",
		Args:  cobra.ExactArgs(1),
		RunE:  publishCommand,
	}
}

func publishCommand(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Init(); err != nil {
		return err
	}

	res, err := app.PublishSlug(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s: %d page(s), %d media file(s) in %s\n",
		res.Slug, len(res.Pages), len(res.Media), res.Duration.Round(time.Millisecond))
	return nil
}
