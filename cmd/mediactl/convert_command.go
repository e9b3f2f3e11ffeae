package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var output string
	var mode string

	cmd := &cobra.Command{
		Use:   "convert <source>",
		Short: "Convert a media reference and save the artifact",
		Long: "Convert a media reference into the requested output kind. The artifact is written\n" +
			"to --output, or to the kind's default filename in the current directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.service(mode)
			if err != nil {
				return err
			}

			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			sink := newFileSink(strings.TrimSpace(output), dir)

			outcome, err := svc.Convert(cmd.Context(), domain.Request{
				SourceReference: args[0],
				OutputKind:      kind,
			}, sink)
			if err != nil {
				sink.Abort()
				return err
			}

			path, err := sink.Commit()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s, %s) in %s\n",
				path,
				outcome.Kind,
				humanize.Bytes(uint64(outcome.BytesDelivered)),
				outcome.Duration.Round(time.Millisecond),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", domain.KindAudio, "Output kind ("+strings.Join(domain.KindNames(), ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file path")
	cmd.Flags().StringVar(&mode, "mode", "", "Delivery mode override (buffered or direct)")
	return cmd
}
