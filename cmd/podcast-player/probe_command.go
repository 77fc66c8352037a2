package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podcast-player/internal/catalog"
	"podcast-player/internal/metadata"
)

func newProbeCommand() *cobra.Command {
	var number int
	var audioURL string
	var imageURL string
	var released string

	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Print a catalog entry for a local audio file",
		Long: "Reads the tags and, for mp3 files, the duration of a local audio file and\n" +
			"prints a YAML entry for the embedded episode catalog.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if number <= 0 {
				return errors.New("--number must be a positive episode number")
			}
			if strings.TrimSpace(audioURL) == "" {
				return errors.New("--audio-url is required")
			}

			releasedAt := time.Now().UTC().Truncate(time.Second)
			if strings.TrimSpace(released) != "" {
				parsed, err := time.ParseInLocation(catalog.ReleasedAtLayout, strings.TrimSpace(released), time.UTC)
				if err != nil {
					return fmt.Errorf("--released: %w", err)
				}
				releasedAt = parsed
			}

			if imageURL == "" {
				imageURL = catalogImage(catalog.Default().List())
			}

			probe, err := metadata.ProbeFile(args[0])
			if err != nil {
				return fmt.Errorf("probe %s: %w", args[0], err)
			}
			if !probe.DurationKnown {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not determine the duration of %s; set duration_in_seconds by hand\n", args[0])
			}

			out, err := metadata.MarshalEntries(probe.Entry(number, audioURL, imageURL, releasedAt))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if _, err := io.WriteString(w, probe.Comment()); err != nil {
				return err
			}
			_, err = w.Write(out)
			return err
		},
	}

	cmd.Flags().IntVar(&number, "number", 0, "Episode number")
	cmd.Flags().StringVar(&audioURL, "audio-url", "", "Public URL of the audio file")
	cmd.Flags().StringVar(&imageURL, "image-url", "", "Cover art URL (defaults to the newest episode's artwork)")
	cmd.Flags().StringVar(&released, "released", "", "Release time as \"YYYY-MM-DD HH:MM:SS\" in UTC (defaults to now)")
	return cmd
}
