package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"podcast-player/internal/catalog"
	"podcast-player/internal/events"
	"podcast-player/internal/format"
	"podcast-player/internal/models"
)

func newEpisodesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List the episodes in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			episodes := catalog.Default().List()
			if len(episodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No episodes")
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(episodes))
			for _, ep := range episodes {
				rows = append(rows, []string{
					strconv.Itoa(ep.Number),
					ep.Title,
					format.ReleaseDate(ep.ReleasedAt) + " (" + humanize.RelTime(ep.ReleasedAt, now, "ago", "from now") + ")",
					format.Duration(ep.DurationInSeconds),
				})
			}

			table := renderTable(
				[]string{"No.", "Title", "Released", "Duration"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.AddCommand(newEpisodeShowCommand())
	return cmd
}

func newEpisodeShowCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <number>",
		Short: "Show one episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid episode number %q", args[0])
			}

			ep, err := catalog.Default().Find(number)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				payload, err := events.Payload(ep)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, payload)
				return nil
			}

			notes, err := notesText(ep.Notes)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "No. %d - %s\n", ep.Number, ep.Title)
			fmt.Fprintf(out, "Released: %s\n", format.ReleaseDate(ep.ReleasedAt))
			fmt.Fprintf(out, "Duration: %s\n", format.Duration(ep.DurationInSeconds))
			fmt.Fprintf(out, "Audio:    %s\n", ep.Audio)
			fmt.Fprintf(out, "Page:     %s\n", ep.Path())
			if notes != "" {
				fmt.Fprintf(out, "\n%s\n", notes)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the play-episode signal payload")
	return cmd
}

// notesText flattens show notes HTML into paragraphs and "- " bullets.
func notesText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse notes: %w", err)
	}

	var lines []string
	doc.Find("p, li").Each(func(_ int, s *goquery.Selection) {
		line := strings.Join(strings.Fields(s.Text()), " ")
		if line == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			line = "- " + line
		}
		lines = append(lines, line)
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(lines, "\n"), nil
}

// catalogImage returns the artwork of the newest episode, used as the default
// image for new entries.
func catalogImage(episodes []models.Episode) string {
	if len(episodes) == 0 {
		return ""
	}
	return episodes[0].Image
}
