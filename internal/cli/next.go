package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/cronexpr"
	"github.com/spf13/cobra"
)

// NextOptions contains the options for the next command.
type NextOptions struct {
	Timezone string
	Count    int
	After    string
	JSON     bool
}

// NewNextCommand creates the next command, which previews upcoming occurrences of a cron
// expression without touching the database.
func NewNextCommand() *cobra.Command {
	opts := &NextOptions{}

	cmd := &cobra.Command{
		Use:   "next <cron expression>",
		Short: "Preview the next occurrences of a cron expression",
		Long: `Print the next occurrences of a five field cron expression evaluated in a timezone.

Examples:
  flowtrigger next "0 9 * * MON-FRI" --tz America/New_York
  flowtrigger next "*/15 * * * *" --count 4 --after 2024-03-10T06:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNext(cmd.OutOrStdout(), args[0], opts, time.Now())
		},
	}

	cmd.Flags().StringVar(&opts.Timezone, "tz", "UTC", "IANA timezone the expression is evaluated in")
	cmd.Flags().IntVar(&opts.Count, "count", 5, "number of occurrences to print")
	cmd.Flags().StringVar(&opts.After, "after", "", "RFC3339 reference instant, defaults to now")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "output in JSON format")

	return cmd
}

type occurrence struct {
	UTC   time.Time `json:"utc"`
	Local string    `json:"local"`
}

func runNext(out io.Writer, expr string, opts *NextOptions, now time.Time) error {
	if opts.Count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	after := now
	if opts.After != "" {
		t, err := time.Parse(time.RFC3339, opts.After)
		if err != nil {
			return fmt.Errorf("invalid --after: %w", err)
		}
		after = t
	}
	e, err := cronexpr.Parse(expr, opts.Timezone)
	if err != nil {
		return err
	}
	times, err := e.Occurrences(after, opts.Count)
	if err != nil {
		return err
	}

	list := make([]occurrence, 0, len(times))
	for _, t := range times {
		list = append(list, occurrence{UTC: t.UTC(), Local: t.In(e.Location()).Format("2006-01-02 15:04 MST")})
	}
	if opts.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(list)
	}
	for _, o := range list {
		fmt.Fprintf(out, "%s  %s\n", o.UTC.Format(time.RFC3339), o.Local)
	}
	return nil
}
