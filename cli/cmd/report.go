package cmd

import (
	"errors"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/okdomo/catapult/cli/render"
	"github.com/okdomo/catapult/report"
)

// ReportRow is the rendered form of one report record.
type ReportRow struct {
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path,omitempty"`
	Status    string `json:"status,omitempty"`
	DupSource string `json:"dup_source,omitempty"`
	Message   string `json:"message,omitempty"`
	BatchID   string `json:"batch_id,omitempty"`
}

// ReportCommand returns the report command: read back a batch report file.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Show the records of a batch report file",
		ArgsUsage: "<report-file>",
		Flags: []cli.Flag{
			FormatFlag,
			&cli.BoolFlag{
				Name:  "summaries-only",
				Usage: "Show only batch summary records",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("report requires exactly one file argument", 2)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			reader, err := report.Open(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer reader.Close()

			summariesOnly := c.Bool("summaries-only")

			var rows []ReportRow
			for {
				record, err := reader.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}

				switch rec := record.(type) {
				case *report.UploadRecord:
					if summariesOnly {
						continue
					}
					rows = append(rows, ReportRow{
						Kind:      rec.Kind,
						Timestamp: rec.Timestamp.Format("2006-01-02 15:04:05"),
						Path:      rec.Path,
						Status:    rec.Status,
						DupSource: rec.DupSource,
						Message:   rec.Message,
					})
				case *report.SummaryRecord:
					rows = append(rows, ReportRow{
						Kind:      rec.Kind,
						Timestamp: rec.Timestamp.Format("2006-01-02 15:04:05"),
						BatchID:   rec.BatchID,
					})
				}
			}

			return r.Render(rows)
		},
	}
}
