package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/okdomo/catapult/cli/render"
	"github.com/okdomo/catapult/types"
)

// UploadResult is the rendered outcome of a single upload.
type UploadResult struct {
	Path      string `json:"path"`
	Status    string `json:"status"`
	DupSource string `json:"dup_source,omitempty"`
	Message   string `json:"message,omitempty"`
}

// UploadCommand returns the upload command: one file through the full
// pipeline, with metadata taken from flags.
func UploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a single archive",
		ArgsUsage: "<file>",
		Flags: append(BatchFlags(),
			&cli.StringFlag{Name: "title", Usage: "Archive title"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
			&cli.StringFlag{Name: "summary", Usage: "Archive summary"},
			&cli.StringFlag{Name: "category-id", Usage: "Server category ID"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("upload requires exactly one file argument", 2)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			rt, err := newBatchRuntime(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			defer rt.Close()

			request := types.UploadRequest{
				Path: c.Args().First(),
				Metadata: types.ArchiveMetadata{
					Title:      c.String("title"),
					Tags:       c.String("tags"),
					Summary:    c.String("summary"),
					CategoryID: c.String("category-id"),
				},
			}

			result, err := rt.coordinator(nil).UploadAll(c.Context, []types.UploadRequest{request})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			rt.publishResult(result)

			resp := result.Responses[0]
			if err := r.Render(UploadResult{
				Path:      resp.Path,
				Status:    string(resp.Status),
				DupSource: string(resp.DupSource),
				Message:   resp.Message,
			}); err != nil {
				return err
			}
			if resp.Status != types.StatusSuccess && resp.Status != types.StatusDuplicate {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
