package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/okdomo/catapult/archive"
	"github.com/okdomo/catapult/cli/render"
)

// ValidateResult is one file's local validation outcome.
type ValidateResult struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Issue string `json:"issue,omitempty"`
}

// ValidateCommand returns the validate command: the pipeline's local gates
// (stat, extension, signature) without touching the network.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate archives locally without uploading",
		ArgsUsage: "<file>...",
		Flags:     []cli.Flag{FormatFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("validate requires at least one file argument", 2)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			results := make([]ValidateResult, 0, c.NArg())
			failures := 0
			for _, path := range c.Args().Slice() {
				res := validateFile(path)
				if !res.Valid {
					failures++
				}
				results = append(results, res)
			}

			if err := r.Render(results); err != nil {
				return err
			}
			if failures > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func validateFile(path string) ValidateResult {
	res := ValidateResult{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		res.Issue = "file does not exist"
		return res
	}
	if !info.Mode().IsRegular() {
		res.Issue = "not a regular file"
		return res
	}
	if !archive.AllowedExtension(path) {
		res.Issue = "missing or unsupported extension"
		return res
	}
	leading, err := archive.ReadSignature(path)
	if err != nil {
		res.Issue = "unreadable: " + err.Error()
		return res
	}
	if !archive.AllowedSignature(leading) {
		res.Issue = "failed the MIME signature test"
		return res
	}

	res.Valid = true
	return res
}
