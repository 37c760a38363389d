// Package cmd provides CLI commands for the catapult binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags.
var (
	// ConfigFlag points at the YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to catapult.yaml config file",
	}

	// HostFlag overrides the configured LANraragi base URL.
	HostFlag = &cli.StringFlag{
		Name:    "host",
		Usage:   "LANraragi base URL, e.g. http://localhost:3000",
		EnvVars: []string{"LRR_HOST"},
	}

	// APIKeyFlag overrides the configured API key.
	APIKeyFlag = &cli.StringFlag{
		Name:    "api-key",
		Usage:   "LANraragi API key",
		EnvVars: []string{"LRR_API_KEY"},
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables the Bubble Tea progress view for batch uploads.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Show an interactive progress view (batch commands only)",
	}
)

// ServerFlags returns the flags every server-facing command takes.
func ServerFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		HostFlag,
		APIKeyFlag,
		FormatFlag,
	}
}

// BatchFlags returns ServerFlags plus batch tuning flags.
func BatchFlags() []cli.Flag {
	return append(ServerFlags(),
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Concurrent uploads per batch",
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Connection retry ceiling, -1 retries forever",
		},
		&cli.StringFlag{
			Name:  "cache",
			Usage: "Path to the local duplicate cache database",
		},
		&cli.BoolFlag{
			Name:  "no-cache",
			Usage: "Disable the local duplicate cache",
		},
		&cli.BoolFlag{
			Name:  "remove-duplicates",
			Usage: "Sweep the remote archive list before uploading",
		},
		&cli.BoolFlag{
			Name:  "check-integrity",
			Usage: "Decode zip image members before uploading",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Append batch records to this report file",
		},
		TUIFlag,
	)
}
