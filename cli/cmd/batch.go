package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/okdomo/catapult/archive"
	"github.com/okdomo/catapult/cli/render"
	"github.com/okdomo/catapult/cli/tui"
	"github.com/okdomo/catapult/metadata"
	"github.com/okdomo/catapult/types"
	"github.com/okdomo/catapult/uploader"
)

// BatchSummary is the rendered outcome of a batch upload.
type BatchSummary struct {
	BatchID       string `json:"batch_id"`
	Total         int    `json:"total"`
	Succeeded     int64  `json:"succeeded"`
	Duplicates    int64  `json:"duplicates"`
	Failed        int64  `json:"failed"`
	BytesUploaded int64  `json:"bytes_uploaded"`
	CacheHits     int64  `json:"cache_hits"`
	ServerHits    int64  `json:"server_hits"`
	ElapsedMS     int64  `json:"elapsed_ms"`
}

// BatchCommand returns the batch command and its per-source subcommands.
func BatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Upload every archive under a directory",
		Subcommands: []*cli.Command{
			batchFolderCommand(),
			batchNhentaiArchivistCommand(),
			batchPixivUtil2Command(),
		},
	}
}

func batchFolderCommand() *cli.Command {
	return &cli.Command{
		Name:      "folder",
		Usage:     "Upload a plain directory of archives (no metadata)",
		ArgsUsage: "<dir>",
		Flags:     BatchFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("batch folder requires exactly one directory argument", 2)
			}
			return runBatch(c, metadata.Folder{}, c.Args().First())
		},
	}
}

func batchNhentaiArchivistCommand() *cli.Command {
	return &cli.Command{
		Name:  "nhentai-archivist",
		Usage: "Upload nhentai-archivist downloads with database metadata",
		Flags: append(BatchFlags(),
			&cli.StringFlag{Name: "db", Usage: "Path to the nhentai-archivist database"},
			&cli.StringFlag{Name: "contents", Usage: "Directory holding the downloaded archives"},
		),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			db, contents := cfg.NhentaiArchivist.DB, cfg.NhentaiArchivist.Contents
			if v := c.String("db"); v != "" {
				db = v
			}
			if v := c.String("contents"); v != "" {
				contents = v
			}
			if db == "" || contents == "" {
				return cli.Exit("nhentai-archivist requires --db and --contents (or config)", 2)
			}

			provider, err := metadata.OpenNhentaiArchivist(db)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			defer provider.Close()

			return runBatch(c, provider, contents)
		},
	}
}

func batchPixivUtil2Command() *cli.Command {
	return &cli.Command{
		Name:  "pixivutil2",
		Usage: "Upload PixivUtil2 downloads with database metadata",
		Flags: append(BatchFlags(),
			&cli.StringFlag{Name: "db", Usage: "Path to the PixivUtil2 database"},
			&cli.StringFlag{Name: "contents", Usage: "Directory holding the downloaded archives"},
		),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			db, contents := cfg.PixivUtil2.DB, cfg.PixivUtil2.Contents
			if v := c.String("db"); v != "" {
				db = v
			}
			if v := c.String("contents"); v != "" {
				contents = v
			}
			if db == "" || contents == "" {
				return cli.Exit("pixivutil2 requires --db and --contents (or config)", 2)
			}

			provider, err := metadata.OpenPixivUtil2(db)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			defer provider.Close()

			return runBatch(c, provider, contents)
		},
	}
}

// runBatch is the shared batch driver: discover archives, resolve metadata,
// fan out, then render and publish the summary.
func runBatch(c *cli.Context, provider metadata.Provider, root string) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	rt, err := newBatchRuntime(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer rt.Close()

	paths, err := archive.Find(root)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if len(paths) == 0 {
		return cli.Exit(fmt.Sprintf("no archives found under %s", root), 1)
	}

	requests := metadata.BuildRequests(c.Context, provider, paths, rt.logger)

	var progress func(uploader.ProgressEvent)
	var runner *tui.Runner
	if c.Bool("tui") {
		runner = tui.Start(len(requests))
		progress = runner.Hook()
	}

	result, err := rt.coordinator(progress).UploadAll(c.Context, requests)
	if runner != nil {
		_ = runner.Finish()
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	rt.publishResult(result)

	snap := rt.collector.Snapshot()
	summary := BatchSummary{
		BatchID:       result.BatchID,
		Total:         len(result.Responses),
		Succeeded:     result.Succeeded(),
		Duplicates:    result.Duplicates(),
		Failed:        result.Failed(),
		BytesUploaded: snap.BytesUploaded,
		CacheHits:     snap.CacheHits,
		ServerHits:    snap.ServerHits,
		ElapsedMS:     result.Elapsed.Milliseconds(),
	}
	if err := r.Render(summary); err != nil {
		return err
	}

	if result.Counts[types.StatusAuthFailure] > 0 {
		return cli.Exit("batch aborted: authentication failure", 1)
	}
	return nil
}
