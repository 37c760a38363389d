package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okdomo/catapult/cache"
	"github.com/okdomo/catapult/cli/render"
)

// CacheEntryView is the rendered form of one cache row.
type CacheEntryView struct {
	Key       string `json:"key"`
	ArchiveID string `json:"archive_id"`
	Integrity string `json:"integrity,omitempty"`
	Mtime     string `json:"mtime"`
	UpdatedAt string `json:"updated_at"`
}

// CacheCommand returns the cache command and its subcommands.
func CacheCommand() *cli.Command {
	cacheFlags := []cli.Flag{
		ConfigFlag,
		FormatFlag,
		&cli.StringFlag{
			Name:  "cache",
			Usage: "Path to the local duplicate cache database",
		},
	}

	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the local duplicate cache",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "List cached uploads",
				Flags: cacheFlags,
				Action: func(c *cli.Context) error {
					store, r, err := openCacheStore(c)
					if err != nil {
						return err
					}
					defer store.Close()

					entries, err := store.All(c.Context)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					views := make([]CacheEntryView, 0, len(entries))
					for _, e := range entries {
						views = append(views, CacheEntryView{
							Key:       e.Key,
							ArchiveID: e.ArchiveID,
							Integrity: e.Integrity,
							Mtime:     time.Unix(0, e.MtimeNS).UTC().Format(time.RFC3339),
							UpdatedAt: time.Unix(0, e.UpdatedAt).UTC().Format(time.RFC3339),
						})
					}
					return r.Render(views)
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every cache entry, keeping the table",
				Flags: cacheFlags,
				Action: func(c *cli.Context) error {
					store, _, err := openCacheStore(c)
					if err != nil {
						return err
					}
					defer store.Close()

					if err := store.Clear(c.Context); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return nil
				},
			},
			{
				Name:  "drop",
				Usage: "Drop the cache table entirely",
				Flags: cacheFlags,
				Action: func(c *cli.Context) error {
					store, _, err := openCacheStore(c)
					if err != nil {
						return err
					}
					defer store.Close()

					if err := store.Drop(c.Context); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return nil
				},
			},
		},
	}
}

func openCacheStore(c *cli.Context) (*cache.Store, *render.Renderer, error) {
	r, err := render.NewRenderer(c)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 2)
	}

	path := c.String("cache")
	if path == "" {
		cfg, err := loadConfigFile(c)
		if err != nil {
			return nil, nil, cli.Exit(err.Error(), 2)
		}
		path = cfg.CachePath
	}
	if path == "" {
		return nil, nil, cli.Exit("no cache path configured (flag --cache or config cache_path)", 2)
	}

	store, err := cache.Open(path)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 1)
	}
	return store, r, nil
}
