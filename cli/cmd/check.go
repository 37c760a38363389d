package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/okdomo/catapult/cli/render"
	"github.com/okdomo/catapult/lrr"
)

// CheckResponse is the response for the check command.
type CheckResponse struct {
	Host          string `json:"host"`
	Reachable     bool   `json:"reachable"`
	Authenticated bool   `json:"authenticated"`
	ShinobuAlive  bool   `json:"shinobu_alive"`
	Detail        string `json:"detail,omitempty"`
}

// CheckCommand returns the check command: server reachability, credential
// validity and background worker state. Read-only.
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Check server connectivity and credentials",
		Flags: ServerFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			client := lrr.New(cfg.Host, cfg.APIKey)
			resp := CheckResponse{Host: cfg.Host}

			if err := client.Info(c.Context); err != nil {
				if errors.Is(err, lrr.ErrUnauthorized) {
					resp.Reachable = true
					resp.Detail = "invalid credentials"
				} else {
					resp.Detail = err.Error()
				}
				_ = r.Render(resp)
				return cli.Exit("", 1)
			}
			resp.Reachable = true

			// /api/info works without a key on open servers; the shinobu
			// endpoint requires one, so it doubles as the credential probe.
			shinobu, err := client.ShinobuStatus(c.Context)
			switch {
			case err == nil:
				resp.Authenticated = true
				resp.ShinobuAlive = shinobu.Running()
			case errors.Is(err, lrr.ErrUnauthorized):
				resp.Detail = "invalid credentials"
			default:
				resp.Authenticated = true
				resp.Detail = err.Error()
			}

			if err := r.Render(resp); err != nil {
				return err
			}
			if !resp.Authenticated {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
