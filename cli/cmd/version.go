package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/maxreport/cli/render"
	"github.com/justapithecus/maxreport/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version      string `json:"version"`
	EventVersion string `json:"event_version"`
	Commit       string `json:"commit"`
}

// VersionCommand returns the version command. It never contacts the
// reporting service.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  []cli.Flag{FormatFlag, TUIFlag},
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c, c.App.Writer)
		if err != nil {
			return invalid(err)
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitInvalid)
		}

		return r.Render(VersionResponse{
			Version:      types.Version,
			EventVersion: types.EventVersion,
			Commit:       commit,
		})
	}
}
