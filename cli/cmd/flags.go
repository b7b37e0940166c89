// Package cmd provides CLI commands for the maxreport binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/maxreport/types"
)

// Shared flags.
var (
	// ConfigFlag points at a maxreport.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to maxreport.yaml",
		EnvVars: []string{"MAXREPORT_CONFIG"},
	}

	// APIKeyFlag supplies API keys directly. Repeat it to rotate keys.
	APIKeyFlag = &cli.StringSliceFlag{
		Name:    "api-key",
		Usage:   "API key (repeatable; several keys are rotated)",
		EnvVars: []string{"MAX_API_KEY"},
	}

	// APIKeySSMFlag names SSM parameters holding API keys.
	APIKeySSMFlag = &cli.StringSliceFlag{
		Name:  "api-key-ssm",
		Usage: "SSM parameter name holding an API key (repeatable)",
	}

	// KeyStrategyFlag selects how several keys are rotated.
	KeyStrategyFlag = &cli.StringFlag{
		Name:  "key-strategy",
		Usage: "Key rotation: round_robin or random",
	}

	// FormatFlag selects output format.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, yaml, table, csv, msgpack",
	}

	// OutFlag writes output to a file instead of stdout.
	OutFlag = &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Write output to `FILE` instead of stdout",
	}

	// TUIFlag shows a Bubble Tea summary once the fetch finishes.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Show an interactive fetch summary",
	}

	// BrowseFlag opens the fetched rows in a scrollable table.
	BrowseFlag = &cli.BoolFlag{
		Name:  "browse",
		Usage: "Browse fetched rows interactively",
	}

	// QuietFlag suppresses result output.
	QuietFlag = &cli.BoolFlag{
		Name:    "quiet",
		Aliases: []string{"q"},
		Usage:   "Suppress result output",
	}

	// VerboseFlag enables debug logging of every attempt.
	VerboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Log every request attempt",
	}
)

// Storage flags.
var (
	SinkBackendFlag = &cli.StringFlag{
		Name:  "sink-backend",
		Usage: "Storage backend: fs or s3",
	}
	SinkPathFlag = &cli.StringFlag{
		Name:  "sink-path",
		Usage: "Storage path (fs: directory, s3: bucket/prefix)",
	}
	SinkS3RegionFlag = &cli.StringFlag{
		Name:  "sink-s3-region",
		Usage: "AWS region for the S3 backend (optional, uses default chain)",
	}
)

// Notification flags.
var (
	NotifyTypeFlag = &cli.StringFlag{
		Name:  "notify-type",
		Usage: "Completion notification: webhook or redis",
	}
	NotifyURLFlag = &cli.StringFlag{
		Name:  "notify-url",
		Usage: "Webhook URL or Redis URL for completion notifications",
	}
)

// SharedFlags returns the flags every fetching command accepts.
func SharedFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		APIKeyFlag,
		APIKeySSMFlag,
		KeyStrategyFlag,
		FormatFlag,
		OutFlag,
		TUIFlag,
		BrowseFlag,
		QuietFlag,
		VerboseFlag,
		SinkBackendFlag,
		SinkPathFlag,
		SinkS3RegionFlag,
		NotifyTypeFlag,
		NotifyURLFlag,
	}
}

// ReportQueryFlags returns the flags describing an inline report query.
func ReportQueryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "start",
			Usage: "First day of the report (YYYY-MM-DD, default two days ago)",
		},
		&cli.StringFlag{
			Name:  "end",
			Usage: "Last day of the report (YYYY-MM-DD, default yesterday)",
		},
		&cli.StringSliceFlag{
			Name:     "columns",
			Usage:    "Report columns, comma separated or repeated",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "filter",
			Usage: "Extra query parameter as key=value (repeatable)",
		},
	}
}

// withFlags joins flag groups.
func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// limitFlag caps the rows of a single-shot report.
var limitFlag = &cli.IntFlag{
	Name:  "limit",
	Usage: "Maximum rows returned",
	Value: types.DefaultLimit,
}
