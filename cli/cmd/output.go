package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/maxreport/cli/render"
	"github.com/justapithecus/maxreport/cli/tui"
	"github.com/justapithecus/maxreport/iox"
	"github.com/justapithecus/maxreport/types"
)

// summaryOf builds the TUI summary payload for a result.
func summaryOf(res *fetchResult) *tui.FetchSummary {
	summary := &tui.FetchSummary{
		Outcome:     res.Outcome,
		StoragePath: res.StoragePath,
		Elapsed:     res.Elapsed,
		Metrics:     res.Metrics,
	}
	if res.Err != nil {
		summary.Error = res.Err.Error()
	}
	return summary
}

// emit writes the fetched table to --out or stdout, then opens the
// interactive views that were asked for. Interactive views take over
// the terminal, so the table only goes to stdout without them.
func (s *session) emit(table *types.Table, summary *tui.FetchSummary) error {
	interactive := s.tui || s.browse

	switch {
	case s.outPath != "":
		if err := s.writeFile(s.outPath, table); err != nil {
			return err
		}
	case !s.quiet && !interactive:
		r, err := render.New(s.format, s.stdout)
		if err != nil {
			return err
		}
		if err := r.Render(table); err != nil {
			return fmt.Errorf("render output: %w", err)
		}
	}

	r := render.NewRendererWithWriter(render.FormatTable, s.stdout)
	if s.tui && summary != nil {
		if err := r.RenderTUI(tui.ViewStatsFetch, summary); err != nil {
			return err
		}
	}
	if s.browse {
		return r.RenderTUI(tui.ViewInspectTable, table)
	}
	return nil
}

func (s *session) writeFile(path string, table *types.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer iox.DiscardClose(f)

	format := s.format
	if format == "" {
		format = string(render.FormatJSON)
	}
	r, err := render.New(format, f)
	if err != nil {
		return err
	}
	if err := r.Render(table); err != nil {
		return fmt.Errorf("render output: %w", err)
	}
	return f.Close()
}

// outputWriter opens the destination for streamed output.
func (s *session) outputWriter() (io.Writer, func(), error) {
	if s.outPath == "" {
		return s.stdout, func() {}, nil
	}
	f, err := os.Create(s.outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return f, iox.CloseFunc(f), nil
}
