package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/onurmatik/taletinker/storytree"
)

type layoutOptions struct {
	storyID   string
	highlight string
	svgPath   string
	asJSON    bool
}

// runLayoutCommand prints the story map for one story's family.
func runLayoutCommand(args []string) error {
	opts, err := parseLayoutArgs(args)
	if err != nil {
		return err
	}

	paths, cfg, err := loadAppContext()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := openLibraryDB(ctx, paths.libraryDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	stories, err := loadLibrary(ctx, db)
	if err != nil {
		return err
	}
	layout, title, err := buildStoryLayout(stories, opts.storyID, opts.highlight, cfg.Geometry)
	if err != nil {
		return err
	}
	logger.Debug("built story map",
		zap.String("story", opts.storyID),
		zap.Int("nodes", len(layout.Nodes)),
		zap.Int("edges", len(layout.Edges)),
	)
	return writeLayout(os.Stdout, layout, title, opts)
}

func parseLayoutArgs(args []string) (layoutOptions, error) {
	fs := flag.NewFlagSet("layout", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	highlight := fs.String("highlight", "", "story whose ending is labelled")
	svgPath := fs.String("svg", "", "write an SVG drawing to this file (- for stdout)")
	asJSON := fs.Bool("json", false, "print the layout as JSON")

	normalized, err := normalizeCommandArgs(args, 1, "--highlight", "-highlight", "--svg", "-svg")
	if err != nil {
		return layoutOptions{}, fmt.Errorf("%w\n%s", err, layoutUsageText())
	}
	if err := fs.Parse(normalized); err != nil {
		return layoutOptions{}, fmt.Errorf("%w\n%s", err, layoutUsageText())
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return layoutOptions{}, fmt.Errorf("a story id is required\n%s", layoutUsageText())
	}

	opts := layoutOptions{
		storyID:   strings.TrimSpace(fs.Arg(0)),
		highlight: strings.TrimSpace(*highlight),
		svgPath:   strings.TrimSpace(*svgPath),
		asJSON:    *asJSON,
	}
	if opts.svgPath != "" && opts.asJSON {
		return layoutOptions{}, fmt.Errorf("--svg and --json cannot be combined\n%s", layoutUsageText())
	}
	return opts, nil
}

func layoutUsageText() string {
	return strings.TrimSpace(`
Usage:
  storymap layout <story-id> [--highlight <story-id>]
  storymap layout <story-id> [--highlight <story-id>] --json
  storymap layout <story-id> [--highlight <story-id>] --svg <file>
`)
}

// buildStoryLayout merges storyID's family from the library. It fails for an
// unknown story rather than printing an empty map.
func buildStoryLayout(stories []storyRecord, storyID, highlight string, g storytree.Geometry) (storytree.Layout, string, error) {
	title := ""
	found := false
	for _, s := range stories {
		if s.storyID == storyID {
			title, found = s.displayTitle(), true
			break
		}
	}
	if !found {
		return storytree.Layout{}, "", fmt.Errorf("story %q: %w", storyID, errStoryNotFound)
	}
	layout := storytree.BuildMergeLayout(sequencesOf(stories), storyID, highlight, storytree.WithGeometry(g))
	if layout.Empty() {
		return storytree.Layout{}, "", errors.New("story map is empty")
	}
	return layout, title, nil
}

func writeLayout(w io.Writer, layout storytree.Layout, title string, opts layoutOptions) error {
	switch {
	case opts.asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(layout); err != nil {
			return fmt.Errorf("encode layout: %w", err)
		}
		return nil
	case opts.svgPath == "-":
		return writeLayoutSVG(w, layout, title)
	case opts.svgPath != "":
		path := expandHomePath(opts.svgPath)
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create svg %q: %w", path, err)
		}
		if err := writeLayoutSVG(file, layout, title); err != nil {
			_ = file.Close()
			return fmt.Errorf("write svg %q: %w", path, err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("close svg %q: %w", path, err)
		}
		_, err = fmt.Fprintf(w, "Wrote %d nodes to %s (%dx%d)\n", len(layout.Nodes), path, layout.Width, layout.Height)
		return err
	default:
		if _, err := fmt.Fprintf(w, "%s  %d nodes  %d edges  %dx%d\n\n", title, len(layout.Nodes), len(layout.Edges), layout.Width, layout.Height); err != nil {
			return err
		}
		for _, line := range renderStoryMap(layout, mapRenderOptions{}) {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	}
}
