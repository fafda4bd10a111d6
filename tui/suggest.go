package main

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/onurmatik/taletinker/storytree"
)

var suggestionDeckNames = []string{
	"openers.txt",
	"continuations.txt",
	"endings.txt",
}

// defaultSuggestionFS stores the built-in suggestion decks.
//
//go:embed suggestions/*.txt
var defaultSuggestionFS embed.FS

type deckSource struct {
	name string
	kind string // "filesystem" or "embedded"
	path string
}

// suggestionDeck is the offline sentence source for the authoring screen.
type suggestionDeck struct {
	openers       []string
	continuations []string
	endings       []string
}

type suggestionsOptions struct {
	list       bool
	exportDir  string
	showName   string
	diffName   string
	sample     bool
	sampleLine []string
	deckDir    string
}

// runSuggestionsCommand executes suggestion deck maintenance commands.
func runSuggestionsCommand(args []string) error {
	opts, err := parseSuggestionsArgs(args)
	if err != nil {
		return err
	}
	_, cfg, err := loadAppContext()
	if err != nil {
		return err
	}
	if opts.deckDir == "" {
		opts.deckDir = cfg.SuggestionsDir
	}

	actions := 0
	for _, on := range []bool{opts.list, opts.exportDir != "", opts.showName != "", opts.diffName != "", opts.sample} {
		if on {
			actions++
		}
	}
	if actions == 0 {
		return fmt.Errorf("one action is required\n%s", suggestionsUsageText())
	}
	if actions > 1 {
		return fmt.Errorf("only one action can be used at a time\n%s", suggestionsUsageText())
	}

	switch {
	case opts.list:
		return listDeckSources(opts.deckDir)
	case opts.exportDir != "":
		return exportDeckDefaults(opts.exportDir)
	case opts.showName != "":
		return showActiveDeck(opts.showName, opts.deckDir)
	case opts.diffName != "":
		return diffDeck(opts.diffName, opts.deckDir)
	default:
		deck, err := loadSuggestionDeck(opts.deckDir)
		if err != nil {
			return err
		}
		s := newSuggester(deck, cfg.SuggestionCount, nil)
		for _, line := range s.next(opts.sampleLine, storytree.CanEnd(len(opts.sampleLine), cfg.MinStoryLines)) {
			fmt.Println(line)
		}
		return nil
	}
}

func parseSuggestionsArgs(args []string) (suggestionsOptions, error) {
	var opts suggestionsOptions
	for i := 0; i < len(args); i++ {
		arg := args[i]
		nextValue := func(flagName string) (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("missing value for %s", flagName)
			}
			i++
			return args[i], nil
		}

		switch {
		case arg == "--list":
			opts.list = true
		case arg == "--export":
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				i++
				opts.exportDir = args[i]
			} else {
				opts.exportDir = "-"
			}
		case strings.HasPrefix(arg, "--export="):
			opts.exportDir = strings.TrimSpace(strings.TrimPrefix(arg, "--export="))
			if opts.exportDir == "" {
				opts.exportDir = "-"
			}
		case arg == "--show":
			value, err := nextValue(arg)
			if err != nil {
				return suggestionsOptions{}, fmt.Errorf("%w\n%s", err, suggestionsUsageText())
			}
			opts.showName = value
		case arg == "--diff":
			value, err := nextValue(arg)
			if err != nil {
				return suggestionsOptions{}, fmt.Errorf("%w\n%s", err, suggestionsUsageText())
			}
			opts.diffName = value
		case arg == "--sample":
			opts.sample = true
		case arg == "--line":
			value, err := nextValue(arg)
			if err != nil {
				return suggestionsOptions{}, fmt.Errorf("%w\n%s", err, suggestionsUsageText())
			}
			opts.sampleLine = append(opts.sampleLine, value)
		case arg == "--deck-dir":
			value, err := nextValue(arg)
			if err != nil {
				return suggestionsOptions{}, fmt.Errorf("%w\n%s", err, suggestionsUsageText())
			}
			opts.deckDir = expandHomePath(value)
		case arg == "--help", arg == "-h":
			return suggestionsOptions{}, errors.New(suggestionsUsageText())
		default:
			return suggestionsOptions{}, fmt.Errorf("unknown argument %q\n%s", arg, suggestionsUsageText())
		}
	}
	if len(opts.sampleLine) > 0 && !opts.sample {
		return suggestionsOptions{}, fmt.Errorf("--line requires --sample\n%s", suggestionsUsageText())
	}
	return opts, nil
}

func suggestionsUsageText() string {
	return strings.TrimSpace(`Usage:
  storymap suggestions --list [--deck-dir <dir>]
  storymap suggestions --export [dir]
  storymap suggestions --show <deck> [--deck-dir <dir>]
  storymap suggestions --diff <deck> [--deck-dir <dir>]
  storymap suggestions --sample [--line <sentence>]... [--deck-dir <dir>]
`)
}

func listDeckSources(overrideDir string) error {
	for _, name := range suggestionDeckNames {
		content, source, err := loadDeckContent(name, overrideDir)
		if err != nil {
			return err
		}
		count := len(parseDeckLines(content))
		if source.kind == "filesystem" {
			fmt.Printf("%-18s %3d lines  %s (override)\n", name, count, source.path)
			continue
		}
		fmt.Printf("%-18s %3d lines  embedded (no override)\n", name, count)
	}
	return nil
}

func exportDeckDefaults(dir string) error {
	if dir == "-" {
		paths, err := resolveDataPaths()
		if err != nil {
			return err
		}
		dir = paths.suggestionsDir
	}
	dir = expandHomePath(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create deck export dir %q: %w", dir, err)
	}
	for _, name := range suggestionDeckNames {
		content, err := readEmbeddedDeck(name)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	fmt.Printf("Exported %d suggestion decks to %s\n", len(suggestionDeckNames), dir)
	return nil
}

func showActiveDeck(name, overrideDir string) error {
	normalized, err := normalizeDeckName(name)
	if err != nil {
		return err
	}
	content, source, err := loadDeckContent(normalized, overrideDir)
	if err != nil {
		return err
	}
	if source.kind == "filesystem" {
		fmt.Printf("# Source: %s\n\n", source.path)
	} else {
		fmt.Printf("# Source: embedded (%s)\n\n", normalized)
	}
	fmt.Print(content)
	if !strings.HasSuffix(content, "\n") {
		fmt.Println()
	}
	return nil
}

func diffDeck(name, overrideDir string) error {
	normalized, err := normalizeDeckName(name)
	if err != nil {
		return err
	}
	embedded, err := readEmbeddedDeck(normalized)
	if err != nil {
		return err
	}
	content, source, err := loadDeckContent(normalized, overrideDir)
	if err != nil {
		return err
	}
	if source.kind != "filesystem" {
		fmt.Printf("%s has no override in %s\n", normalized, overrideDir)
		return nil
	}
	fmt.Print(buildUnifiedDiff("embedded/"+normalized, source.path, embedded, content))
	return nil
}

// loadSuggestionDeck reads each deck from overrideDir when present and from
// the embedded defaults otherwise.
func loadSuggestionDeck(overrideDir string) (suggestionDeck, error) {
	var deck suggestionDeck
	for _, name := range suggestionDeckNames {
		content, _, err := loadDeckContent(name, overrideDir)
		if err != nil {
			return suggestionDeck{}, err
		}
		lines := parseDeckLines(content)
		switch name {
		case "openers.txt":
			deck.openers = lines
		case "continuations.txt":
			deck.continuations = lines
		case "endings.txt":
			deck.endings = lines
		}
	}
	return deck, nil
}

func loadDeckContent(name, overrideDir string) (string, deckSource, error) {
	if strings.TrimSpace(overrideDir) != "" {
		path := filepath.Join(expandHomePath(overrideDir), name)
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), deckSource{name: name, kind: "filesystem", path: path}, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", deckSource{}, fmt.Errorf("read suggestion deck %s: %w", path, err)
		}
	}
	content, err := readEmbeddedDeck(name)
	if err != nil {
		return "", deckSource{}, err
	}
	return content, deckSource{name: name, kind: "embedded", path: "suggestions/" + name}, nil
}

func readEmbeddedDeck(name string) (string, error) {
	normalized, err := normalizeDeckName(name)
	if err != nil {
		return "", err
	}
	data, err := defaultSuggestionFS.ReadFile("suggestions/" + normalized)
	if err != nil {
		return "", fmt.Errorf("read embedded suggestion deck %s: %w", normalized, err)
	}
	return string(data), nil
}

func normalizeDeckName(name string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	if trimmed == "" {
		return "", fmt.Errorf("deck name is required")
	}
	if !strings.HasSuffix(trimmed, ".txt") {
		trimmed += ".txt"
	}
	if slices.Contains(suggestionDeckNames, trimmed) {
		return trimmed, nil
	}
	return "", fmt.Errorf("unknown suggestion deck %q", name)
}

func parseDeckLines(content string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// suggester picks candidate next sentences from a deck.
type suggester struct {
	deck  suggestionDeck
	count int
	rng   *rand.Rand
}

func newSuggester(deck suggestionDeck, count int, rng *rand.Rand) *suggester {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &suggester{deck: deck, count: max(1, count), rng: rng}
}

// next returns options for the sentence after path. When the story may end,
// the end marker leads the list and one closing sentence is mixed in.
func (s *suggester) next(path []string, canEnd bool) []string {
	pool := s.deck.continuations
	if len(path) == 0 {
		pool = s.deck.openers
	}
	used := make(map[string]bool, len(path))
	for _, line := range path {
		used[line] = true
	}

	options := s.sample(pool, used, s.count)
	if canEnd && len(path) > 0 {
		if len(options) >= s.count && len(options) > 0 {
			options = options[:len(options)-1]
		}
		options = append(options, s.sample(s.deck.endings, used, 1)...)
		options = append([]string{storytree.EndMarker}, options...)
	}
	return options
}

// followUp returns one continuation suitable for extending an alternative.
func (s *suggester) followUp(path []string) (string, bool) {
	used := make(map[string]bool, len(path))
	for _, line := range path {
		used[line] = true
	}
	picked := s.sample(s.deck.continuations, used, 1)
	if len(picked) == 0 {
		return "", false
	}
	return picked[0], true
}

func (s *suggester) sample(pool []string, used map[string]bool, n int) []string {
	candidates := make([]string, 0, len(pool))
	for _, line := range pool {
		if !used[line] {
			candidates = append(candidates, line)
		}
	}
	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
