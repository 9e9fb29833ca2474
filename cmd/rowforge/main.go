// Command rowforge is the CLI entry point: map and filter drive one
// Invocation of the scripted row-transformation engine over a CSV file;
// count and lookups are small self-contained introspection subcommands
// that double as targets of the script-level cmd() host function
// (spec.md §4.7's "invokes this same program's own subcommands").
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"rowforge/internal/cliutil"
	"rowforge/internal/config"
	"rowforge/internal/engine"
	"rowforge/internal/logging"
	"rowforge/internal/lookup"
	"rowforge/internal/output"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	table := map[string]cliutil.Command{
		"map": {
			Usage:       "map <new-col-spec> <script-or-file> [flags] <input.csv>",
			Description: "append or replace columns via a scripted per-row transform",
			Execute:     runMap,
		},
		"filter": {
			Usage:       "filter <script-or-file> [flags] <input.csv>",
			Description: "retain rows for which the script returns truthy",
			Execute:     runFilter,
		},
		"count": {
			Usage:       "count <input.csv>",
			Description: "print the data row count and a per-column non-empty tally",
			Execute:     runCount,
		},
		"lookups": {
			Usage:       "lookups",
			Description: "list every lookup ever registered, from the durable Postgres catalogue (requires ROWFORGE_POSTGRES_DSN)",
			Execute:     runLookups,
		},
		"help": {
			Usage:       "help",
			Description: "show this help message",
			Execute: func([]string) error {
				cliutil.PrintUsage(os.Stdout, table)
				return nil
			},
		},
	}
	if err := cliutil.Dispatch(os.Stdout, table, args); err != nil {
		fmt.Fprintf(os.Stderr, "<ERROR> %v\n", err)
		return 1
	}
	return 0
}

// flagSpec describes the flags shared by map and filter (spec.md §6).
type flagSpec struct {
	begin, end, ckanAPI                  string
	delimiter                            rune
	remap, noHeaders, colIndex, noGlobal bool
	positional                           []string
}

func parseFlags(args []string) (flagSpec, error) {
	var fs flagSpec
	for i := 0; i < len(args); i++ {
		a := args[i]
		takeValue := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires a value", a)
			}
			return args[i], nil
		}
		switch a {
		case "--begin":
			v, err := takeValue()
			if err != nil {
				return fs, err
			}
			fs.begin = v
		case "--end":
			v, err := takeValue()
			if err != nil {
				return fs, err
			}
			fs.end = v
		case "--ckan-api":
			v, err := takeValue()
			if err != nil {
				return fs, err
			}
			fs.ckanAPI = v
		case "--delimiter":
			v, err := takeValue()
			if err != nil {
				return fs, err
			}
			r := []rune(v)
			if len(r) != 1 {
				return fs, fmt.Errorf("--delimiter must be a single character, got %q", v)
			}
			fs.delimiter = r[0]
		case "--remap":
			fs.remap = true
		case "--no-headers":
			fs.noHeaders = true
		case "--colindex":
			fs.colIndex = true
		case "--no-globals":
			fs.noGlobal = true
		default:
			fs.positional = append(fs.positional, a)
		}
	}
	return fs, nil
}

func runMap(args []string) error {
	fs, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(fs.positional) < 3 {
		return fmt.Errorf("map requires <new-col-spec> <script-or-file> <input.csv>")
	}
	newColSpec, mainScript, inputPath := fs.positional[0], fs.positional[1], fs.positional[2]

	cfg := config.FromEnv()
	logger, err := logging.New(false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := engine.Options{
		Mode:        output.ModeMap,
		InputPath:   inputPath,
		NewColSpec:  newColSpec,
		MainScript:  mainScript,
		BeginScript: fs.begin,
		EndScript:   fs.end,
		Remap:       fs.remap,
		NoHeaders:   fs.noHeaders,
		ColIndex:    fs.colIndex,
		NoGlobals:   fs.noGlobal,
		CKANAPIBase: fs.ckanAPI,
		Comma:       fs.delimiter,
	}
	_, err = engine.Run(context.Background(), cfg, opts, os.Stdout, os.Stderr, logger)
	return err
}

func runFilter(args []string) error {
	fs, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(fs.positional) < 2 {
		return fmt.Errorf("filter requires <script-or-file> <input.csv>")
	}
	mainScript, inputPath := fs.positional[0], fs.positional[1]

	cfg := config.FromEnv()
	logger, err := logging.New(false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := engine.Options{
		Mode:        output.ModeFilter,
		InputPath:   inputPath,
		MainScript:  mainScript,
		BeginScript: fs.begin,
		EndScript:   fs.end,
		NoHeaders:   fs.noHeaders,
		Comma:       fs.delimiter,
	}
	_, err = engine.Run(context.Background(), cfg, opts, os.Stdout, os.Stderr, logger)
	return err
}

func runCount(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("count requires <input.csv>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", args[0], err)
	}

	nonEmpty := make([]int64, len(headers))
	var rows int64
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		rows++
		for i, cell := range rec {
			if i < len(nonEmpty) && cell != "" {
				nonEmpty[i]++
			}
		}
	}

	fmt.Printf("rows: %d\n", rows)
	table := cliutil.NewTableWriter(os.Stdout)
	table.SetHeader([]string{"column", "non_empty"})
	table.RightAlign(1)
	for i, h := range headers {
		table.Append([]string{h, fmt.Sprintf("%d", nonEmpty[i])})
	}
	table.Render()
	return nil
}

// runLookups lists the durable Postgres lookup catalogue (internal/lookup.
// PGCatalog) — the introspection path lookup.PGCatalog.Entries was always
// meant to back, alongside count, for the script's cmd() host function to
// shell out to.
func runLookups(args []string) error {
	cfg := config.FromEnv()
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("lookups requires ROWFORGE_POSTGRES_DSN to be set")
	}

	ctx := context.Background()
	catalog, err := lookup.OpenPGCatalog(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("opening lookup catalogue: %w", err)
	}
	defer catalog.Close()

	entries, err := catalog.Entries(ctx)
	if err != nil {
		return err
	}

	table := cliutil.NewTableWriter(os.Stdout)
	table.SetHeader([]string{"name", "source", "registered_at"})
	for _, e := range entries {
		table.Append([]string{e.Name, e.Source, e.RegisteredAt.Format("2006-01-02T15:04:05Z07:00")})
	}
	table.Render()
	return nil
}
