// Package engine ties the Script Preprocessor, Script Runtime, Special
// Variable Binder, Lookup/Resource Loader, host-function table, Stream
// Driver, and Output Writer together into one Invocation (spec.md §3),
// the single entry point both the `map` and `filter` CLI subcommands call.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"rowforge/internal/config"
	"rowforge/internal/hostlib"
	"rowforge/internal/lookup"
	"rowforge/internal/output"
	"rowforge/internal/preprocess"
	"rowforge/internal/record"
	"rowforge/internal/script"
	"rowforge/internal/stream"
	"rowforge/internal/subprocess"
	"rowforge/internal/svb"
)

// Options is the full set of knobs an Invocation needs, gathered from CLI
// flags (spec.md §6).
type Options struct {
	Mode         output.Mode
	InputPath    string
	NewColSpec   string // map mode only
	MainScript   string
	BeginScript  string
	EndScript    string
	Remap        bool
	NoHeaders    bool
	ColIndex     bool
	NoGlobals    bool
	CKANAPIBase  string
	Comma        rune
}

// Run executes one Invocation: CSV out to stdout, the end-of-stream
// report (and any break() message) to stderr. It returns the per-row
// "Luau errors encountered" count and any invocation-level error.
func Run(ctx context.Context, cfg config.Config, opts Options, stdout, stderr io.Writer, logger *zap.Logger) (int, error) {
	if opts.CKANAPIBase != "" {
		cfg.CKANAPIBase = opts.CKANAPIBase
	}

	src, err := record.Open(opts.InputPath, opts.NoHeaders, opts.Comma)
	if err != nil {
		return 0, fmt.Errorf("<ERROR> %w", err)
	}
	defer src.Close()

	source, err := preprocess.Load(opts.MainScript)
	if err != nil {
		return 0, fmt.Errorf("<ERROR> %w", err)
	}
	beginSrc, err := loadOptional(opts.BeginScript)
	if err != nil {
		return 0, fmt.Errorf("<ERROR> %w", err)
	}
	endSrc, err := loadOptional(opts.EndScript)
	if err != nil {
		return 0, fmt.Errorf("<ERROR> %w", err)
	}
	frags, err := preprocess.Parse(source, beginSrc, endSrc)
	if err != nil {
		return 0, fmt.Errorf("<ERROR> %w", err)
	}

	ow := output.New(stdout, opts.Mode, src.Headers(), opts.NewColSpec, opts.Remap)

	rt := script.New()
	defer rt.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}
	cache := lookup.NewCache(cfg.CacheDir, cfg.HTTPTimeout, rdb)
	loader := lookup.NewLoader(cache, cfg.CKANAPIBase, cfg.DatahereBase, cfg.MaxConcurrentFetches)

	selfPath, err := os.Executable()
	if err != nil {
		selfPath = os.Args[0]
	}
	runner := subprocess.New(selfPath)

	comma := byte(',')
	if opts.Comma != 0 {
		comma = byte(opts.Comma)
	}
	host := hostlib.New(ctx, loader, runner, logger, opts.InputPath, !opts.NoHeaders, comma)
	host.OW = ow
	host.DefaultMaxAge = cfg.DefaultMaxAgeSeconds

	if cfg.PostgresDSN != "" {
		catalog, catErr := lookup.OpenPGCatalog(ctx, cfg.PostgresDSN)
		if catErr != nil {
			if logger != nil {
				logger.Warn("postgres lookup catalogue unavailable", zap.Error(catErr))
			}
		} else {
			defer catalog.Close()
			host.Catalog = catalog
		}
	}

	host.RegisterAll(rt)

	svbOpts := svb.Options{NoGlobals: opts.NoGlobals, ColIndex: opts.ColIndex}

	driver, err := stream.New(rt, host, src, ow, svbOpts, opts.Mode, frags, stderr)
	if err != nil {
		return 0, fmt.Errorf("<ERROR> %w", err)
	}

	errCount, err := driver.Run()
	if err != nil {
		return errCount, fmt.Errorf("<ERROR> %w", err)
	}
	if errCount > 0 {
		fmt.Fprintf(stderr, "Luau errors encountered: %d\n", errCount)
	}
	return errCount, nil
}

func loadOptional(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return preprocess.Load(s)
}
