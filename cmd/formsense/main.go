package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "formsense",
		Usage: "classify web form fields with pattern heuristics and a local model",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (overrides LOG_LEVEL)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log every probe attempt and chunk"},
			&cli.StringFlag{Name: "db", Usage: "backend health database (overrides FORMSENSE_DB_PATH)"},
			&cli.BoolFlag{Name: "no-store", Usage: "do not read or record backend health"},
		},
		Commands: []*cli.Command{
			{
				Name:   "discover",
				Usage:  "scan for a local inference server",
				Action: DiscoverAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "custom-host", Usage: "host checked before localhost"},
					&cli.IntFlag{Name: "custom-port", Usage: "port of the custom host"},
					&cli.StringFlag{Name: "custom-kind", Usage: "ollama or lmstudio"},
					&cli.IntSliceFlag{Name: "ollama-port", Usage: "localhost port scanned for ollama (repeatable)"},
					&cli.IntSliceFlag{Name: "lmstudio-port", Usage: "localhost port scanned for lmstudio (repeatable)"},
					&cli.BoolFlag{Name: "attempts", Usage: "include the per-path probe log"},
				},
			},
			{
				Name:      "check",
				Usage:     "health-check one backend",
				ArgsUsage: "<ollama|lmstudio>",
				Action:    CheckAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Value: "localhost"},
					&cli.IntFlag{Name: "port", Usage: "default: the kind's port"},
				},
			},
			{
				Name:      "analyze",
				Usage:     "classify form fields with pattern heuristics",
				ArgsUsage: "<form.html|->",
				Action:    AnalyzeAction,
			},
			{
				Name:      "classify",
				Usage:     "ask a local model for field type suggestions",
				ArgsUsage: "<form.html|->",
				Action:    ClassifyAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "fields", Usage: "JSON file of field descriptors (default: analyze the form)"},
					&cli.StringFlag{Name: "backend-kind", Usage: "ollama or lmstudio"},
					&cli.StringFlag{Name: "backend-host", Usage: "use this backend instead of the discovered one"},
					&cli.IntFlag{Name: "backend-port"},
					&cli.IntFlag{Name: "batch-size"},
					&cli.Float64Flag{Name: "threshold", Usage: "low-confidence threshold"},
					&cli.BoolFlag{Name: "all", Usage: "classify every field"},
					&cli.BoolFlag{Name: "concise", Usage: "use the short prompt"},
					&cli.BoolFlag{Name: "merge", Usage: "also print merged fields"},
					&cli.StringFlag{Name: "page-title"},
					&cli.StringFlag{Name: "page-url"},
					&cli.StringFlag{Name: "company"},
				},
			},
			{
				Name:   "merge",
				Usage:  "merge AI suggestions into pattern-classified fields",
				Action: MergeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "fields", Required: true, Usage: "JSON file of fields or merged fields"},
					&cli.StringFlag{Name: "suggestions", Required: true, Usage: "JSON file of suggestions, or a classify result"},
					&cli.StringSliceFlag{Name: "reject", Usage: "field name whose AI override is rejected (repeatable)"},
					&cli.Float64Flag{Name: "boost-divisor"},
				},
			},
		},
	}
}
