package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/usestring/formsense/internal/cache"
	"github.com/usestring/formsense/internal/config"
	"github.com/usestring/formsense/internal/logging"
	"github.com/usestring/formsense/internal/mcp/tools"
	"github.com/usestring/formsense/internal/store"
	"github.com/usestring/formsense/pkg/types"
)

// session holds what every command needs. close releases it.
type session struct {
	deps  *tools.Deps
	close func()
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.Bool("verbose") {
		cfg.Verbose = true
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}

	logCleanup, err := logging.Setup(cfg.LoggingConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}

	suggestionCache, err := cache.NewSuggestionCache(cfg.CacheMaxItems)
	if err != nil {
		_ = logCleanup()
		return nil, fmt.Errorf("failed to create suggestion cache: %w", err)
	}

	var st *store.Store
	if !c.Bool("no-store") {
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			_ = logCleanup()
			return nil, fmt.Errorf("failed to open backend store: %w", err)
		}
	}

	return &session{
		deps: tools.NewDeps(cfg, suggestionCache, st),
		close: func() {
			if st != nil {
				_ = st.Close()
			}
			_ = logCleanup()
		},
	}, nil
}

func DiscoverAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	_, out, err := tools.ToolDiscoverBackends(s.deps)(c.Context, nil, tools.DiscoverBackendsInput{
		CustomHost:      c.String("custom-host"),
		CustomPort:      c.Int("custom-port"),
		CustomKind:      c.String("custom-kind"),
		OllamaPorts:     c.IntSlice("ollama-port"),
		LMStudioPorts:   c.IntSlice("lmstudio-port"),
		IncludeAttempts: c.Bool("attempts"),
	})
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, out)
}

func CheckAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one backend kind (ollama or lmstudio)")
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	_, out, err := tools.ToolCheckBackend(s.deps)(c.Context, nil, tools.CheckBackendInput{
		Kind: c.Args().First(),
		Host: c.String("host"),
		Port: c.Int("port"),
	})
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, out)
}

func AnalyzeAction(c *cli.Context) error {
	html, err := readInput(c.Args().First())
	if err != nil {
		return err
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	_, out, err := tools.ToolAnalyzeForm(s.deps)(c.Context, nil, tools.AnalyzeFormInput{FormHTML: string(html)})
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, out)
}

func ClassifyAction(c *cli.Context) error {
	html, err := readInput(c.Args().First())
	if err != nil {
		return err
	}

	var fields []types.FieldDescriptor
	if path := c.String("fields"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading fields: %w", err)
		}
		if fields, err = decodeList[types.FieldDescriptor](data, "fields"); err != nil {
			return fmt.Errorf("decoding fields: %w", err)
		}
	}

	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	_, out, err := tools.ToolClassifyFields(s.deps)(c.Context, nil, tools.ClassifyFieldsInput{
		FormHTML:               string(html),
		Fields:                 fields,
		PageTitle:              c.String("page-title"),
		PageURL:                c.String("page-url"),
		Company:                c.String("company"),
		BackendKind:            c.String("backend-kind"),
		BackendHost:            c.String("backend-host"),
		BackendPort:            c.Int("backend-port"),
		BatchSize:              c.Int("batch-size"),
		AllFields:              c.Bool("all"),
		LowConfidenceThreshold: c.Float64("threshold"),
		Concise:                c.Bool("concise"),
		Merge:                  c.Bool("merge"),
	})
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, out)
}

func MergeAction(c *cli.Context) error {
	fieldData, err := os.ReadFile(c.String("fields"))
	if err != nil {
		return fmt.Errorf("reading fields: %w", err)
	}
	fields, err := decodeList[tools.MergeField](fieldData, "fields")
	if err != nil {
		return fmt.Errorf("decoding fields: %w", err)
	}

	suggestionData, err := os.ReadFile(c.String("suggestions"))
	if err != nil {
		return fmt.Errorf("reading suggestions: %w", err)
	}
	suggestions, err := decodeList[types.Suggestion](suggestionData, "suggestions")
	if err != nil {
		return fmt.Errorf("decoding suggestions: %w", err)
	}

	var prefs map[string]bool
	if rejected := c.StringSlice("reject"); len(rejected) > 0 {
		prefs = make(map[string]bool, len(rejected))
		for _, name := range rejected {
			prefs[name] = false
		}
	}

	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	_, out, err := tools.ToolMergeSuggestions(s.deps)(c.Context, nil, tools.MergeSuggestionsInput{
		Fields:       fields,
		Suggestions:  suggestions,
		Preferences:  prefs,
		BoostDivisor: c.Float64("boost-divisor"),
	})
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, out)
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// decodeList accepts either a bare JSON array or an object holding the array
// under key, so one command's output can be piped into the next.
func decodeList[T any](data []byte, key string) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	raw, ok := wrapper[key]
	if !ok {
		return nil, fmt.Errorf("expected an array or an object with %q", key)
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
