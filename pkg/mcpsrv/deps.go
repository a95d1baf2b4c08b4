package mcpsrv

import (
	"context"

	"github.com/usestring/formsense/internal/cache"
	"github.com/usestring/formsense/internal/config"
	"github.com/usestring/formsense/internal/mcp/tools"
	"github.com/usestring/formsense/internal/store"
	"github.com/usestring/formsense/pkg/classify"
	"github.com/usestring/formsense/pkg/discovery"
)

// Deps contains all dependencies available to custom tools.
// This gives custom tools access to the same infrastructure as builtin tools.
type Deps struct {
	Config     *config.Config
	Discoverer *discovery.Discoverer
	Cache      *cache.SuggestionCache
	// Store is nil when persistence is disabled.
	Store *store.Store

	tools *tools.Deps
}

// Classifier resolves a backend the way formsense_classify_fields does and
// returns its shared classifier. An empty host selects the recorded or
// discovered backend.
func (d *Deps) Classifier(ctx context.Context, kind, host string, port int) (*classify.Classifier, error) {
	b, err := d.tools.ResolveBackend(ctx, kind, host, port)
	if err != nil {
		return nil, err
	}
	return d.tools.Classifier(b)
}
