package artifacts

import (
	"context"
	"log/slog"

	"github.com/rendis/pathway/internal/diagram"
	"github.com/rendis/pathway/internal/logging"
	"github.com/rendis/pathway/internal/validation"
	"github.com/rendis/pathway/pkg/schema"
)

// DiagramKind returns the artifact kind for a diagram format.
func DiagramKind(f diagram.Format) string {
	return "diagram/" + string(f)
}

// Renderer produces diagram artifacts through a Cache. Lookups always use the
// hash of the graph passed in, so a replaced graph never sees a stale render.
type Renderer struct {
	cache  Cache
	logger *slog.Logger
}

// NewRenderer creates a Renderer over cache. A nil cache uses a MemoryCache.
func NewRenderer(cache Cache, logger *slog.Logger) *Renderer {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Renderer{cache: cache, logger: logging.OrDefault(logger)}
}

// Cache returns the underlying cache.
func (r *Renderer) Cache() Cache {
	return r.cache
}

// Diagram returns g rendered in format f, from cache when available.
// Validation findings are overlaid on the rendering.
func (r *Renderer) Diagram(ctx context.Context, g *schema.Graph, title string, f diagram.Format) ([]byte, error) {
	log := logging.LogWith(ctx, r.logger)
	key := Key{Hash: g.ContentHash(), Kind: DiagramKind(f)}
	if title != "" {
		key.Kind += "/" + title
	}

	if data, ok, err := r.cache.Get(ctx, key); err != nil {
		log.Warn("artifact cache read failed", "key", key.String(), "error", err)
	} else if ok {
		return data, nil
	}

	model, err := diagram.Build(g, title, validation.Validate(g))
	if err != nil {
		return nil, err
	}
	data, err := diagram.Render(ctx, model, f)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Put(ctx, key, data); err != nil {
		log.Warn("artifact cache write failed", "key", key.String(), "error", err)
	}
	return data, nil
}

// Invalidate drops every artifact derived from g.
func (r *Renderer) Invalidate(ctx context.Context, g *schema.Graph) error {
	if g.Len() == 0 {
		return nil
	}
	return r.cache.Invalidate(ctx, g.ContentHash())
}
