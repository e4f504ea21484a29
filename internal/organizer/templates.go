package organizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/osteele/liquid"

	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Reply templates.
 *
 * reply_with_template names a template by id. The template is the Liquid
 * file <dir>/<id>.liquid, rendered with the record fields as bindings:
 *
 *   Hi {{ from_name | default: "there" }}, re: {{ subject }}
 *
 * Parsed templates are cached by id for the life of the Templates value.
 * The rendered reply is logged, never sent.
 */

// TemplateExt is the file extension of reply templates.
const TemplateExt = ".liquid"

// previewLen bounds the rendered body written to the log.
const previewLen = 200

// Templates renders reply templates from a directory.
type Templates struct {
	dir    string
	engine *liquid.Engine
	cache  sync.Map // id -> *liquid.Template
}

// NewTemplates returns Templates reading from dir.
func NewTemplates(dir string) *Templates {
	return &Templates{dir: dir, engine: liquid.NewEngine()}
}

// Render renders template id with record as bindings.
func (t *Templates) Render(id string, record types.Record) (string, error) {
	tpl, err := t.load(id)
	if err != nil {
		return "", err
	}
	out, renderErr := tpl.RenderString(liquid.Bindings(record))
	if renderErr != nil {
		return "", fmt.Errorf("failed to render template %s: %w", id, renderErr)
	}
	return out, nil
}

func (t *Templates) load(id string) (*liquid.Template, error) {
	if cached, ok := t.cache.Load(id); ok {
		return cached.(*liquid.Template), nil
	}
	if id == "" || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("invalid template id %q", id)
	}

	src, err := os.ReadFile(filepath.Join(t.dir, id+TemplateExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrTemplateNotFound, id)
		}
		return nil, fmt.Errorf("failed to read template %s: %w", id, err)
	}
	tpl, parseErr := t.engine.ParseTemplate(src)
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", id, parseErr)
	}
	t.cache.Store(id, tpl)
	return tpl, nil
}

// ReplyHandler handles reply_with_template by rendering the named template.
// A missing or broken template marks the action as not applied.
func ReplyHandler(templates *Templates, logger *slog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, record types.Record, action types.Action) error {
		id, ok := action.Param("template_id")
		if !ok {
			return fmt.Errorf("%s: %w: %q", action.Type, types.ErrMissingParameter, "template_id")
		}
		body, err := templates.Render(id, record)
		if err != nil {
			return fmt.Errorf("%s: %w", action.Type, err)
		}
		logger.InfoContext(ctx, "simulating reply with template",
			"subject", record.Subject(),
			"to", record["from"],
			"template", id,
			"body", preview(body),
		)
		return nil
	})
}

// preview cuts s to at most previewLen bytes on a rune boundary.
func preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
