// Package templates loads the built-in StackTemplate catalogue (spec
// §6 "Stack template identity") from embedded YAML fixtures into an
// immutable in-memory registry, the way internal/assets embeds the
// tvarr frontend's static directory at compile time. Templates are
// read-only after startup; there is no runtime template-editing
// surface in this spec.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/commercestack/internal/pipelinecore"
)

//go:embed catalogue/*.yaml
var builtinFS embed.FS

// Catalogue is an immutable, read-mostly set of StackTemplates keyed
// by id. It implements internal/job.TemplateResolver.
type Catalogue struct {
	templates map[string]pipelinecore.StackTemplate
}

// NewBuiltin loads the catalogue embedded at compile time.
func NewBuiltin() (*Catalogue, error) {
	return loadFS(builtinFS, "catalogue")
}

// LoadDir loads a catalogue from *.yaml files in dir on the host
// filesystem, for operators who want to add or override templates
// without a rebuild.
func LoadDir(dir string) (*Catalogue, error) {
	return loadFS(osDirFS(dir), ".")
}

func loadFS(fsys fs.FS, dir string) (*Catalogue, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("templates: read catalogue dir: %w", err)
	}

	c := &Catalogue{templates: make(map[string]pipelinecore.StackTemplate, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("templates: read %s: %w", entry.Name(), err)
		}
		var tmpl pipelinecore.StackTemplate
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("templates: parse %s: %w", entry.Name(), err)
		}
		if tmpl.ID == "" {
			return nil, fmt.Errorf("templates: %s: missing id", entry.Name())
		}
		if _, dup := c.templates[tmpl.ID]; dup {
			return nil, fmt.Errorf("templates: duplicate id %q", tmpl.ID)
		}
		c.templates[tmpl.ID] = tmpl
	}
	return c, nil
}

// Resolve looks up a template by id.
func (c *Catalogue) Resolve(id string) (pipelinecore.StackTemplate, bool) {
	t, ok := c.templates[id]
	return t, ok
}

// List returns every template, sorted by id, for the stacks listing
// endpoint.
func (c *Catalogue) List() []pipelinecore.StackTemplate {
	out := make([]pipelinecore.StackTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Merge overlays other's templates onto c, returning a new Catalogue;
// entries in other take precedence, letting an operator-supplied
// directory override or extend the built-in set.
func (c *Catalogue) Merge(other *Catalogue) *Catalogue {
	merged := &Catalogue{templates: make(map[string]pipelinecore.StackTemplate, len(c.templates)+len(other.templates))}
	for id, t := range c.templates {
		merged.templates[id] = t
	}
	for id, t := range other.templates {
		merged.templates[id] = t
	}
	return merged
}
