// Package prompts holds the LLM prompt templates. Templates live in embedded
// JSON files, one object of named text/template sources per file.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed *.json
var promptFiles embed.FS

var (
	cache   = make(map[string]*template.Template)
	cacheMu sync.Mutex
)

// Render executes the template key from filename with data.
func Render(filename, key string, data any) (string, error) {
	tmpl, err := lookup(filename, key)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s/%s: %w", filename, key, err)
	}
	return sb.String(), nil
}

// lookup parses filename on first use and returns the named template.
func lookup(filename, key string) (*template.Template, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	root, ok := cache[filename]
	if !ok {
		data, err := promptFiles.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
		}
		var sources map[string]string
		if err := json.Unmarshal(data, &sources); err != nil {
			return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
		}
		root = template.New(filename).Option("missingkey=error")
		for name, src := range sources {
			if _, err := root.New(name).Parse(src); err != nil {
				return nil, fmt.Errorf("failed to parse prompt %s/%s: %w", filename, name, err)
			}
		}
		cache[filename] = root
	}

	tmpl := root.Lookup(key)
	if tmpl == nil {
		return nil, fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return tmpl, nil
}
