package pipeline

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"tailor/internal/services"
)

const minCoverLetterWords = 20

//go:embed render_schema.json
var renderSchemaJSON []byte

var renderSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("render_schema.json", bytes.NewReader(renderSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("render_schema.json")
})

// RenderManifest is the output of the render stage.
type RenderManifest struct {
	Format    string           `json:"format"`
	Documents []RenderDocument `json:"documents"`
}

// RenderDocument is one rendered file, relative to the stage directory.
type RenderDocument struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func invalidOutput(message string) error {
	return services.Wrap(services.ErrValidation, "", "validate output", message, nil)
}

func invalidOutputf(format string, args ...any) error {
	return invalidOutput(fmt.Sprintf(format, args...))
}

// SplitFrontMatter separates an optional leading YAML block from a Markdown
// document. The frontmatter must decode to a mapping.
func SplitFrontMatter(content []byte) (map[string]any, string, error) {
	normalized := strings.ReplaceAll(string(content), "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return nil, normalized, nil
	}
	rest := normalized[len("---\n"):]
	var meta, body string
	if strings.HasPrefix(rest, "---\n") || rest == "---" {
		body = strings.TrimPrefix(strings.TrimPrefix(rest, "---"), "\n")
	} else {
		idx := strings.Index(rest, "\n---\n")
		switch {
		case idx >= 0:
			meta, body = rest[:idx], rest[idx+len("\n---\n"):]
		case strings.HasSuffix(rest, "\n---"):
			meta = strings.TrimSuffix(rest, "\n---")
		default:
			return nil, "", invalidOutput("frontmatter is not closed")
		}
	}
	fields := map[string]any{}
	if err := yaml.Unmarshal([]byte(meta), &fields); err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "", "validate output", "frontmatter is not a YAML mapping", err)
	}
	return fields, body, nil
}

func validateMarkdown(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", invalidOutput("output is not valid UTF-8")
	}
	_, body, err := SplitFrontMatter(content)
	if err != nil {
		return "", err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", invalidOutput("output body is empty")
	}
	return body, nil
}

// ParseRenderManifest decodes and validates a render manifest.
func ParseRenderManifest(content []byte) (RenderManifest, error) {
	if err := validateRenderManifest(content); err != nil {
		return RenderManifest{}, err
	}
	var manifest RenderManifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		return RenderManifest{}, services.Wrap(services.ErrValidation, "", "validate output", "decode manifest", err)
	}
	return manifest, nil
}

func validateRenderManifest(content []byte) error {
	schema, err := renderSchema()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, StageRender, "compile schema", "", err)
	}
	var doc any
	if err := json.Unmarshal(content, &doc); err != nil {
		return services.Wrap(services.ErrValidation, "", "validate output", "manifest is not JSON", err)
	}
	if err := schema.Validate(doc); err != nil {
		return services.Wrap(services.ErrValidation, "", "validate output", "manifest does not match schema", err)
	}
	var manifest RenderManifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		return services.Wrap(services.ErrValidation, "", "validate output", "decode manifest", err)
	}
	seen := make(map[string]struct{}, len(manifest.Documents))
	for _, doc := range manifest.Documents {
		for _, segment := range strings.Split(doc.Path, "/") {
			if segment == ".." || segment == "." || segment == "" {
				return invalidOutputf("document %q path %q escapes the stage directory", doc.Name, doc.Path)
			}
		}
		if _, dup := seen[doc.Name]; dup {
			return invalidOutputf("document %q listed twice", doc.Name)
		}
		seen[doc.Name] = struct{}{}
	}
	return nil
}
