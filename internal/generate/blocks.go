// Package generate produces derived artifacts from session scopes.
package generate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
)

// Generator renders artifacts over resource refs. The exclude
// predicate, when set, filters leaf locations out of block output.
type Generator struct {
	reader  ports.ContentReader
	exclude func(location string) bool
}

// New creates a generator. exclude may be nil.
func New(reader ports.ContentReader, exclude func(string) bool) *Generator {
	return &Generator{reader: reader, exclude: exclude}
}

// Blocks concatenates the content of every leaf ref into fenced code
// blocks, one per file, headed by its location. Unreadable files are
// reported inline so one bad entry never aborts the artifact.
func (g *Generator) Blocks(ctx context.Context, refs []*domain.ResourceRef) (string, error) {
	var sb strings.Builder
	for _, ref := range refs {
		if ref.IsContainer {
			continue
		}
		if g.exclude != nil && g.exclude(ref.Location) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		sb.WriteString(ref.Location)
		sb.WriteByte('\n')

		text, err := g.reader.ReadText(ctx, ref.Location)
		if err != nil {
			sb.WriteString(fmt.Sprintf("[unreadable: %s]\n\n", readFailure(err)))
			continue
		}

		sb.WriteString("```")
		sb.WriteString(languageTag(ref.Location))
		sb.WriteByte('\n')
		sb.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString("```\n\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// readFailure maps read errors to short inline reasons.
func readFailure(err error) string {
	switch {
	case errors.Is(err, domain.ErrFileTooLarge):
		return "file too large"
	case errors.Is(err, domain.ErrBinaryContent):
		return "binary content"
	case errors.Is(err, domain.ErrInvalidLocation):
		return "not a readable file"
	default:
		return err.Error()
	}
}

// languageTag picks a fence language from the file extension.
func languageTag(location string) string {
	ext := strings.ToLower(filepath.Ext(location))
	switch ext {
	case ".go":
		return "go"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".sh", ".bash":
		return "bash"
	case ".md":
		return "markdown"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".sql":
		return "sql"
	case ".html":
		return "html"
	case ".css":
		return "css"
	case ".xml":
		return "xml"
	default:
		return ""
	}
}
