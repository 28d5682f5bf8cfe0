package generate

import (
	"strings"

	"github.com/ctxpack/ctxpack/internal/domain"
)

// Tree renders the hierarchy of refs as an indented directory listing.
func (g *Generator) Tree(roots []*domain.ResourceRef) string {
	var sb strings.Builder
	for i, root := range roots {
		renderNode(&sb, root, "", i == len(roots)-1, len(roots) == 1)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderNode(sb *strings.Builder, ref *domain.ResourceRef, prefix string, last, only bool) {
	label := ref.DisplayName
	if label == "" {
		label = domain.DisplayName(ref.Location)
	}
	if ref.Stale {
		label += " [stale]"
	}

	if prefix == "" && only {
		// A single root renders without connectors.
		sb.WriteString(label)
		sb.WriteByte('\n')
		for i, child := range ref.Children {
			renderNode(sb, child, "", i == len(ref.Children)-1, false)
		}
		return
	}

	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}
	sb.WriteString(prefix)
	sb.WriteString(connector)
	sb.WriteString(label)
	sb.WriteByte('\n')

	for i, child := range ref.Children {
		renderNode(sb, child, childPrefix, i == len(ref.Children)-1, false)
	}
}
