package session

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ctxpack/ctxpack/internal/domain"
)

// ExportDoc is the yaml document shape for session sharing.
type ExportDoc struct {
	Name    string       `yaml:"name"`
	Entries []ExportNode `yaml:"entries"`
}

// ExportNode mirrors one tree entry.
type ExportNode struct {
	Location  string       `yaml:"location"`
	Container bool         `yaml:"container,omitempty"`
	Children  []ExportNode `yaml:"children,omitempty"`
}

// ExportYAML renders the session's tree as a shareable yaml document.
func (sess *Session) ExportYAML() ([]byte, error) {
	sess.mu.Lock()
	doc := ExportDoc{
		Name:    sess.Name,
		Entries: exportNodes(sess.tree.Roots()),
	}
	sess.mu.Unlock()

	return yaml.Marshal(&doc)
}

func exportNodes(refs []*domain.ResourceRef) []ExportNode {
	out := make([]ExportNode, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ExportNode{
			Location:  ref.Location,
			Container: ref.IsContainer,
			Children:  exportNodes(ref.Children),
		})
	}
	return out
}

// ImportYAML creates a new session from an exported document. The name
// may be overridden; an empty override keeps the document's name.
func (s *Store) ImportYAML(data []byte, nameOverride string) (*Session, error) {
	var doc ExportDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse session document: %w", err)
	}

	name := doc.Name
	if nameOverride != "" {
		name = nameOverride
	}

	sess, err := s.Create(name)
	if err != nil {
		return nil, err
	}
	if _, _, err := sess.Insert(RootLocation, importNodes(doc.Entries), nil); err != nil {
		return nil, err
	}
	return sess, nil
}

func importNodes(nodes []ExportNode) []*domain.ResourceRef {
	out := make([]*domain.ResourceRef, 0, len(nodes))
	for _, node := range nodes {
		var ref *domain.ResourceRef
		if node.Container || len(node.Children) > 0 {
			ref = domain.NewContainerRef(node.Location)
			ref.Children = importNodes(node.Children)
		} else {
			ref = domain.NewFileRef(node.Location)
		}
		out = append(out, ref)
	}
	return out
}
