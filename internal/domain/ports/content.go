package ports

import "context"

// ContentReader reads the current text content of a resource. The core
// never assumes content is pre-loaded; artifact generation re-reads
// live content on every request.
type ContentReader interface {
	// ReadText returns the text content at location. It fails with a
	// not-found error for vanished resources and refuses binary or
	// oversized content.
	ReadText(ctx context.Context, location string) (string, error)
}
