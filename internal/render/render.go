package render

import "context"

type Format string

const (
	FormatPDF Format = "pdf"
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

type Request struct {
	Code   string
	Format Format
}

// Result reports a render attempt. A compiler rejection (bad markup) is a
// Result with Success=false, not an error; errors are reserved for the
// runner itself failing (scratch dir, missing binary).
type Result struct {
	Success  bool
	Pages    []string // base64, one entry per page for paged formats
	Data     string   // base64, single-blob formats (pdf)
	MimeType string
	Error    string
}

// Renderer turns markup into rendered output. Implementations may be slow
// (seconds); callers decide how cancellation propagates.
type Renderer interface {
	Render(ctx context.Context, req Request) (Result, error)
}
