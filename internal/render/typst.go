package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// TypstRenderer shells out to the typst CLI for every render request.
type TypstRenderer struct {
	binPath    string
	scratchDir string
}

func NewTypst(bin, scratchDir string) (*TypstRenderer, error) {
	binPath, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("typst not found in PATH: %w", err)
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure scratch dir: %w", err)
	}
	log.Printf("📄 Typst renderer ready (%s)", binPath)
	return &TypstRenderer{binPath: binPath, scratchDir: scratchDir}, nil
}

// ScratchDir exposes the scratch location for the cleanup job.
func (r *TypstRenderer) ScratchDir() string { return r.scratchDir }

func (r *TypstRenderer) Render(ctx context.Context, req Request) (Result, error) {
	dir, err := os.MkdirTemp(r.scratchDir, "render-")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			// leftovers are swept by the cleanup job
			log.Printf("failed to remove scratch dir %s: %v", dir, err)
		}
	}()

	src := filepath.Join(dir, "main.typ")
	if err := os.WriteFile(src, []byte(req.Code), 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write source: %w", err)
	}

	var outPattern string
	switch req.Format {
	case FormatPNG:
		outPattern = filepath.Join(dir, "page-{n}.png")
	case FormatSVG:
		outPattern = filepath.Join(dir, "page-{n}.svg")
	case FormatPDF:
		outPattern = filepath.Join(dir, "out.pdf")
	default:
		return Result{}, fmt.Errorf("unsupported format: %s", req.Format)
	}

	cmd := exec.CommandContext(ctx, r.binPath, "compile", src, outPattern)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// Compiler rejected the document: business failure, not an error.
			return Result{Success: false, Error: compilerMessage(stderr.String())}, nil
		}
		return Result{}, fmt.Errorf("failed to run typst: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		data, err := os.ReadFile(filepath.Join(dir, "out.pdf"))
		if err != nil {
			return Result{}, fmt.Errorf("failed to read pdf output: %w", err)
		}
		return Result{
			Success:  true,
			Data:     base64.StdEncoding.EncodeToString(data),
			MimeType: "application/pdf",
		}, nil
	default:
		pages, err := collectPages(dir, string(req.Format))
		if err != nil {
			return Result{}, err
		}
		mime := "image/png"
		if req.Format == FormatSVG {
			mime = "image/svg+xml"
		}
		return Result{Success: true, Pages: pages, MimeType: mime}, nil
	}
}

// collectPages reads page-N.<ext> files in page order. Order comes from the
// numeric suffix typst substitutes for {n}, not from lexical file order
// (page-10 must follow page-9).
func collectPages(dir, ext string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*."+ext))
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("compiler produced no pages")
	}
	sort.Slice(matches, func(i, j int) bool {
		return pageIndex(matches[i]) < pageIndex(matches[j])
	})
	pages := make([]string, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %s: %w", m, err)
		}
		pages = append(pages, base64.StdEncoding.EncodeToString(data))
	}
	return pages, nil
}

// pageIndex parses the numeric suffix out of page-<n>.<ext>.
func pageIndex(path string) int {
	base := filepath.Base(path)
	base = strings.TrimPrefix(base, "page-")
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	n, err := strconv.Atoi(base)
	if err != nil {
		return 0
	}
	return n
}

// compilerMessage trims typst stderr down to something fit for the client.
func compilerMessage(stderr string) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return "compilation failed"
	}
	return msg
}
