// Package slides converts uploaded presentation files into per-page images
// and stores them through an object uploader so clients can fetch slides by
// URL.
package slides

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Page is a single rasterized page. Number starts at 1.
type Page struct {
	Number int
	PNG    []byte
}

// Rasterizer renders a PDF document into one PNG image per page.
type Rasterizer interface {
	Render(ctx context.Context, pdf []byte) ([]Page, error)
}

// CommandRasterizer shells out to a pdftoppm-compatible binary. The binary is
// invoked as `<binary> -png -r <dpi> <input.pdf> <output-prefix>` and is
// expected to write files named `<output-prefix>-<page>.png`.
type CommandRasterizer struct {
	Binary string
	DPI    int
}

func (r CommandRasterizer) Render(ctx context.Context, pdf []byte) ([]Page, error) {
	binary := r.Binary
	if binary == "" {
		binary = "pdftoppm"
	}
	dpi := r.DPI
	if dpi <= 0 {
		dpi = 150
	}

	dir, err := os.MkdirTemp("", "slides-render-*")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write render input: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, binary, "-png", "-r", strconv.Itoa(dpi), input, prefix)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("rasterize pdf: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return collectPages(dir, "page")
}

func collectPages(dir, prefix string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read render dir: %w", err)
	}

	pages := make([]Page, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		numberPart := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), ".png")
		number, err := strconv.Atoi(numberPart)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read rendered page %s: %w", name, err)
		}
		pages = append(pages, Page{Number: number, PNG: data})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("rasterizer produced no pages")
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}
