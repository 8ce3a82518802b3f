package slides

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCollectPagesSortsNumerically(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"page-1.png":  "one",
		"page-2.png":  "two",
		"page-10.png": "ten",
		"input.pdf":   "source",
		"page-x.png":  "junk",
	}
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o600); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}

	pages, err := collectPages(dir, "page")
	if err != nil {
		t.Fatalf("collectPages returned error: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	wantNumbers := []int{1, 2, 10}
	wantContents := []string{"one", "two", "ten"}
	for i, page := range pages {
		if page.Number != wantNumbers[i] {
			t.Fatalf("expected page %d to be number %d, got %d", i, wantNumbers[i], page.Number)
		}
		if string(page.PNG) != wantContents[i] {
			t.Fatalf("expected page %d contents %q, got %q", i, wantContents[i], page.PNG)
		}
	}
}

func TestCollectPagesEmptyDir(t *testing.T) {
	if _, err := collectPages(t.TempDir(), "page"); err == nil {
		t.Fatal("expected error for empty render output")
	}
}
