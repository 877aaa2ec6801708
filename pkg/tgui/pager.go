package tgui

import "fmt"

// PageBounds clips a 0-based page index against a total count and returns the
// clipped page plus prev/next flags. size must be > 0.
func PageBounds(page, size, total int) (page2 int, hasPrev, hasNext bool) {
	if size <= 0 {
		size = 10
	}
	if page < 0 {
		page = 0
	}
	maxPage := 0
	if total > 0 {
		maxPage = (total - 1) / size
	}
	if page > maxPage {
		page = maxPage
	}
	return page, page > 0, page < maxPage
}

// PageLabel returns a compact, human-friendly pagination label. page is 0-based.
func PageLabel(page, size, total int) string {
	if size <= 0 {
		size = 10
	}
	if total <= 0 {
		return "Page 1/1"
	}
	pages := (total + size - 1) / size
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	return fmt.Sprintf("Page %d/%d", page+1, pages)
}
