// internal/interact/capture.go
package interact

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/specter-cli/internal/artifacts"
)

// CapturedResponse is the stabilized answer lifted out of the page.
type CapturedResponse struct {
	Text      string
	HTML      string
	Links     []artifacts.Link
	Images    []artifacts.Image
	Timestamp time.Time
	// TimedOut marks a response taken at the stabilization deadline rather
	// than at detected quiescence. Partial but still useful.
	TimedOut bool
}

// extractResponse parses the page and pulls text, links, and images from the
// response region. Selector misses fall back to main, then body, so a layout
// drift degrades extraction instead of failing it.
func extractResponse(html, selector string) (*CapturedResponse, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse captured page: %w", err)
	}

	region := doc.Find("body")
	if selector != "" {
		if sel := doc.Find(selector); sel.Length() > 0 {
			// Chat UIs append answers, so the last match is the newest.
			region = sel.Last()
		}
	} else if main := doc.Find("main"); main.Length() > 0 {
		region = main
	}

	text := normalizeWhitespace(region.Text())
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var links []artifacts.Link
	region.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		links = append(links, artifacts.Link{
			Title: strings.TrimSpace(s.Text()),
			URL:   href,
		})
	})

	var images []artifacts.Image
	region.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		alt, _ := s.Attr("alt")
		images = append(images, artifacts.Image{Alt: alt, URL: src})
	})

	return &CapturedResponse{
		Text:      text,
		HTML:      html,
		Links:     links,
		Images:    images,
		Timestamp: time.Now().UTC(),
	}, nil
}

// normalizeWhitespace collapses runs of blank lines and trims each line, the
// minimum cleanup for innerText-style dumps of deeply nested markup.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
