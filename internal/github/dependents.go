package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// dependentsBase is the HTML page the API has no equivalent for.
const dependentsBase = "https://github.com/%s/network/dependents"

// ScrapeDependents walks the dependents pages of a repository and yields
// each dependent's full name in page order. The dependency graph is not
// exposed by the REST API, so this scrapes the HTML listing, sleeping
// between pages to stay polite.
func (c *Client) ScrapeDependents(ctx context.Context, repo string, delay time.Duration, visit func(fullName string) error) error {
	url := fmt.Sprintf(dependentsBase, repo)
	for url != "" {
		c.logger.Debug("scraping dependents page", "url", url)
		doc, err := c.fetchDocument(ctx, url)
		if err != nil {
			return err
		}

		names, next := parseDependentsPage(doc)
		for _, fullName := range names {
			if err := visit(fullName); err != nil {
				return err
			}
		}

		url = next
		if url != "" && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil
}

// parseDependentsPage extracts the dependent repository names and the
// pagination "Next" link, if any, from one dependents page.
func parseDependentsPage(doc *goquery.Document) (names []string, next string) {
	doc.Find(`a[data-hovercard-type="repository"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		fullName := strings.TrimPrefix(href, "/")
		if strings.Count(fullName, "/") == 1 {
			names = append(names, fullName)
		}
	})
	doc.Find(".paginate-container a").Each(func(_ int, sel *goquery.Selection) {
		if strings.TrimSpace(sel.Text()) == "Next" {
			next, _ = sel.Attr("href")
		}
	})
	return names, next
}

func (c *Client) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dependents page %s: HTTP %d", url, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}
