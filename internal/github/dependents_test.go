package github

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dependentsPage = `
<html><body>
  <div class="Box-row">
    <a data-hovercard-type="repository" href="/acme/consumer-one">consumer-one</a>
  </div>
  <div class="Box-row">
    <a data-hovercard-type="repository" href="/beta/consumer-two">consumer-two</a>
  </div>
  <a data-hovercard-type="user" href="/acme">acme</a>
  <a data-hovercard-type="repository" href="/not-a-repo">broken</a>
  <div class="paginate-container">
    <a href="https://github.com/acme/widget/network/dependents?page=1">Previous</a>
    <a href="https://github.com/acme/widget/network/dependents?page=2">Next</a>
  </div>
</body></html>`

const lastDependentsPage = `
<html><body>
  <div class="Box-row">
    <a data-hovercard-type="repository" href="/gamma/consumer-three">consumer-three</a>
  </div>
  <div class="paginate-container">
    <a href="https://github.com/acme/widget/network/dependents?page=1">Previous</a>
  </div>
</body></html>`

func TestParseDependentsPage(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(dependentsPage))
	require.NoError(t, err)

	names, next := parseDependentsPage(doc)
	assert.Equal(t, []string{"acme/consumer-one", "beta/consumer-two"}, names)
	assert.Equal(t, "https://github.com/acme/widget/network/dependents?page=2", next)
}

func TestParseDependentsPageLastPage(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(lastDependentsPage))
	require.NoError(t, err)

	names, next := parseDependentsPage(doc)
	assert.Equal(t, []string{"gamma/consumer-three"}, names)
	assert.Empty(t, next)
}
