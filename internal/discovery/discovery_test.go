package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
	"github.com/maltedev/cj-catalog-scraper/internal/browser/browsertest"
	"github.com/maltedev/cj-catalog-scraper/internal/models"
	"github.com/maltedev/cj-catalog-scraper/internal/parser"
)

const baseURL = "https://www.example.com/"

const menuHTML = `<html><body>
<ul class="cate1-group">
  <li class="cate1-item"><a href="/list/home-garden">Home &amp; Garden</a>
    <div class="cate2-box"><ul class="cate2-group">
      <li><a href="/list/lighting">Lighting</a>
        <ul class="cate3-group">
          <li><a href="/list/desk-lamps">Desk Lamps</a></li>
          <li><a href="/list/ceiling">Ceiling</a></li>
        </ul>
      </li>
      <li><a href="/list/kitchen">Kitchen</a></li>
    </ul></div>
  </li>
  <li class="cate1-item"><a href="https://www.example.com/list/toys">  Toys </a></li>
</ul>
</body></html>`

func root(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc.Find("ul.cate1-group").First()
}

func TestDiscover(t *testing.T) {
	paths := Discover(root(t, menuHTML), baseURL)
	require.Len(t, paths, 4)

	labels := make([]string, len(paths))
	for i, p := range paths {
		labels[i] = p.Label()
	}
	assert.Equal(t, []string{
		"Home & Garden/Lighting/Desk Lamps",
		"Home & Garden/Lighting/Ceiling",
		"Home & Garden/Kitchen",
		"Toys",
	}, labels)

	assert.Equal(t, "https://www.example.com/list/desk-lamps", paths[0].Leaf().URL)
	assert.Equal(t, "https://www.example.com/list/home-garden", paths[0][0].URL)
	assert.Equal(t, "https://www.example.com/list/toys", paths[3].Leaf().URL)
}

func TestDiscover_EmptyRoot(t *testing.T) {
	assert.Empty(t, Discover(root(t, `<div>no menu</div>`), baseURL))
	assert.Empty(t, Discover(root(t, `<ul class="cate1-group"></ul>`), baseURL))
	assert.Empty(t, Discover(nil, baseURL))
}

// buildTree renders a complete menu of the given fan-out and depth.
func buildTree(prefix string, fanout, depth int) string {
	var b strings.Builder
	for i := 0; i < fanout; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		b.WriteString(`<li><a href="/c/` + name + `">` + name + `</a>`)
		if depth > 1 {
			b.WriteString("<ul>" + buildTree(name+"-", fanout, depth-1) + "</ul>")
		}
		b.WriteString("</li>")
	}
	return b.String()
}

func TestDiscover_LeafCountAndDepth(t *testing.T) {
	tests := []struct {
		fanout int
		depth  int
		leaves int
	}{
		{1, 1, 1},
		{3, 1, 3},
		{2, 4, 16},
		{3, 3, 27},
		{1, 12, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("fanout=%d depth=%d", tt.fanout, tt.depth), func(t *testing.T) {
			html := `<ul class="cate1-group">` + buildTree("n", tt.fanout, tt.depth) + `</ul>`
			paths := Discover(root(t, html), baseURL)

			require.Len(t, paths, tt.leaves)
			for _, p := range paths {
				assert.Len(t, p, tt.depth)
			}
			assert.Equal(t, "n0", paths[0][0].Name)
		})
	}
}

type pageNavigator struct{}

func (pageNavigator) Navigate(_ context.Context, page browser.Page, url string) error {
	return page.Goto(url)
}

func newDiscoverer(snapshot string) *Discoverer {
	opts := DefaultOptions()
	opts.BaseURL = baseURL
	opts.HoverSettle = 0
	opts.SnapshotPath = snapshot
	return New(pageNavigator{}, parser.DefaultRules(), opts, nil)
}

func TestDiscoverer_DiscoverPage(t *testing.T) {
	page := browsertest.NewPage(menuHTML)

	paths, err := newDiscoverer("").DiscoverPage(context.Background(), page)
	require.NoError(t, err)
	assert.Len(t, paths, 4)
	assert.Equal(t, 1, page.CallCount("hover ul.cate1-group"))
	assert.Equal(t, baseURL, page.URL())
}

func TestDiscoverer_ResolveFallsBackToSnapshot(t *testing.T) {
	snapshot := filepath.Join(t.TempDir(), "category_paths.json")
	ctx := context.Background()
	d := newDiscoverer(snapshot)

	live, err := d.Resolve(ctx, browsertest.NewPage(menuHTML))
	require.NoError(t, err)
	require.Len(t, live, 4)

	fallback, err := d.Resolve(ctx, browsertest.NewPage(`<html><body>maintenance</body></html>`))
	require.NoError(t, err)
	assert.Equal(t, live, fallback)

	_, err = newDiscoverer("").Resolve(ctx, browsertest.NewPage(`<html></html>`))
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap", "categories.json")
	categories := []models.Category{
		{Name: "Home & Garden/Lighting", URL: "https://www.example.com/list/lighting"},
		{Name: "Toys", URL: "https://www.example.com/list/toys"},
	}

	require.NoError(t, SaveSnapshot(path, categories))
	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, categories, loaded)

	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
