package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><body>
<div class="product-card">
  <a class="productCard--nLiHk" href="/product/led-desk-lamp-p-1001.html">
    <div class="productImage--x1"><div class="fillBtn--y2" data-tracking-element-click='{"list":[{"fieldValue":"2504150829371600300"}]}'></div>
      <img data-src="https://cf.example.com/lamp.jpg" src="placeholder.gif"></div>
    <div class="name--a1">  LED   Desk Lamp </div>
    <div class="second--b2"><span>Lists: 12</span></div>
    <span class="sellCurrency--c3"></span><span class="sellCurrency--c3">$</span>
    <span class="sellPriceSpan--d4">12.50-14.00</span>
  </a>
</div>
<div class="product-card">
  <a class="productCard--nLiHk" href="https://www.example.com/product/usb-fan-p-2002.html">
    <img src="https://cf.example.com/fan.jpg">
    <div class="name--a1">USB Fan</div>
    <span class="sellCurrency--c3">EUR</span><span class="sellPriceSpan--d4">3.10</span>
  </a>
</div>
<div class="product-card"><span>sold out, no link</span></div>
</body></html>`

func TestCatalogParser_ParseListing(t *testing.T) {
	p := NewCatalogParser(DefaultRules())

	summaries, err := p.ParseListing(listingHTML, "https://www.example.com/list/lamps.html")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	first := summaries[0]
	assert.Equal(t, "LED Desk Lamp", first.Name)
	assert.Equal(t, "12.50-14.00", first.Price)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "https://www.example.com/product/led-desk-lamp-p-1001.html", first.ProductURL)
	assert.Equal(t, "2504150829371600300", first.ProductID)
	assert.Equal(t, "https://cf.example.com/lamp.jpg", first.ImageURL)

	second := summaries[1]
	assert.Equal(t, "EUR", second.Currency)
	assert.Equal(t, "2002", second.ProductID, "falls back to the id in the url")
	assert.Equal(t, "https://cf.example.com/fan.jpg", second.ImageURL)
}

func TestCatalogParser_MaxPageCount(t *testing.T) {
	p := NewCatalogParser(DefaultRules())

	tests := []struct {
		name string
		html string
		want int
	}{
		{"of N text", `<div class="to-go"><span>Page</span><span>1 of 17</span></div>`, 17},
		{"total in last span", `<div class="to-go"><span>Go to</span><span>/ 4</span></div>`, 4},
		{"control absent", `<div class="pager"></div>`, 1},
		{"no digits", `<div class="to-go"><span>of many</span></div>`, 1},
		{"zero", `<div class="to-go"><span>of 0</span></div>`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.MaxPageCount(tt.html))
		})
	}
}

func TestCatalogParser_DetailExtraction(t *testing.T) {
	html := `<html><body>
	<div class="breadCrumb--k2"><a href="/">Home</a><a href="/c/1">Home &amp; Garden</a><a href="/c/2"> Lighting </a></div>
	<div id="slides">
	  <div data-id="x"><div data-id="https://cf.example.com/a.jpg"></div></div>
	  <div data-id="y"><div data-id="https://cf.example.com/b.png"></div></div>
	  <div data-id="z"><div data-id="https://cf.example.com/c.JPG"></div></div>
	</div>
	<div id="description-description">
	  <p>Bright   lamp.</p>
	  <p>Three modes.</p>
	  <img src="https://cf.example.com/d1.jpg"><img data-src="https://cf.example.com/d2.jpg"><img src="/relative.jpg">
	  <img src="https://cf.example.com/d1.jpg">
	</div>
	</body></html>`

	p := NewCatalogParser(DefaultRules())

	slides := p.SlideImages(html)
	assert.Equal(t, []string{"https://cf.example.com/a.jpg", "https://cf.example.com/b.png", "https://cf.example.com/c.JPG"}, slides)
	assert.Equal(t, []string{"https://cf.example.com/a.jpg", "https://cf.example.com/c.JPG"}, ValidImageURLs(slides))

	text, images := p.Description(html)
	assert.Equal(t, "Bright lamp. Three modes.", text)
	assert.Equal(t, []string{"https://cf.example.com/d1.jpg", "https://cf.example.com/d2.jpg"}, images)

	assert.Equal(t, "Home & Garden/Lighting", p.Breadcrumb(html))
	assert.Equal(t, "", p.Breadcrumb(`<div class="content"></div>`))

	text, images = p.Description(`<div></div>`)
	assert.Empty(t, text)
	assert.Nil(t, images)
}

func TestResolveCurrency(t *testing.T) {
	tests := map[string]string{
		"$":         "USD",
		"US$ 3.00":  "USD",
		"€ 4,00":    "EUR",
		"£":         "GBP",
		"eur":       "EUR",
		"CAD 12.00": "CAD",
		"":          "USD",
		"12.00":     "USD",
	}

	for in, want := range tests {
		assert.Equal(t, want, ResolveCurrency(in), in)
	}
}

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		in      string
		l, w, h string
	}{
		{"long=100,width=50,height=20", "10.0", "5.0", "2.0"},
		{"long=125,width=33,height=7", "12.5", "3.3", "0.7"},
		{"long=100,width=50", "10.0", "5.0", ""},
		{"long=abc,width=50,height=20", "", "", ""},
		{"garbage", "", "", ""},
		{"", "", "", ""},
	}

	for _, tt := range tests {
		l, w, h := ParseDimensions(tt.in)
		assert.Equal(t, []string{tt.l, tt.w, tt.h}, []string{l, w, h}, tt.in)
	}
}

func TestResolveURL(t *testing.T) {
	base := "https://www.example.com/list/a.html?pageNum=2"

	assert.Equal(t, "https://www.example.com/product/x-p-1.html", ResolveURL(base, "/product/x-p-1.html"))
	assert.Equal(t, "https://cdn.example.com/x", ResolveURL(base, "https://cdn.example.com/x"))
	assert.Equal(t, "", ResolveURL(base, ""))
	assert.Equal(t, "", ResolveURL(base, "#"))
	assert.Equal(t, "", ResolveURL(base, "javascript:void(0)"))
	assert.Equal(t, "", ResolveURL("", "/relative"))
}

func TestLastInt(t *testing.T) {
	n, ok := LastInt("1 of 23")
	assert.True(t, ok)
	assert.Equal(t, 23, n)

	_, ok = LastInt("none")
	assert.False(t, ok)
}
