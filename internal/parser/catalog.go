package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/cj-catalog-scraper/internal/models"
)

const DefaultCurrency = "USD"

var (
	digitsPattern    = regexp.MustCompile(`\d+`)
	productIDPattern = regexp.MustCompile(`-p-([0-9A-Za-z-]+)\.html`)
	jpgURLPattern    = regexp.MustCompile(`(?i)^https?://[^\s,]+\.jpg$`)
	isoCodePattern   = regexp.MustCompile(`\b([A-Z]{3})\b`)
	whitespace       = regexp.MustCompile(`\s+`)

	currencySymbols = []struct {
		symbol string
		code   string
	}{
		{"US$", "USD"},
		{"A$", "AUD"},
		{"C$", "CAD"},
		{"€", "EUR"},
		{"£", "GBP"},
		{"¥", "CNY"},
		{"₹", "INR"},
		{"R$", "BRL"},
		{"$", "USD"},
	}
)

type CatalogParser struct {
	rules Rules
}

func NewCatalogParser(rules Rules) *CatalogParser {
	return &CatalogParser{rules: rules}
}

func (p *CatalogParser) Rules() Rules {
	return p.rules
}

// ParseListing extracts product cards. Cards without a product link are skipped.
func (p *CatalogParser) ParseListing(html, baseURL string) ([]models.ListingSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var summaries []models.ListingSummary
	doc.Find(p.rules.Card).Each(func(_ int, card *goquery.Selection) {
		if s, ok := p.parseCard(card, baseURL); ok {
			summaries = append(summaries, s)
		}
	})

	return summaries, nil
}

func (p *CatalogParser) parseCard(card *goquery.Selection, baseURL string) (models.ListingSummary, bool) {
	link := card.Find(p.rules.CardLink).First()
	if link.Length() == 0 {
		link = card.Find("a[href]").First()
	}

	href, _ := link.Attr("href")
	productURL := ResolveURL(baseURL, href)
	if productURL == "" {
		return models.ListingSummary{}, false
	}

	var currencyText string
	link.Find(p.rules.CardCurrency).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		currencyText = strings.TrimSpace(s.Text())
		return currencyText == ""
	})

	price := cleanText(link.Find(p.rules.CardPrice).First().Text())

	summary := models.ListingSummary{
		Name:       cleanText(link.Find(p.rules.CardName).First().Text()),
		Price:      price,
		Currency:   ResolveCurrency(currencyText + " " + price),
		ProductURL: productURL,
		ProductID:  trackingProductID(link.Find(p.rules.CardTracking).First()),
		ImageURL:   imageSource(link.Find(p.rules.CardImage).First()),
	}
	if summary.ProductID == "" {
		summary.ProductID = ProductIDFromURL(productURL)
	}

	return summary, true
}

// trackingProductID reads the id from the card's click-tracking payload,
// shaped like {"list":[{"fieldValue":"<id>"}]}.
func trackingProductID(sel *goquery.Selection) string {
	raw, ok := sel.Attr("data-tracking-element-click")
	if !ok || raw == "" {
		return ""
	}

	var payload struct {
		List []struct {
			FieldValue string `json:"fieldValue"`
		} `json:"list"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || len(payload.List) == 0 {
		return ""
	}
	return payload.List[0].FieldValue
}

func imageSource(img *goquery.Selection) string {
	if src, ok := img.Attr("data-src"); ok && src != "" {
		return src
	}
	src, _ := img.Attr("src")
	return src
}

// MaxPageCount reads the "of N" pagination text. Missing or unparsable controls
// mean a single page.
func (p *CatalogParser) MaxPageCount(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}

	var parts []string
	doc.Find(p.rules.Pagination).Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})

	n, ok := LastInt(strings.Join(parts, " "))
	if !ok || n < 1 {
		return 1
	}
	return n
}

// SlideImages returns the gallery image URLs in page order.
func (p *CatalogParser) SlideImages(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var images []string
	doc.Find(p.rules.Slides).Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("data-id"); ok && id != "" {
			images = append(images, id)
		}
	})
	return images
}

// Description returns the normalised description text and the absolute image URLs inside it.
func (p *CatalogParser) Description(html string) (string, []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil
	}

	sel := doc.Find(p.rules.Description).First()
	if sel.Length() == 0 {
		return "", nil
	}

	var images []string
	seen := make(map[string]struct{})
	sel.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := imageSource(img)
		if !strings.HasPrefix(src, "http") {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		images = append(images, src)
	})

	return cleanText(sel.Text()), images
}

// Breadcrumb joins the breadcrumb link labels with "/", leaving out the home link.
func (p *CatalogParser) Breadcrumb(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var crumbs []string
	doc.Find(p.rules.Breadcrumb).EachWithBreak(func(_ int, div *goquery.Selection) bool {
		links := div.Find("a")
		if links.Length() == 0 {
			return true
		}
		links.Each(func(_ int, a *goquery.Selection) {
			label := cleanText(a.Text())
			if label == "" || strings.EqualFold(label, "home") {
				return
			}
			crumbs = append(crumbs, label)
		})
		return len(crumbs) == 0
	})

	return strings.Join(crumbs, "/")
}

// ResolveCurrency maps a price or currency label to an ISO 4217 code.
func ResolveCurrency(text string) string {
	if m := isoCodePattern.FindStringSubmatch(strings.ToUpper(text)); m != nil {
		return m[1]
	}
	for _, c := range currencySymbols {
		if strings.Contains(text, c.symbol) {
			return c.code
		}
	}
	return DefaultCurrency
}

func ProductIDFromURL(productURL string) string {
	if m := productIDPattern.FindStringSubmatch(productURL); m != nil {
		return m[1]
	}
	return ""
}

// ResolveURL makes href absolute against base. Empty or unparsable input gives "".
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || href == "#" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}

	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// ValidImageURLs keeps absolute .jpg URLs.
func ValidImageURLs(urls []string) []string {
	var valid []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if jpgURLPattern.MatchString(u) {
			valid = append(valid, u)
		}
	}
	return valid
}

// LastInt returns the last run of digits in s.
func LastInt(s string) (int, bool) {
	all := digitsPattern.FindAllString(s, -1)
	if len(all) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(all[len(all)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseDimensions converts "long=100,width=50,height=20" in millimetres to
// centimetre strings with one decimal. Any malformed part yields three empty strings.
func ParseDimensions(standard string) (length, width, height string) {
	if strings.TrimSpace(standard) == "" {
		return "", "", ""
	}

	parts := make(map[string]string)
	for _, item := range strings.Split(standard, ",") {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return "", "", ""
		}
		parts[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	toCM := func(key string) (string, bool) {
		raw := parts[key]
		if raw == "" {
			return "", true
		}
		mm, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(math.Round(mm)/10, 'f', 1, 64), true
	}

	l, ok1 := toCM("long")
	w, ok2 := toCM("width")
	h, ok3 := toCM("height")
	if !ok1 || !ok2 || !ok3 {
		return "", "", ""
	}
	return l, w, h
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
