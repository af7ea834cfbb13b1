package parser

// Rules are the CSS selectors that locate catalog data in rendered pages.
type Rules struct {
	Card          string
	CardLink      string
	CardName      string
	CardPrice     string
	CardCurrency  string
	CardTracking  string
	CardImage     string
	Pagination    string
	Slides        string
	Description   string
	Breadcrumb    string
	CategoryMenu  string
	CategoryHover string
}

func DefaultRules() Rules {
	return Rules{
		Card:          "div.product-card",
		CardLink:      "a[class*='productCard']",
		CardName:      "div[class*='name']",
		CardPrice:     "span[class*='sellPriceSpan']",
		CardCurrency:  "span[class*='sellCurrency']",
		CardTracking:  "div[class*='productImage'] div[class*='fillBtn']",
		CardImage:     "img",
		Pagination:    "div.to-go span",
		Slides:        "div#slides > div[data-id] > div[data-id]",
		Description:   "div#description-description",
		Breadcrumb:    "div[class*='bread']",
		CategoryMenu:  "ul.cate1-group",
		CategoryHover: "div[class*='allCategory']",
	}
}
