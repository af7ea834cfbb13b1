package models

import (
	"time"
)

const (
	WeightUnitGram = "g"
	SizeUnitCM     = "cm"
	NoSize         = "NO SIZE"

	// VariantIDPrefix is prepended to the product id to build the relational id column.
	VariantIDPrefix = "cj_"
)

type Product struct {
	PID               string    `json:"pid"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	DescriptionImages []string  `json:"description_images,omitempty"`
	ProductURL        string    `json:"product_url"`
	Category          string    `json:"category"`
	Country           string    `json:"country"`
	Currency          string    `json:"currency"`
	Price             string    `json:"price,omitempty"`
	ImageURL          string    `json:"image_url,omitempty"`
	Variants          []Variant `json:"variants"`
	NoShippingInfo    bool      `json:"no_shipping_info"`
	ScrapedAt         time.Time `json:"scraped_at"`
}

type Variant struct {
	SKU              string `json:"sku"`
	VariantID        string `json:"variant_id"`
	ProductID        string `json:"product_id"`
	CJInventory      int    `json:"cj_inventory"`
	FactoryInventory int    `json:"factory_inventory"`
	Price            string `json:"price"`
	Weight           string `json:"weight"`
	WeightUnit       string `json:"weight_unit"`
	ImageURL         string `json:"image_url"`
	BackgroundImages string `json:"bg_img"`
	VariantKey       string `json:"variant_key"`
	Color            string `json:"color"`
	Size             string `json:"size"`
	Length           string `json:"length"`
	Width            string `json:"width"`
	Height           string `json:"height"`
	SizeUnit         string `json:"size_unit"`
	ShippingFee      string `json:"shipping_fee"`
	ShippingMethod   string `json:"shipping_method"`
	DeliveryTime     string `json:"delivery_time"`
}

// ShippingOption is one carrier quote returned by the logistics API.
type ShippingOption struct {
	LogisticsName string `json:"logisticName"`
	Price         string `json:"price"`
	Aging         string `json:"aging"`
}

// ShippingChoice holds the three fields folded into a Variant. The zero value means no quote.
type ShippingChoice struct {
	Method   string `json:"shipping_method"`
	Fee      string `json:"shipping_fee"`
	Delivery string `json:"delivery_time"`
}

func (c ShippingChoice) IsEmpty() bool {
	return c.Method == "" && c.Fee == "" && c.Delivery == ""
}

func NewProduct(summary ListingSummary, category, country string) *Product {
	return &Product{
		PID:        summary.ProductID,
		Name:       summary.Name,
		ProductURL: summary.ProductURL,
		Category:   category,
		Country:    country,
		Currency:   summary.Currency,
		Price:      summary.Price,
		ImageURL:   summary.ImageURL,
		Variants:   make([]Variant, 0),
		ScrapedAt:  time.Now(),
	}
}

func (v *Variant) ApplyShipping(choice ShippingChoice) {
	v.ShippingMethod = choice.Method
	v.ShippingFee = choice.Fee
	v.DeliveryTime = choice.Delivery
}

// SetVariants attaches the variants, stamps each with the relational product id
// and flags products without any variant.
func (p *Product) SetVariants(variants []Variant) {
	for i := range variants {
		variants[i].ProductID = VariantIDPrefix + p.PID
	}
	p.Variants = variants
	p.NoShippingInfo = len(variants) == 0
}

func (p *Product) Validate() []string {
	var errors []string

	if p.PID == "" {
		errors = append(errors, "pid is required")
	}

	seen := make(map[string]struct{}, len(p.Variants))
	for _, v := range p.Variants {
		if v.SKU == "" {
			errors = append(errors, "variant sku is required")
			continue
		}
		if _, dup := seen[v.SKU]; dup {
			errors = append(errors, "duplicate variant sku "+v.SKU)
		}
		seen[v.SKU] = struct{}{}
	}

	return errors
}
