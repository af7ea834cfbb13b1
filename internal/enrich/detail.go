package enrich

import (
	"strings"

	"github.com/maltedev/cj-catalog-scraper/internal/models"
	"github.com/maltedev/cj-catalog-scraper/internal/parser"
)

// detailExpression collects the product state the detail page keeps on window.
const detailExpression = `(() => {
	const d = window.productDetailData;
	if (!d) return null;
	const login = window.loginInfoController;
	const info = (k) => (login && typeof login.info === "function" ? login.info(k) : "") || "";
	return {
		id: d.id,
		productType: d.productType,
		propertyKey: d.property ? d.property.key : "",
		stanProducts: d.stanProducts || [],
		variantInventory: d.variantInventory || [],
		customerCode: info("userId"),
		token: info("token"),
	};
})()`

type detailData struct {
	ID               models.FlexString  `json:"id"`
	ProductType      models.FlexString  `json:"productType"`
	PropertyKey      models.FlexString  `json:"propertyKey"`
	StanProducts     []stanProduct      `json:"stanProducts"`
	VariantInventory []variantInventory `json:"variantInventory"`
	CustomerCode     models.FlexString  `json:"customerCode"`
	Token            string             `json:"token"`
}

type stanProduct struct {
	SKU        string            `json:"sku"`
	ID         models.FlexString `json:"id"`
	SellPrice  models.FlexString `json:"sellPrice"`
	Weight     models.FlexString `json:"weight"`
	Image      string            `json:"image"`
	VariantKey string            `json:"variantKey"`
	Standard   string            `json:"standard"`
	PackWeight models.FlexString `json:"packWeight"`
	Volume     models.FlexString `json:"volume"`
	Long       models.FlexString `json:"long"`
	Width      models.FlexString `json:"width"`
	Height     models.FlexString `json:"height"`
}

type variantInventory struct {
	VID       string             `json:"vid"`
	Inventory []countryInventory `json:"inventory"`
}

type countryInventory struct {
	CountryCode      string            `json:"countryCode"`
	CJInventory      models.FlexString `json:"cjInventory"`
	FactoryInventory models.FlexString `json:"factoryInventory"`
}

type stock struct {
	cj      int
	factory int
}

// inventoryByVariant indexes each variant's stock in the target country.
// Variants without an entry for that country have zero stock.
func inventoryByVariant(entries []variantInventory, country string) map[string]stock {
	out := make(map[string]stock, len(entries))
	for _, e := range entries {
		for _, inv := range e.Inventory {
			if inv.CountryCode == country {
				out[e.VID] = stock{cj: inv.CJInventory.Int(), factory: inv.FactoryInventory.Int()}
				break
			}
		}
	}
	return out
}

// SplitVariantKey returns the color label and size of a key like "Black-XL".
// Keys without a size part report NoSize.
func SplitVariantKey(key string) (colorLabel, size string) {
	parts := strings.Split(key, "-")
	colorLabel = strings.TrimSpace(parts[0])
	if len(parts) < 2 {
		return colorLabel, models.NoSize
	}
	return colorLabel, strings.ToLower(strings.TrimSpace(parts[1]))
}

// backgroundImages joins the gallery's .jpg URLs, leaving out the variant's own image.
func backgroundImages(gallery []string, variantImage string) string {
	var keep []string
	for _, u := range parser.ValidImageURLs(gallery) {
		if u != variantImage {
			keep = append(keep, u)
		}
	}
	return strings.Join(keep, ",")
}

// buildVariant fills everything except color and shipping.
func buildVariant(sp stanProduct, inv map[string]stock, gallery []string) models.Variant {
	s := inv[sp.ID.String()]
	length, width, height := parser.ParseDimensions(sp.Standard)
	_, size := SplitVariantKey(sp.VariantKey)

	return models.Variant{
		SKU:              strings.ToLower(sp.SKU),
		VariantID:        sp.ID.String(),
		CJInventory:      s.cj,
		FactoryInventory: s.factory,
		Price:            sp.SellPrice.String(),
		Weight:           sp.Weight.String(),
		WeightUnit:       models.WeightUnitGram,
		ImageURL:         sp.Image,
		BackgroundImages: backgroundImages(gallery, sp.Image),
		VariantKey:       sp.VariantKey,
		Size:             size,
		Length:           length,
		Width:            width,
		Height:           height,
		SizeUnit:         models.SizeUnitCM,
	}
}
