package shipping

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/cj-catalog-scraper/internal/models"
)

const (
	priceWeight = 0.9
	agingWeight = 0.1
)

var digits = regexp.MustCompile(`\d+`)

// Choose returns the option with the lowest 0.9*price + 0.1*max-days score.
// Options with a non-numeric price are ignored; if none remain the choice is empty.
func Choose(options []models.ShippingOption) models.ShippingChoice {
	var (
		best      *models.ShippingOption
		bestScore = math.Inf(1)
	)

	for i := range options {
		price, err := strconv.ParseFloat(strings.TrimSpace(options[i].Price), 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
			continue
		}

		score := priceWeight*price + agingWeight*upperBound(options[i].Aging)
		if best == nil || score < bestScore {
			best = &options[i]
			bestScore = score
		}
	}

	if best == nil {
		return models.ShippingChoice{}
	}
	return models.ShippingChoice{
		Method:   best.LogisticsName,
		Fee:      best.Price,
		Delivery: best.Aging,
	}
}

// ChooseForSKUs picks a choice for every flagged SKU. Flagged SKUs without
// quotes get an empty choice; unflagged SKUs are left out.
func ChooseForSKUs(flags map[string]bool, quotes map[string][]models.ShippingOption) map[string]models.ShippingChoice {
	out := make(map[string]models.ShippingChoice, len(flags))
	for sku, flagged := range flags {
		if !flagged {
			continue
		}
		out[sku] = Choose(quotes[sku])
	}
	return out
}

// upperBound is the largest number of days in a window like "3-7". A window
// without digits is infinitely bad.
func upperBound(aging string) float64 {
	all := digits.FindAllString(aging, -1)
	if len(all) == 0 {
		return math.Inf(1)
	}

	best := math.Inf(-1)
	for _, d := range all {
		n, err := strconv.ParseFloat(d, 64)
		if err != nil {
			continue
		}
		best = math.Max(best, n)
	}
	if math.IsInf(best, -1) {
		return math.Inf(1)
	}
	return best
}
