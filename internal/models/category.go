package models

import "strings"

type CategoryNode struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CategoryPath is the ordered sequence of nodes from the menu root to a leaf.
type CategoryPath []CategoryNode

func (p CategoryPath) Leaf() CategoryNode {
	if len(p) == 0 {
		return CategoryNode{}
	}
	return p[len(p)-1]
}

func (p CategoryPath) Label() string {
	names := make([]string, 0, len(p))
	for _, n := range p {
		names = append(names, n.Name)
	}
	return strings.Join(names, "/")
}

// Category is a leaf listing to scrape. It is the record stored in the snapshot file.
type Category struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (p CategoryPath) Category() Category {
	return Category{Name: p.Label(), URL: p.Leaf().URL}
}

// ListingSummary is one product card from a listing page.
type ListingSummary struct {
	Name       string `json:"name"`
	Price      string `json:"price"`
	Currency   string `json:"currency"`
	ProductURL string `json:"product_url"`
	ProductID  string `json:"product_id"`
	ImageURL   string `json:"image_url"`
}
