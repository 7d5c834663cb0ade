// Package catalog arranges the article master data into the three-level
// hierarchy the browser renders: category, genus, product category.
package catalog

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"fruitlog/api/internal/store"
)

// Labels for articles whose taxonomy columns are NULL or empty. Articles
// are never dropped for missing taxonomy; they land in these buckets.
const (
	FallbackCategory        = "Nicht kategorisiert"
	FallbackGenus           = "Ohne Gattung"
	FallbackProductCategory = "Ohne Produktkategorie"
)

type ProductGroup struct {
	Name     string          `json:"name"`
	Articles []store.Article `json:"articles"`
}

type GenusGroup struct {
	Name     string         `json:"name"`
	Products []ProductGroup `json:"products"`
}

type CategoryGroup struct {
	Name   string       `json:"name"`
	Genera []GenusGroup `json:"genera"`
}

// Group buckets articles by category, genus and product category, in
// that nesting order. Group names at every level are sorted with German
// collation, fallback buckets included; articles inside a product group
// keep ascending article-number order.
func Group(articles []store.Article) []CategoryGroup {
	type productKey struct {
		category string
		genus    string
		product  string
	}

	buckets := make(map[productKey][]store.Article)
	for _, article := range articles {
		key := productKey{
			category: keyOrFallback(article.Category, FallbackCategory),
			genus:    keyOrFallback(article.Genus, FallbackGenus),
			product:  keyOrFallback(article.ProductCategory, FallbackProductCategory),
		}
		buckets[key] = append(buckets[key], article)
	}

	byCategory := make(map[string]map[string]map[string][]store.Article)
	for key, items := range buckets {
		if byCategory[key.category] == nil {
			byCategory[key.category] = make(map[string]map[string][]store.Article)
		}
		if byCategory[key.category][key.genus] == nil {
			byCategory[key.category][key.genus] = make(map[string][]store.Article)
		}
		byCategory[key.category][key.genus][key.product] = items
	}

	collator := collate.New(language.German)

	categories := make([]CategoryGroup, 0, len(byCategory))
	for categoryName, genera := range byCategory {
		genusGroups := make([]GenusGroup, 0, len(genera))
		for genusName, products := range genera {
			productGroups := make([]ProductGroup, 0, len(products))
			for productName, items := range products {
				sort.SliceStable(items, func(i, j int) bool {
					return items[i].ArticleNumber < items[j].ArticleNumber
				})
				productGroups = append(productGroups, ProductGroup{Name: productName, Articles: items})
			}
			sortByName(collator, productGroups, func(g ProductGroup) string { return g.Name })
			genusGroups = append(genusGroups, GenusGroup{Name: genusName, Products: productGroups})
		}
		sortByName(collator, genusGroups, func(g GenusGroup) string { return g.Name })
		categories = append(categories, CategoryGroup{Name: categoryName, Genera: genusGroups})
	}
	sortByName(collator, categories, func(g CategoryGroup) string { return g.Name })
	return categories
}

// CountArticles walks a grouping and counts every article it holds.
func CountArticles(groups []CategoryGroup) int {
	return Summarize(groups).Articles
}

// Stats summarizes a grouping for the catalog header.
type Stats struct {
	Categories int `json:"categories"`
	Genera     int `json:"genera"`
	Products   int `json:"products"`
	Articles   int `json:"articles"`
}

func Summarize(groups []CategoryGroup) Stats {
	var stats Stats
	stats.Categories = len(groups)
	for _, category := range groups {
		stats.Genera += len(category.Genera)
		for _, genus := range category.Genera {
			stats.Products += len(genus.Products)
			for _, product := range genus.Products {
				stats.Articles += len(product.Articles)
			}
		}
	}
	return stats
}

// Flatten returns every article of a grouping in traversal order.
func Flatten(groups []CategoryGroup) []store.Article {
	articles := make([]store.Article, 0)
	for _, category := range groups {
		for _, genus := range category.Genera {
			for _, product := range genus.Products {
				articles = append(articles, product.Articles...)
			}
		}
	}
	return articles
}

func keyOrFallback(value *string, fallback string) string {
	if value == nil || *value == "" {
		return fallback
	}
	return *value
}

func sortByName[T any](collator *collate.Collator, groups []T, name func(T) string) {
	sort.SliceStable(groups, func(i, j int) bool {
		return collator.CompareString(name(groups[i]), name(groups[j])) < 0
	})
}
