package catalog

import "strings"

// ExpandState tracks which hierarchy nodes the client has opened. The
// four levels are independent sets: collapsing a category leaves the
// recorded state of its genera, product categories and articles intact,
// so re-expanding restores the previous view.
type ExpandState struct {
	Categories map[string]bool `json:"categories"`
	Genera     map[string]bool `json:"genera"`
	Products   map[string]bool `json:"products"`
	Articles   map[string]bool `json:"articles"`
}

func NewExpandState() *ExpandState {
	return &ExpandState{
		Categories: make(map[string]bool),
		Genera:     make(map[string]bool),
		Products:   make(map[string]bool),
		Articles:   make(map[string]bool),
	}
}

// GenusKey identifies a genus node. Category and genus names never
// contain the separator because they come from single taxonomy columns.
func GenusKey(category, genus string) string {
	return category + "|" + genus
}

func ProductKey(category, genus, product string) string {
	return strings.Join([]string{category, genus, product}, "|")
}

func (s *ExpandState) ToggleCategory(category string) bool {
	return toggle(s.Categories, category)
}

func (s *ExpandState) ToggleGenus(category, genus string) bool {
	return toggle(s.Genera, GenusKey(category, genus))
}

func (s *ExpandState) ToggleProduct(category, genus, product string) bool {
	return toggle(s.Products, ProductKey(category, genus, product))
}

func (s *ExpandState) ToggleArticle(articleID string) bool {
	return toggle(s.Articles, articleID)
}

func (s *ExpandState) CategoryExpanded(category string) bool {
	return s.Categories[category]
}

func (s *ExpandState) GenusExpanded(category, genus string) bool {
	return s.Genera[GenusKey(category, genus)]
}

func (s *ExpandState) ProductExpanded(category, genus, product string) bool {
	return s.Products[ProductKey(category, genus, product)]
}

func (s *ExpandState) ArticleExpanded(articleID string) bool {
	return s.Articles[articleID]
}

// ExpandAll marks every node of the grouping as expanded.
func (s *ExpandState) ExpandAll(groups []CategoryGroup) {
	for _, category := range groups {
		s.Categories[category.Name] = true
		for _, genus := range category.Genera {
			s.Genera[GenusKey(category.Name, genus.Name)] = true
			for _, product := range genus.Products {
				s.Products[ProductKey(category.Name, genus.Name, product.Name)] = true
				for _, article := range product.Articles {
					s.Articles[article.ID] = true
				}
			}
		}
	}
}

// CollapseAll clears all four sets.
func (s *ExpandState) CollapseAll() {
	s.Categories = make(map[string]bool)
	s.Genera = make(map[string]bool)
	s.Products = make(map[string]bool)
	s.Articles = make(map[string]bool)
}

func toggle(set map[string]bool, key string) bool {
	if set[key] {
		delete(set, key)
		return false
	}
	set[key] = true
	return true
}
