package catalog

import (
	"testing"

	"fruitlog/api/internal/store"
)

func strptr(s string) *string { return &s }

func article(number string, category, genus, product *string) store.Article {
	return store.Article{
		ID:              "art_" + number,
		ArticleNumber:   number,
		ArticleTextDE:   "Artikel " + number,
		Category:        category,
		Genus:           genus,
		ProductCategory: product,
	}
}

func TestGroupPreservesEveryArticle(t *testing.T) {
	articles := []store.Article{
		article("1001", strptr("Früchte"), strptr("Apfel"), strptr("Gala")),
		article("1002", strptr("Früchte"), strptr("Apfel"), strptr("Braeburn")),
		article("1003", strptr("Früchte"), strptr("Birne"), nil),
		article("1004", strptr("Gemüse"), nil, nil),
		article("1005", nil, nil, nil),
	}

	groups := Group(articles)
	if got := CountArticles(groups); got != len(articles) {
		t.Fatalf("grouping must preserve all articles: want %d, got %d", len(articles), got)
	}

	seen := map[string]bool{}
	for _, category := range groups {
		for _, genus := range category.Genera {
			for _, product := range genus.Products {
				for _, a := range product.Articles {
					if seen[a.ID] {
						t.Fatalf("article %s appears twice in grouping", a.ID)
					}
					seen[a.ID] = true
				}
			}
		}
	}
}

func TestGroupNullTaxonomyFallsBack(t *testing.T) {
	empty := ""
	articles := []store.Article{
		article("2001", nil, strptr("Apfel"), nil),
		article("2002", strptr(""), strptr("Apfel"), nil),
		article("2003", strptr("Früchte"), nil, strptr("Gala")),
		article("2004", strptr("Früchte"), strptr("Apfel"), &empty),
	}

	groups := Group(articles)

	fallbackCategory := findCategory(t, groups, FallbackCategory)
	apfel := findGenus(t, fallbackCategory, "Apfel")
	if len(apfel.Products) != 1 || apfel.Products[0].Name != FallbackProductCategory {
		t.Fatalf("unexpected products under fallback category: %+v", apfel.Products)
	}
	if len(apfel.Products[0].Articles) != 2 {
		t.Fatalf("nil and empty category must land in the same bucket, got %d articles", len(apfel.Products[0].Articles))
	}

	fruechte := findCategory(t, groups, "Früchte")
	if findGenus(t, fruechte, FallbackGenus).Products[0].Name != "Gala" {
		t.Fatalf("article with genus missing must keep its real product category")
	}
	if findGenus(t, fruechte, "Apfel").Products[0].Name != FallbackProductCategory {
		t.Fatalf("empty product category must map to %q", FallbackProductCategory)
	}
}

func TestGroupOrdersWithGermanCollation(t *testing.T) {
	articles := []store.Article{
		article("3001", strptr("Zwiebeln"), nil, nil),
		article("3002", strptr("Äpfel"), nil, nil),
		article("3003", strptr("Beeren"), nil, nil),
	}

	groups := Group(articles)
	want := []string{"Äpfel", "Beeren", "Zwiebeln"}
	if len(groups) != len(want) {
		t.Fatalf("expected %d categories, got %d", len(want), len(groups))
	}
	for i, name := range want {
		if groups[i].Name != name {
			t.Fatalf("category %d: want %q, got %q (Ä must sort with A, not after Z)", i, name, groups[i].Name)
		}
	}
}

func TestGroupArticlesSortedByNumber(t *testing.T) {
	articles := []store.Article{
		article("4003", strptr("Früchte"), strptr("Apfel"), strptr("Gala")),
		article("4001", strptr("Früchte"), strptr("Apfel"), strptr("Gala")),
		article("4002", strptr("Früchte"), strptr("Apfel"), strptr("Gala")),
	}

	groups := Group(articles)
	got := groups[0].Genera[0].Products[0].Articles
	for i, number := range []string{"4001", "4002", "4003"} {
		if got[i].ArticleNumber != number {
			t.Fatalf("article %d: want %s, got %s", i, number, got[i].ArticleNumber)
		}
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	articles := []store.Article{
		article("5001", strptr("Früchte"), strptr("Apfel"), strptr("Gala")),
		article("5002", strptr("Gemüse"), strptr("Tomate"), nil),
		article("5003", nil, nil, nil),
	}

	flattened := Flatten(Group(articles))
	if len(flattened) != len(articles) {
		t.Fatalf("flatten must return every grouped article, got %d", len(flattened))
	}
	seen := map[string]bool{}
	for _, a := range flattened {
		seen[a.ID] = true
	}
	for _, a := range articles {
		if !seen[a.ID] {
			t.Fatalf("article %s missing after round trip", a.ID)
		}
	}
}

func TestSummarize(t *testing.T) {
	articles := []store.Article{
		article("6001", strptr("Früchte"), strptr("Apfel"), strptr("Gala")),
		article("6002", strptr("Früchte"), strptr("Apfel"), strptr("Braeburn")),
		article("6003", strptr("Früchte"), strptr("Birne"), strptr("Kaiser")),
		article("6004", strptr("Gemüse"), strptr("Tomate"), strptr("Cherry")),
	}

	stats := Summarize(Group(articles))
	want := Stats{Categories: 2, Genera: 3, Products: 4, Articles: 4}
	if stats != want {
		t.Fatalf("want %+v, got %+v", want, stats)
	}
}

func TestGroupEmptyInput(t *testing.T) {
	if groups := Group(nil); len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func findCategory(t *testing.T, groups []CategoryGroup, name string) CategoryGroup {
	t.Helper()
	for _, g := range groups {
		if g.Name == name {
			return g
		}
	}
	t.Fatalf("category %q not found", name)
	return CategoryGroup{}
}

func findGenus(t *testing.T, category CategoryGroup, name string) GenusGroup {
	t.Helper()
	for _, g := range category.Genera {
		if g.Name == name {
			return g
		}
	}
	t.Fatalf("genus %q not found in category %q", name, category.Name)
	return GenusGroup{}
}
