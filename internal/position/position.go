// Package position folds individual goods-receiving photos into one
// aggregate per position code.
package position

import (
	"sort"
	"time"

	"fruitlog/api/internal/store"
)

// Aggregate is the per-position summary shown on the overview. The
// representative photo is the first photo encountered for the position
// in input order, so callers that want the newest photo up front must
// pass photos ordered newest-first.
type Aggregate struct {
	PositionCode   string        `json:"positionCode"`
	Representative store.Photo   `json:"representative"`
	Photos         []store.Photo `json:"photos"`
	PhotoCount     int           `json:"photoCount"`
	ScanCount      int           `json:"scanCount"`
	Category       string        `json:"category,omitempty"`
	LatestCapture  time.Time     `json:"latestCapture"`
}

// Build groups photos by their exact position code. Scan counts and
// category annotations are joined by the same exact code; a code missing
// from either map simply yields zero or empty. The result is ordered by
// latest capture, newest first, with input order preserved between
// positions whose latest captures are equal.
func Build(photos []store.Photo, scanCounts map[string]int, categories map[string]string) []Aggregate {
	byCode := make(map[string]*Aggregate)
	order := make([]string, 0)

	for _, photo := range photos {
		agg, ok := byCode[photo.PositionCode]
		if !ok {
			agg = &Aggregate{
				PositionCode:   photo.PositionCode,
				Representative: photo,
				Photos:         make([]store.Photo, 0, 4),
				LatestCapture:  photo.CapturedAt,
			}
			byCode[photo.PositionCode] = agg
			order = append(order, photo.PositionCode)
		}
		agg.Photos = append(agg.Photos, photo)
		agg.PhotoCount++
		if photo.CapturedAt.After(agg.LatestCapture) {
			agg.LatestCapture = photo.CapturedAt
		}
	}

	aggregates := make([]Aggregate, 0, len(order))
	for _, code := range order {
		agg := byCode[code]
		agg.ScanCount = scanCounts[code]
		agg.Category = categories[code]
		aggregates = append(aggregates, *agg)
	}

	sort.SliceStable(aggregates, func(i, j int) bool {
		return aggregates[i].LatestCapture.After(aggregates[j].LatestCapture)
	})
	return aggregates
}

// TotalPhotos sums the photo counts across aggregates. It always equals
// the length of the input slice Build was called with.
func TotalPhotos(aggregates []Aggregate) int {
	total := 0
	for _, agg := range aggregates {
		total += agg.PhotoCount
	}
	return total
}
