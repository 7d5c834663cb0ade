// Package archive bundles position photos into a zip download.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"

	"fruitlog/api/internal/store"
)

// ProgressFunc receives whole percentages. It is called with 0 before
// the first fetch and with strictly increasing values afterwards,
// ending at 100 when the archive is complete.
type ProgressFunc func(percent int)

type Builder struct {
	client *http.Client
	logger *log.Logger
}

func NewBuilder(client *http.Client, logger *log.Logger) *Builder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Builder{client: client, logger: logger}
}

// WriteZip fetches every photo and writes a zip archive to w. Photos
// whose fetch fails are skipped, not fatal; the archive is an error only
// when no photo could be added at all. Edited versions win over
// originals.
func (b *Builder) WriteZip(ctx context.Context, photos []store.Photo, w io.Writer, progress ProgressFunc) (int, error) {
	if len(photos) == 0 {
		return 0, fmt.Errorf("keine Fotos zum Herunterladen")
	}
	if progress == nil {
		progress = func(int) {}
	}
	progress(0)

	archive := zip.NewWriter(w)
	added := 0
	lastPercent := 0

	for i, photo := range photos {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		if err := b.addPhoto(ctx, archive, photo, i); err != nil {
			if b.logger != nil {
				b.logger.Printf("zip: skipping photo %s: %v", photo.ID, err)
			}
		} else {
			added++
		}

		percent := (i + 1) * 100 / len(photos)
		if percent > lastPercent {
			lastPercent = percent
			progress(percent)
		}
	}

	if added == 0 {
		return 0, fmt.Errorf("kein Foto konnte geladen werden")
	}
	if err := archive.Close(); err != nil {
		return added, fmt.Errorf("finalize zip: %w", err)
	}
	return added, nil
}

// FetchOne downloads a single image and propagates any failure to the
// caller.
func (b *Builder) FetchOne(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	response, err := b.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, response.StatusCode)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func (b *Builder) addPhoto(ctx context.Context, archive *zip.Writer, photo store.Photo, index int) error {
	url := photo.DisplayURL()
	body, err := b.FetchOne(ctx, url)
	if err != nil {
		return err
	}

	entry, err := archive.Create(entryName(photo, index, url))
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := entry.Write(body); err != nil {
		return fmt.Errorf("write zip entry: %w", err)
	}
	return nil
}

// entryName builds a readable, collision-free archive entry like
// POS-100/POS-100_03.jpg.
func entryName(photo store.Photo, index int, url string) string {
	extension := path.Ext(url)
	if extension == "" || len(extension) > 5 {
		extension = ".jpg"
	}
	code := photo.PositionCode
	if code == "" {
		code = "unbekannt"
	}
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, code)
	return fmt.Sprintf("%s/%s_%02d%s", safe, safe, index+1, extension)
}
