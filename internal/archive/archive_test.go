package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fruitlog/api/internal/store"
)

func testPhoto(id, code, url string) store.Photo {
	return store.Photo{
		ID:           id,
		PositionCode: code,
		ImageURL:     url,
		CapturedAt:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes-" + r.URL.Path))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestBuildSkipsFailedFetches(t *testing.T) {
	server := newImageServer(t)
	builder := NewBuilder(server.Client(), nil)

	photos := []store.Photo{
		testPhoto("p1", "POS-100", server.URL+"/a.jpg"),
		testPhoto("p2", "POS-100", server.URL+"/missing.jpg"),
		testPhoto("p3", "POS-100", server.URL+"/b.jpg"),
	}

	var buf bytes.Buffer
	added, err := builder.WriteZip(context.Background(), photos, &buf, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if added != 2 {
		t.Fatalf("want 2 entries, got %d", added)
	}

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(reader.File) != 2 {
		t.Fatalf("archive must contain 2 files, got %d", len(reader.File))
	}
}

func TestBuildPrefersEditedURL(t *testing.T) {
	server := newImageServer(t)
	builder := NewBuilder(server.Client(), nil)

	edited := server.URL + "/edited.jpg"
	photo := testPhoto("p1", "POS-100", server.URL+"/original.jpg")
	photo.EditedURL = &edited

	var buf bytes.Buffer
	if _, err := builder.WriteZip(context.Background(), []store.Photo{photo}, &buf, nil); err != nil {
		t.Fatalf("build: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	entry, err := reader.File[0].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer entry.Close()
	var content bytes.Buffer
	if _, err := content.ReadFrom(entry); err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if !strings.Contains(content.String(), "/edited.jpg") {
		t.Fatalf("entry must hold the edited image, got %q", content.String())
	}
}

func TestBuildEmptyInputIsError(t *testing.T) {
	builder := NewBuilder(nil, nil)
	if _, err := builder.WriteZip(context.Background(), nil, &bytes.Buffer{}, nil); err == nil {
		t.Fatal("empty photo list must be an error")
	}
}

func TestBuildAllFailedIsError(t *testing.T) {
	server := newImageServer(t)
	builder := NewBuilder(server.Client(), nil)

	photos := []store.Photo{
		testPhoto("p1", "POS-100", server.URL+"/missing1.jpg"),
		testPhoto("p2", "POS-100", server.URL+"/missing2.jpg"),
	}
	if _, err := builder.WriteZip(context.Background(), photos, &bytes.Buffer{}, nil); err == nil {
		t.Fatal("archive with zero entries must be an error")
	}
}

func TestBuildProgressIsMonotonicAndEndsAtHundred(t *testing.T) {
	server := newImageServer(t)
	builder := NewBuilder(server.Client(), nil)

	photos := make([]store.Photo, 0, 7)
	for i := 0; i < 7; i++ {
		photos = append(photos, testPhoto("p", "POS-100", server.URL+"/a.jpg"))
	}

	var reported []int
	_, err := builder.WriteZip(context.Background(), photos, &bytes.Buffer{}, func(percent int) {
		reported = append(reported, percent)
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if len(reported) == 0 || reported[0] != 0 {
		t.Fatalf("progress must start at 0, got %v", reported)
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] <= reported[i-1] {
			t.Fatalf("progress must be strictly increasing, got %v", reported)
		}
	}
	if reported[len(reported)-1] != 100 {
		t.Fatalf("progress must end at 100, got %v", reported)
	}
}
