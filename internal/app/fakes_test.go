package app

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"strings"
	"time"

	"fruitlog/api/internal/email"
	"fruitlog/api/internal/importer"
	"fruitlog/api/internal/store"
)

// fakeData is an in-memory dataStore for handler and service tests.
type fakeData struct {
	photos    map[string]store.Photo
	articles  []store.Article
	scans     []store.Scan
	documents map[string]store.Document
	users     map[string]store.User
	pingErr   error
}

func newFakeData() *fakeData {
	return &fakeData{
		photos:    make(map[string]store.Photo),
		documents: make(map[string]store.Document),
		users:     make(map[string]store.User),
	}
}

func (f *fakeData) ListPhotos(_ context.Context, day *time.Time) ([]store.Photo, error) {
	photos := make([]store.Photo, 0)
	for _, photo := range f.photos {
		if day != nil {
			start := *day
			end := start.Add(24 * time.Hour)
			if photo.CapturedAt.Before(start) || !photo.CapturedAt.Before(end) {
				continue
			}
		}
		photos = append(photos, photo)
	}
	sort.Slice(photos, func(i, j int) bool {
		return photos[i].CapturedAt.After(photos[j].CapturedAt)
	})
	return photos, nil
}

func (f *fakeData) ListPhotosByPosition(_ context.Context, positionCode string) ([]store.Photo, error) {
	photos := make([]store.Photo, 0)
	for _, photo := range f.photos {
		if photo.PositionCode == positionCode {
			photos = append(photos, photo)
		}
	}
	sort.Slice(photos, func(i, j int) bool {
		return photos[i].CapturedAt.After(photos[j].CapturedAt)
	})
	return photos, nil
}

func (f *fakeData) GetPhoto(_ context.Context, photoID string) (store.Photo, error) {
	photo, ok := f.photos[photoID]
	if !ok {
		return store.Photo{}, sql.ErrNoRows
	}
	return photo, nil
}

func (f *fakeData) SetPhotoEditedURL(_ context.Context, photoID string, editedURL *string) error {
	photo, ok := f.photos[photoID]
	if !ok {
		return sql.ErrNoRows
	}
	photo.EditedURL = editedURL
	f.photos[photoID] = photo
	return nil
}

func (f *fakeData) matchArticles(search string) []store.Article {
	if search == "" {
		return f.articles
	}
	needle := strings.ToLower(search)
	matched := make([]store.Article, 0)
	for _, article := range f.articles {
		if strings.Contains(strings.ToLower(article.ArticleNumber), needle) ||
			strings.Contains(strings.ToLower(article.ArticleTextDE), needle) {
			matched = append(matched, article)
		}
	}
	return matched
}

func (f *fakeData) CountArticles(_ context.Context, search string) (int, error) {
	return len(f.matchArticles(search)), nil
}

func (f *fakeData) ListArticles(_ context.Context, search string, offset, limit int) ([]store.Article, error) {
	matched := f.matchArticles(search)
	if offset >= len(matched) {
		return []store.Article{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (f *fakeData) matchScans(filter store.ScanFilter) []store.Scan {
	matched := make([]store.Scan, 0)
	for _, scan := range f.scans {
		if filter.PositionCode != "" && (scan.PositionCode == nil || *scan.PositionCode != filter.PositionCode) {
			continue
		}
		if filter.Status != "" && scan.Status != filter.Status {
			continue
		}
		if filter.DeviceID != "" && scan.DeviceID != filter.DeviceID {
			continue
		}
		matched = append(matched, scan)
	}
	return matched
}

func (f *fakeData) ListScans(_ context.Context, filter store.ScanFilter) ([]store.Scan, error) {
	matched := f.matchScans(filter)
	if len(matched) > store.ScanListLimit {
		matched = matched[:store.ScanListLimit]
	}
	return matched, nil
}

func (f *fakeData) CountScans(_ context.Context, filter store.ScanFilter) (int, error) {
	return len(f.matchScans(filter)), nil
}

func (f *fakeData) CountScansSince(_ context.Context, since time.Time) (int, error) {
	count := 0
	for _, scan := range f.scans {
		if !scan.ScannedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeData) ListScanDevices(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	devices := make([]string, 0)
	for _, scan := range f.scans {
		if !seen[scan.DeviceID] {
			seen[scan.DeviceID] = true
			devices = append(devices, scan.DeviceID)
		}
	}
	sort.Strings(devices)
	return devices, nil
}

func (f *fakeData) ScanCountsByPosition(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, scan := range f.scans {
		if scan.PositionCode != nil {
			counts[*scan.PositionCode]++
		}
	}
	return counts, nil
}

func (f *fakeData) ListDocumentsByPosition(_ context.Context, positionCode string) ([]store.Document, error) {
	documents := make([]store.Document, 0)
	for _, document := range f.documents {
		if document.PositionCode == positionCode {
			documents = append(documents, document)
		}
	}
	return documents, nil
}

func (f *fakeData) GetDocument(_ context.Context, documentID string) (store.Document, error) {
	document, ok := f.documents[documentID]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return document, nil
}

func (f *fakeData) InsertDocument(_ context.Context, item store.Document) error {
	f.documents[item.ID] = item
	return nil
}

func (f *fakeData) UpdateDocumentNotes(_ context.Context, documentID, notes string) error {
	document, ok := f.documents[documentID]
	if !ok {
		return sql.ErrNoRows
	}
	document.Notes = &notes
	f.documents[documentID] = document
	return nil
}

func (f *fakeData) DeleteDocument(_ context.Context, documentID string) error {
	delete(f.documents, documentID)
	return nil
}

func (f *fakeData) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeData) GetUserByID(_ context.Context, id string) (store.User, error) {
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeData) CreateUser(_ context.Context, user store.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeData) Ping(_ context.Context) error {
	return f.pingErr
}

// fakeSessions keeps refresh sessions in a map.
type fakeSessions struct {
	sessions map[string]store.User
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]store.User)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
	f.sessions[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	user, ok := f.sessions[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.sessions, tokenHash)
	return nil
}

// fakeCategories mirrors the category store without Redis.
type fakeCategories struct {
	assignments map[string]string
	valid       map[string]bool
}

func newFakeCategories(valid ...string) *fakeCategories {
	validSet := make(map[string]bool)
	for _, category := range valid {
		validSet[category] = true
	}
	return &fakeCategories{assignments: make(map[string]string), valid: validSet}
}

func (f *fakeCategories) Get(_ context.Context, positionCode string) (string, error) {
	return f.assignments[positionCode], nil
}

func (f *fakeCategories) All(_ context.Context) (map[string]string, error) {
	all := make(map[string]string, len(f.assignments))
	for code, category := range f.assignments {
		all[code] = category
	}
	return all, nil
}

func (f *fakeCategories) Set(_ context.Context, positionCode, category string) error {
	if category == "" {
		delete(f.assignments, positionCode)
		return nil
	}
	if !f.valid[category] {
		return errInvalidCategory
	}
	f.assignments[positionCode] = category
	return nil
}

func (f *fakeCategories) Degraded() bool { return false }

var errInvalidCategory = &DomainError{Status: 400, Code: "INVALID_CATEGORY", Message: "unbekannte Kategorie"}

// fakeBlobs records uploads instead of talking to object storage.
type fakeBlobs struct {
	objects map[string][]byte
	base    string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte), base: "https://blob.test/fruitlog"}
}

func (f *fakeBlobs) Upload(_ context.Context, objectPath string, reader io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	f.objects[objectPath] = data
	return f.base + "/" + objectPath, nil
}

func (f *fakeBlobs) UploadNew(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) (string, error) {
	if _, exists := f.objects[objectPath]; exists {
		return "", errObjectExists
	}
	return f.Upload(ctx, objectPath, reader, size, contentType)
}

func (f *fakeBlobs) Remove(_ context.Context, objectPath string) error {
	delete(f.objects, objectPath)
	return nil
}

func (f *fakeBlobs) PathFromURL(url string) (string, bool) {
	prefix := f.base + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

var errObjectExists = &DomainError{Status: 409, Code: "CONFLICT", Message: "Objekt existiert bereits"}

// fakeEmail records sent messages.
type fakeEmail struct {
	configured bool
	sent       []emailMessage
	sendErr    error
}

type emailMessage struct {
	To          string
	Attachments int
}

func (f *fakeEmail) IsConfigured() bool { return f.configured }

func (f *fakeEmail) Send(_ context.Context, message email.Message) (bool, error) {
	if f.sendErr != nil {
		return false, f.sendErr
	}
	f.sent = append(f.sent, emailMessage{To: message.To, Attachments: len(message.Attachments)})
	return !f.configured, nil
}

// fakeImporter records spreadsheet forwards.
type fakeImporter struct {
	uploads   []string
	uploadErr error
}

func (f *fakeImporter) Upload(_ context.Context, fileName, contentType string, _ []byte) error {
	if err := importer.ValidateUpload(fileName, contentType); err != nil {
		return err
	}
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, fileName)
	return nil
}
