package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"fruitlog/api/internal/archive"
	"fruitlog/api/internal/auth"
	"fruitlog/api/internal/authpw"
	"fruitlog/api/internal/catalog"
	"fruitlog/api/internal/catstore"
	"fruitlog/api/internal/config"
	"fruitlog/api/internal/email"
	"fruitlog/api/internal/importer"
	"fruitlog/api/internal/position"
	"fruitlog/api/internal/store"
	"fruitlog/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	ListPhotos(ctx context.Context, day *time.Time) ([]store.Photo, error)
	ListPhotosByPosition(ctx context.Context, positionCode string) ([]store.Photo, error)
	GetPhoto(ctx context.Context, photoID string) (store.Photo, error)
	SetPhotoEditedURL(ctx context.Context, photoID string, editedURL *string) error
	CountArticles(ctx context.Context, search string) (int, error)
	ListArticles(ctx context.Context, search string, offset, limit int) ([]store.Article, error)
	ListScans(ctx context.Context, filter store.ScanFilter) ([]store.Scan, error)
	CountScans(ctx context.Context, filter store.ScanFilter) (int, error)
	CountScansSince(ctx context.Context, since time.Time) (int, error)
	ListScanDevices(ctx context.Context) ([]string, error)
	ScanCountsByPosition(ctx context.Context) (map[string]int, error)
	ListDocumentsByPosition(ctx context.Context, positionCode string) ([]store.Document, error)
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	InsertDocument(ctx context.Context, item store.Document) error
	UpdateDocumentNotes(ctx context.Context, documentID, notes string) error
	DeleteDocument(ctx context.Context, documentID string) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type categoryStore interface {
	Get(ctx context.Context, positionCode string) (string, error)
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, positionCode, category string) error
	Degraded() bool
}

type blobStore interface {
	Upload(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) (string, error)
	UploadNew(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, objectPath string) error
	PathFromURL(url string) (string, bool)
}

type emailSender interface {
	Send(ctx context.Context, message email.Message) (bool, error)
	IsConfigured() bool
}

type articleImporter interface {
	Upload(ctx context.Context, fileName, contentType string, data []byte) error
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   sessionStore
	categories categoryStore
	blobs      blobStore
	email      emailSender
	importer   articleImporter
	archiver   *archive.Builder
	passwords  *authpw.Service
	logger     *log.Logger
}

type Deps struct {
	Store      *store.PostgresStore
	Sessions   sessionStore
	Categories *catstore.Store
	Blobs      blobStore
	Email      *email.Service
	Importer   *importer.Service
	Archiver   *archive.Builder
	Logger     *log.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	archiver := deps.Archiver
	if archiver == nil {
		archiver = archive.NewBuilder(http.DefaultClient, logger)
	}
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		sessions:   deps.Sessions,
		categories: deps.Categories,
		blobs:      deps.Blobs,
		email:      deps.Email,
		importer:   deps.Importer,
		archiver:   archiver,
		passwords:  authpw.NewService(deps.Store),
		logger:     logger,
	}
}

// newServiceForTest wires a service from interfaces, bypassing the
// concrete constructors.
func newServiceForTest(cfg config.Config, data dataStore, sessions sessionStore, categories categoryStore, blobs blobStore, sender emailSender, imp articleImporter, archiver *archive.Builder) *Service {
	if archiver == nil {
		archiver = archive.NewBuilder(http.DefaultClient, nil)
	}
	return &Service{
		cfg:        cfg,
		store:      data,
		sessions:   sessions,
		categories: categories,
		blobs:      blobs,
		email:      sender,
		importer:   imp,
		archiver:   archiver,
		passwords:  authpw.NewService(data),
		logger:     log.Default(),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Sessions

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "E-Mail oder Passwort falsch", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Sitzung abgelaufen", nil)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// ---------------------------------------------------------------------------
// Positions

// PositionFeed builds the per-position overview for a day. A nil day
// means all days.
func (s *Service) PositionFeed(ctx context.Context, day *time.Time) ([]position.Aggregate, error) {
	photos, err := s.store.ListPhotos(ctx, day)
	if err != nil {
		return nil, err
	}
	scanCounts, err := s.store.ScanCountsByPosition(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.categories.All(ctx)
	if err != nil {
		return nil, err
	}
	return position.Build(photos, scanCounts, categories), nil
}

type PositionDetail struct {
	PositionCode string           `json:"positionCode"`
	Category     string           `json:"category,omitempty"`
	Photos       []store.Photo    `json:"photos"`
	Scans        []store.Scan     `json:"scans"`
	Documents    []store.Document `json:"documents"`
}

func (s *Service) PositionDetail(ctx context.Context, positionCode string) (PositionDetail, error) {
	photos, err := s.store.ListPhotosByPosition(ctx, positionCode)
	if err != nil {
		return PositionDetail{}, err
	}
	scans, err := s.store.ListScans(ctx, store.ScanFilter{PositionCode: positionCode})
	if err != nil {
		return PositionDetail{}, err
	}
	documents, err := s.store.ListDocumentsByPosition(ctx, positionCode)
	if err != nil {
		return PositionDetail{}, err
	}
	if len(photos) == 0 && len(scans) == 0 && len(documents) == 0 {
		return PositionDetail{}, domainError(http.StatusNotFound, "NOT_FOUND", "Position nicht gefunden", nil)
	}
	category, err := s.categories.Get(ctx, positionCode)
	if err != nil {
		return PositionDetail{}, err
	}
	return PositionDetail{
		PositionCode: positionCode,
		Category:     category,
		Photos:       photos,
		Scans:        labelScans(scans),
		Documents:    documents,
	}, nil
}

// SetPositionCategory assigns or clears the category of a position. The
// write succeeds even when Redis is down; the store degrades silently.
func (s *Service) SetPositionCategory(ctx context.Context, positionCode, category string) error {
	if positionCode == "" {
		return domainError(http.StatusBadRequest, "INVALID_POSITION", "Positionscode fehlt", nil)
	}
	if err := s.categories.Set(ctx, positionCode, category); err != nil {
		return domainError(http.StatusBadRequest, "INVALID_CATEGORY", err.Error(), map[string]any{
			"allowed": catstore.Categories,
			"labels":  catstore.CategoryLabels,
		})
	}
	return nil
}

func (s *Service) PositionScans(ctx context.Context, positionCode string) ([]store.Scan, error) {
	scans, err := s.store.ListScans(ctx, store.ScanFilter{PositionCode: positionCode})
	if err != nil {
		return nil, err
	}
	return labelScans(scans), nil
}

// PositionArchive streams a zip of the position's photos to w.
func (s *Service) PositionArchive(ctx context.Context, positionCode string, w io.Writer, progress archive.ProgressFunc) (int, error) {
	photos, err := s.store.ListPhotosByPosition(ctx, positionCode)
	if err != nil {
		return 0, err
	}
	if len(photos) == 0 {
		return 0, domainError(http.StatusNotFound, "NOT_FOUND", "Keine Fotos zu dieser Position", nil)
	}
	added, err := s.archiver.WriteZip(ctx, photos, w, progress)
	if err != nil {
		return added, domainError(http.StatusInternalServerError, "ARCHIVE_FAILED", "Download konnte nicht erstellt werden", nil)
	}
	return added, nil
}

// ---------------------------------------------------------------------------
// Photos

func (s *Service) PhotoFeed(ctx context.Context, day *time.Time) ([]store.Photo, error) {
	return s.store.ListPhotos(ctx, day)
}

// SaveEditedPhoto stores an edited rendition and records its URL. Edits
// overwrite previous edits; the original object stays untouched.
func (s *Service) SaveEditedPhoto(ctx context.Context, photoID, contentType string, data []byte) (store.Photo, error) {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return store.Photo{}, err
	}
	if len(data) == 0 {
		return store.Photo{}, domainError(http.StatusBadRequest, "EMPTY_UPLOAD", "Leere Bilddatei", nil)
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	objectPath := fmt.Sprintf("photos/edited/%s%s", photo.ID, extensionForContentType(contentType))
	url, err := s.blobs.Upload(ctx, objectPath, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return store.Photo{}, err
	}
	if err := s.store.SetPhotoEditedURL(ctx, photo.ID, &url); err != nil {
		return store.Photo{}, err
	}
	photo.EditedURL = &url
	return photo, nil
}

// RemoveEditedPhoto deletes the edited rendition and falls back to the
// original.
func (s *Service) RemoveEditedPhoto(ctx context.Context, photoID string) (store.Photo, error) {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return store.Photo{}, err
	}
	if photo.EditedURL == nil || *photo.EditedURL == "" {
		return photo, nil
	}
	if objectPath, ok := s.blobs.PathFromURL(*photo.EditedURL); ok {
		if err := s.blobs.Remove(ctx, objectPath); err != nil {
			s.logger.Printf("photos: remove edited object for %s: %v", photo.ID, err)
		}
	}
	if err := s.store.SetPhotoEditedURL(ctx, photo.ID, nil); err != nil {
		return store.Photo{}, err
	}
	photo.EditedURL = nil
	return photo, nil
}

// ---------------------------------------------------------------------------
// Articles

type ArticleCatalog struct {
	Groups []catalog.CategoryGroup `json:"groups"`
	Stats  catalog.Stats           `json:"stats"`
	Total  int                     `json:"total"`
}

// ArticleCatalogFor loads the matching articles in row batches and
// groups them. The batch loop runs until the declared total is reached,
// so result sets larger than one batch are complete.
func (s *Service) ArticleCatalogFor(ctx context.Context, search string) (ArticleCatalog, error) {
	total, err := s.store.CountArticles(ctx, search)
	if err != nil {
		return ArticleCatalog{}, err
	}

	articles := make([]store.Article, 0, total)
	for offset := 0; offset < total; offset += store.RowBatchSize {
		batch, err := s.store.ListArticles(ctx, search, offset, store.RowBatchSize)
		if err != nil {
			return ArticleCatalog{}, err
		}
		articles = append(articles, batch...)
		if len(batch) < store.RowBatchSize {
			break
		}
	}

	groups := catalog.Group(articles)
	return ArticleCatalog{
		Groups: groups,
		Stats:  catalog.Summarize(groups),
		Total:  total,
	}, nil
}

func (s *Service) ArticleCount(ctx context.Context, search string) (int, error) {
	return s.store.CountArticles(ctx, search)
}

// UploadArticles forwards an article spreadsheet to the import webhook.
func (s *Service) UploadArticles(ctx context.Context, fileName, contentType string, data []byte) error {
	err := s.importer.Upload(ctx, fileName, contentType, data)
	if err == nil {
		return nil
	}
	var invalid *importer.ErrInvalidUpload
	if errors.As(err, &invalid) {
		return domainError(http.StatusBadRequest, "INVALID_UPLOAD", invalid.Reason, nil)
	}
	s.logger.Printf("articles: import upload %s failed: %v", fileName, err)
	return domainError(http.StatusInternalServerError, "IMPORT_FAILED", "Fehler beim Hochladen der Artikeldaten", nil)
}

// ---------------------------------------------------------------------------
// Scans

type ScanList struct {
	Scans   []store.Scan `json:"scans"`
	Total   int          `json:"total"`
	Devices []string     `json:"devices"`
	Limit   int          `json:"limit"`
}

// ScanListFor returns the capped scan list with the uncapped total and
// the device facet. The facet is filter-independent.
func (s *Service) ScanListFor(ctx context.Context, filter store.ScanFilter) (ScanList, error) {
	scans, err := s.store.ListScans(ctx, filter)
	if err != nil {
		return ScanList{}, err
	}
	total, err := s.store.CountScans(ctx, filter)
	if err != nil {
		return ScanList{}, err
	}
	devices, err := s.store.ListScanDevices(ctx)
	if err != nil {
		return ScanList{}, err
	}
	return ScanList{Scans: labelScans(scans), Total: total, Devices: devices, Limit: store.ScanListLimit}, nil
}

// labelScans attaches the render labels for status and problem type.
// Unknown values get the designated defaults instead of failing, so
// rows written by newer app versions still display.
func labelScans(scans []store.Scan) []store.Scan {
	for i := range scans {
		scans[i].StatusLabel = store.ConfigForScanStatus(scans[i].Status).Label
		if scans[i].ProblemType != nil {
			label := store.LabelForProblemType(*scans[i].ProblemType)
			scans[i].ProblemLabel = &label
		}
	}
	return scans
}

func (s *Service) ScanCountToday(ctx context.Context) (int, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.store.CountScansSince(ctx, midnight)
}

// ---------------------------------------------------------------------------
// Documents

type AddDocumentInput struct {
	PositionCode string
	FileName     string
	ContentType  string
	DocumentType store.DocumentType
	Notes        string
	UploadedBy   string
	Data         []byte
}

func (s *Service) AddDocument(ctx context.Context, input AddDocumentInput) (store.Document, error) {
	if input.PositionCode == "" {
		return store.Document{}, domainError(http.StatusBadRequest, "INVALID_POSITION", "Positionscode fehlt", nil)
	}
	if input.FileName == "" || len(input.Data) == 0 {
		return store.Document{}, domainError(http.StatusBadRequest, "EMPTY_UPLOAD", "Leere Datei", nil)
	}
	if input.DocumentType == "" {
		input.DocumentType = store.DocumentOther
	}
	if !store.ValidDocumentType(input.DocumentType) {
		return store.Document{}, domainError(http.StatusBadRequest, "INVALID_DOCUMENT_TYPE", "Unbekannter Dokumenttyp", nil)
	}

	documentID := util.NewID("doc")
	objectPath := fmt.Sprintf("documents/%s/%s_%s", input.PositionCode, documentID, input.FileName)
	url, err := s.blobs.UploadNew(ctx, objectPath, bytes.NewReader(input.Data), int64(len(input.Data)), input.ContentType)
	if err != nil {
		return store.Document{}, err
	}

	document := store.Document{
		ID:           documentID,
		PositionCode: input.PositionCode,
		FileURL:      url,
		FileName:     input.FileName,
		FileType:     input.ContentType,
		FileSize:     int64(len(input.Data)),
		DocumentType: input.DocumentType,
		UploadedAt:   time.Now(),
	}
	if input.Notes != "" {
		document.Notes = &input.Notes
	}
	if input.UploadedBy != "" {
		document.UploadedBy = &input.UploadedBy
	}
	if err := s.store.InsertDocument(ctx, document); err != nil {
		return store.Document{}, err
	}
	return document, nil
}

func (s *Service) PositionDocuments(ctx context.Context, positionCode string) ([]store.Document, error) {
	return s.store.ListDocumentsByPosition(ctx, positionCode)
}

func (s *Service) UpdateDocumentNotes(ctx context.Context, documentID, notes string) (store.Document, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return store.Document{}, err
	}
	if err := s.store.UpdateDocumentNotes(ctx, documentID, notes); err != nil {
		return store.Document{}, err
	}
	return s.store.GetDocument(ctx, documentID)
}

func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	document, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if objectPath, ok := s.blobs.PathFromURL(document.FileURL); ok {
		if err := s.blobs.Remove(ctx, objectPath); err != nil {
			s.logger.Printf("documents: remove object for %s: %v", documentID, err)
		}
	}
	return s.store.DeleteDocument(ctx, documentID)
}

// ---------------------------------------------------------------------------
// Email

type SendEmailInput struct {
	To       string   `json:"to"`
	Note     string   `json:"note"`
	PhotoIDs []string `json:"photoIds"`
}

type SendEmailResult struct {
	Sent      int  `json:"sent"`
	Skipped   int  `json:"skipped"`
	Simulated bool `json:"simulated"`
}

// SendPhotoEmail fetches the selected photos and mails them through the
// webhook. Photos that cannot be fetched are skipped; the send fails
// only when nothing could be attached.
func (s *Service) SendPhotoEmail(ctx context.Context, input SendEmailInput) (SendEmailResult, error) {
	if !email.ValidRecipient(input.To) {
		return SendEmailResult{}, domainError(http.StatusBadRequest, "INVALID_RECIPIENT", "Ungültige E-Mail-Adresse", nil)
	}
	if len(input.PhotoIDs) == 0 {
		return SendEmailResult{}, domainError(http.StatusBadRequest, "NO_PHOTOS", "Mindestens ein Foto auswählen", nil)
	}

	attachments := make([]email.Attachment, 0, len(input.PhotoIDs))
	positionCode := ""
	skipped := 0
	for i, photoID := range input.PhotoIDs {
		photo, err := s.store.GetPhoto(ctx, photoID)
		if err != nil {
			s.logger.Printf("email: photo %s not found, skipping: %v", photoID, err)
			skipped++
			continue
		}
		if positionCode == "" {
			positionCode = photo.PositionCode
		}
		body, err := s.archiver.FetchOne(ctx, photo.DisplayURL())
		if err != nil {
			s.logger.Printf("email: fetch photo %s failed, skipping: %v", photoID, err)
			skipped++
			continue
		}
		attachments = append(attachments, email.Attachment{
			FileName:    fmt.Sprintf("%s_%02d.jpg", positionCode, i+1),
			Content:     base64.StdEncoding.EncodeToString(body),
			ContentType: "image/jpeg",
		})
	}

	if len(attachments) == 0 {
		return SendEmailResult{}, domainError(http.StatusInternalServerError, "EMAIL_FAILED", "Kein Foto konnte geladen werden", nil)
	}

	htmlBody, err := email.RenderPhotoMail(email.PhotoMailData{
		PositionCode: positionCode,
		PhotoCount:   len(attachments),
		Note:         input.Note,
	})
	if err != nil {
		return SendEmailResult{}, err
	}

	simulated, err := s.email.Send(ctx, email.Message{
		To:          input.To,
		Subject:     fmt.Sprintf("Wareneingang %s", positionCode),
		Body:        htmlBody,
		Attachments: attachments,
	})
	if err != nil {
		s.logger.Printf("email: send to %s failed: %v", input.To, err)
		return SendEmailResult{}, domainError(http.StatusInternalServerError, "EMAIL_FAILED", "E-Mail konnte nicht versendet werden", nil)
	}

	return SendEmailResult{Sent: len(attachments), Skipped: skipped, Simulated: simulated}, nil
}

func extensionForContentType(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
