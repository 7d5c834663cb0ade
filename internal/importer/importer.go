// Package importer forwards uploaded article spreadsheets to the
// automation webhook that parses them and refreshes the article master
// data.
package importer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidUpload marks client-side upload mistakes. Callers map it to
// a 400; everything else from Upload is a server-side failure.
type ErrInvalidUpload struct {
	Reason string
}

func (e *ErrInvalidUpload) Error() string {
	return e.Reason
}

var spreadsheetContentTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel": true,
}

// ValidateUpload accepts a file when either the extension or the
// declared MIME type identifies a spreadsheet. Browsers regularly get
// one of the two wrong, so requiring both would reject real uploads.
func ValidateUpload(fileName, contentType string) error {
	extension := strings.ToLower(filepath.Ext(fileName))
	extensionOK := extension == ".xlsx" || extension == ".xls"
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !extensionOK && !spreadsheetContentTypes[mediaType] {
		return &ErrInvalidUpload{Reason: "Ungültiges Dateiformat. Nur Excel-Dateien (.xlsx, .xls) erlaubt."}
	}
	return nil
}

type Service struct {
	webhookURL string
	client     *http.Client
	logger     *log.Logger
}

func NewService(webhookURL string, timeout time.Duration, logger *log.Logger) *Service {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Service{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func NewServiceWithClient(webhookURL string, client *http.Client, logger *log.Logger) *Service {
	return &Service{webhookURL: webhookURL, client: client, logger: logger}
}

type uploadPayload struct {
	FileName   string    `json:"fileName"`
	FileBase64 string    `json:"fileBase64"`
	FileSize   int64     `json:"fileSize"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Upload validates the spreadsheet and posts it base64 encoded to the
// webhook. The webhook does the parsing; this side never opens the
// file.
func (s *Service) Upload(ctx context.Context, fileName, contentType string, data []byte) error {
	if err := ValidateUpload(fileName, contentType); err != nil {
		return err
	}
	if len(data) == 0 {
		return &ErrInvalidUpload{Reason: "Leere Datei"}
	}
	if s.webhookURL == "" {
		return fmt.Errorf("kein Import-Webhook konfiguriert")
	}

	payload, err := json.Marshal(uploadPayload{
		FileName:   fileName,
		FileBase64: base64.StdEncoding.EncodeToString(data),
		FileSize:   int64(len(data)),
		UploadedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal upload payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("post import webhook: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("import webhook returned status %d", response.StatusCode)
	}
	if s.logger != nil {
		s.logger.Printf("importer: forwarded %s (%d bytes)", fileName, len(data))
	}
	return nil
}
