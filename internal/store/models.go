package store

import "time"

type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Photo is one captured image of an incoming goods position. ImageURL is
// the immutable original; EditedURL, when set, supersedes it for display
// and export.
type Photo struct {
	ID           string    `json:"id"`
	PositionCode string    `json:"positionCode"`
	ImageURL     string    `json:"imageUrl"`
	EditedURL    *string   `json:"editedUrl"`
	UserDevice   *string   `json:"userDevice"`
	CapturedAt   time.Time `json:"capturedAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DisplayURL returns the edited image when one exists, the original
// otherwise.
func (p Photo) DisplayURL() string {
	if p.EditedURL != nil && *p.EditedURL != "" {
		return *p.EditedURL
	}
	return p.ImageURL
}

type Article struct {
	ID              string    `json:"id"`
	ArticleNumber   string    `json:"articleNumber"`
	ArticleTextDE   string    `json:"articleTextDe"`
	LabelTextDE     *string   `json:"labelTextDe"`
	LabelTextFR     *string   `json:"labelTextFr"`
	LabelTextIT     *string   `json:"labelTextIt"`
	Category        *string   `json:"category"`
	Genus           *string   `json:"genus"`
	ProductCategory *string   `json:"productCategory"`
	Branding        *string   `json:"branding"`
	CoBranding      *string   `json:"coBranding"`
	GtinCU          *string   `json:"gtinCu"`
	GtinTU          *string   `json:"gtinTu"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type ScanStatus string

const (
	ScanStatusOK      ScanStatus = "ok"
	ScanStatusProblem ScanStatus = "problem"
	ScanStatusPending ScanStatus = "pending"
)

// ScanStatusConfig carries the render metadata for a scan status. Unknown
// values fall back to DefaultScanStatusConfig instead of failing.
type ScanStatusConfig struct {
	Value ScanStatus `json:"value"`
	Label string     `json:"label"`
}

var ScanStatusConfigs = []ScanStatusConfig{
	{Value: ScanStatusOK, Label: "OK"},
	{Value: ScanStatusProblem, Label: "Problem"},
	{Value: ScanStatusPending, Label: "Ausstehend"},
}

var DefaultScanStatusConfig = ScanStatusConfig{Value: ScanStatusPending, Label: "Ausstehend"}

func ConfigForScanStatus(status ScanStatus) ScanStatusConfig {
	for _, c := range ScanStatusConfigs {
		if c.Value == status {
			return c
		}
	}
	return DefaultScanStatusConfig
}

type ProblemType string

const (
	ProblemWrongArticle  ProblemType = "wrong_article"
	ProblemWrongQuantity ProblemType = "wrong_quantity"
	ProblemDamaged       ProblemType = "damaged"
	ProblemQualityIssue  ProblemType = "quality_issue"
	ProblemMissing       ProblemType = "missing"
	ProblemOther         ProblemType = "other"
)

var ProblemTypeLabels = map[ProblemType]string{
	ProblemWrongArticle:  "Falsche Ware",
	ProblemWrongQuantity: "Falsche Menge",
	ProblemDamaged:       "Beschädigt",
	ProblemQualityIssue:  "Qualitätsmangel",
	ProblemMissing:       "Fehlend",
	ProblemOther:         "Sonstiges",
}

// LabelForProblemType maps unknown values to the designated default entry
// rather than failing.
func LabelForProblemType(problemType ProblemType) string {
	if label, ok := ProblemTypeLabels[problemType]; ok {
		return label
	}
	return ProblemTypeLabels[ProblemOther]
}

// Scan is a barcode read event from the mobile app. Article is non-nil
// exactly when the scanned GTIN matched an article at ingest time; an
// unmatched GTIN is a normal state, not an error.
type Scan struct {
	ID           string       `json:"id"`
	PositionCode *string      `json:"positionCode"`
	DeviceID     string       `json:"deviceId"`
	DeviceName   *string      `json:"deviceName"`
	Gtin         string       `json:"gtin"`
	ArticleID    *string      `json:"articleId"`
	Article      *Article     `json:"article,omitempty"`
	Status       ScanStatus   `json:"status"`
	StatusLabel  string       `json:"statusLabel"`
	ProblemLabel *string      `json:"problemLabel,omitempty"`
	Weight       *float64     `json:"weight"`
	Notes        *string      `json:"notes"`
	PhotoURL     *string      `json:"photoUrl"`
	ProblemType  *ProblemType `json:"problemType"`
	ScannedAt    time.Time    `json:"scannedAt"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// ScanFilter combines with AND semantics; zero-valued fields are ignored.
type ScanFilter struct {
	Search       string
	Status       ScanStatus
	DeviceID     string
	PositionCode string
	DateFrom     *time.Time
	DateTo       *time.Time
}

type DocumentType string

const (
	DocumentReceivingReport DocumentType = "wareneingangsprotokoll"
	DocumentDeliveryNote    DocumentType = "lieferschein"
	DocumentInvoice         DocumentType = "rechnung"
	DocumentComplaint       DocumentType = "reklamation"
	DocumentOther           DocumentType = "sonstiges"
)

var documentTypes = map[DocumentType]struct{}{
	DocumentReceivingReport: {},
	DocumentDeliveryNote:    {},
	DocumentInvoice:         {},
	DocumentComplaint:       {},
	DocumentOther:           {},
}

func ValidDocumentType(documentType DocumentType) bool {
	_, ok := documentTypes[documentType]
	return ok
}

type Document struct {
	ID           string       `json:"id"`
	PositionCode string       `json:"positionCode"`
	FileURL      string       `json:"fileUrl"`
	FileName     string       `json:"fileName"`
	FileType     string       `json:"fileType"`
	FileSize     int64        `json:"fileSize"`
	DocumentType DocumentType `json:"documentType"`
	Notes        *string      `json:"notes"`
	UploadedAt   time.Time    `json:"uploadedAt"`
	UploadedBy   *string      `json:"uploadedBy"`
}
