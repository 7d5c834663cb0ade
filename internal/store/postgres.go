package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RowBatchSize is the per-request row cap of the record store. Article
// consumers loop in batches of this size until the declared total count
// is reached.
const RowBatchSize = 1000

// ScanListLimit caps scan list responses; the total count is reported
// independently of the cap.
const ScanListLimit = 100

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Photos

const photoColumns = `id, position_code, image_url, edited_url, user_device, captured_at, created_at`

func scanPhotoRow(rows *sql.Rows) (Photo, error) {
	var item Photo
	err := rows.Scan(
		&item.ID,
		&item.PositionCode,
		&item.ImageURL,
		&item.EditedURL,
		&item.UserDevice,
		&item.CapturedAt,
		&item.CreatedAt,
	)
	return item, err
}

// ListPhotos returns photos ordered by captured_at descending. When day is
// non-nil only photos captured on that calendar day are returned.
func (s *PostgresStore) ListPhotos(ctx context.Context, day *time.Time) ([]Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos ORDER BY captured_at DESC`
	args := []any{}
	if day != nil {
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		end := start.Add(24*time.Hour - time.Millisecond)
		query = `SELECT ` + photoColumns + ` FROM photos WHERE captured_at >= $1 AND captured_at <= $2 ORDER BY captured_at DESC`
		args = append(args, start, end)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	items := make([]Photo, 0)
	for rows.Next() {
		item, err := scanPhotoRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListPhotosByPosition(ctx context.Context, positionCode string) ([]Photo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+photoColumns+`
		FROM photos
		WHERE position_code=$1
		ORDER BY captured_at DESC
	`, positionCode)
	if err != nil {
		return nil, fmt.Errorf("list photos by position: %w", err)
	}
	defer rows.Close()

	items := make([]Photo, 0)
	for rows.Next() {
		item, err := scanPhotoRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPhoto(ctx context.Context, photoID string) (Photo, error) {
	var item Photo
	err := s.db.QueryRowContext(ctx, `
		SELECT `+photoColumns+` FROM photos WHERE id=$1
	`, photoID).Scan(
		&item.ID,
		&item.PositionCode,
		&item.ImageURL,
		&item.EditedURL,
		&item.UserDevice,
		&item.CapturedAt,
		&item.CreatedAt,
	)
	if err != nil {
		return Photo{}, err
	}
	return item, nil
}

// SetPhotoEditedURL sets or clears the edited image URL. The original
// image_url is never touched.
func (s *PostgresStore) SetPhotoEditedURL(ctx context.Context, photoID string, editedURL *string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE photos SET edited_url=$2 WHERE id=$1`, photoID, editedURL)
	if err != nil {
		return fmt.Errorf("set photo edited url: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Articles

// articleSearchClause matches the search term case-insensitively across
// the eight named article fields, OR-combined. An empty term matches
// everything.
const articleSearchClause = `
	($1 = '' OR
		article_number ILIKE '%' || $1 || '%' OR
		article_text_de ILIKE '%' || $1 || '%' OR
		label_text_de ILIKE '%' || $1 || '%' OR
		gtin_cu ILIKE '%' || $1 || '%' OR
		gtin_tu ILIKE '%' || $1 || '%' OR
		category ILIKE '%' || $1 || '%' OR
		genus ILIKE '%' || $1 || '%' OR
		product_category ILIKE '%' || $1 || '%')
`

func (s *PostgresStore) CountArticles(ctx context.Context, search string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE `+articleSearchClause, search).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

// ListArticles returns one batch of matching articles ordered by the
// taxonomy (nulls last), then article number. limit is clamped to
// RowBatchSize.
func (s *PostgresStore) ListArticles(ctx context.Context, search string, offset, limit int) ([]Article, error) {
	if limit <= 0 || limit > RowBatchSize {
		limit = RowBatchSize
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, article_number, article_text_de, label_text_de, label_text_fr, label_text_it,
			category, genus, product_category, branding, co_branding, gtin_cu, gtin_tu,
			created_at, updated_at
		FROM articles
		WHERE `+articleSearchClause+`
		ORDER BY category ASC NULLS LAST, genus ASC NULLS LAST, product_category ASC NULLS LAST, article_number ASC
		OFFSET $2 LIMIT $3
	`, search, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	items := make([]Article, 0)
	for rows.Next() {
		var item Article
		if err := rows.Scan(
			&item.ID,
			&item.ArticleNumber,
			&item.ArticleTextDE,
			&item.LabelTextDE,
			&item.LabelTextFR,
			&item.LabelTextIT,
			&item.Category,
			&item.Genus,
			&item.ProductCategory,
			&item.Branding,
			&item.CoBranding,
			&item.GtinCU,
			&item.GtinTU,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Scans

func scanFilterClauses(filter ScanFilter) (string, []any) {
	where := `($1 = '' OR
		s.gtin ILIKE '%' || $1 || '%' OR
		s.device_id ILIKE '%' || $1 || '%' OR
		s.device_name ILIKE '%' || $1 || '%' OR
		s.notes ILIKE '%' || $1 || '%')
		AND ($2 = '' OR s.scan_status = $2)
		AND ($3 = '' OR s.device_id = $3)
		AND ($4 = '' OR s.position_code = $4)
		AND ($5::timestamptz IS NULL OR s.scanned_at >= $5)
		AND ($6::timestamptz IS NULL OR s.scanned_at <= $6)`

	var from, to any
	if filter.DateFrom != nil {
		d := *filter.DateFrom
		from = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	}
	if filter.DateTo != nil {
		d := *filter.DateTo
		to = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location()).Add(24*time.Hour - time.Millisecond)
	}
	return where, []any{filter.Search, string(filter.Status), filter.DeviceID, filter.PositionCode, from, to}
}

// ListScans returns matching scans newest first, each carrying the joined
// article when the scanned GTIN resolved to one. The list is capped at
// ScanListLimit; CountScans reports the uncapped total.
func (s *PostgresStore) ListScans(ctx context.Context, filter ScanFilter) ([]Scan, error) {
	where, args := scanFilterClauses(filter)
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.position_code, s.device_id, s.device_name, s.gtin, s.article_id,
			s.scan_status, s.weight, s.notes, s.photo_url, s.problem_type, s.scanned_at, s.created_at,
			a.id, a.article_number, a.article_text_de, a.label_text_de, a.label_text_fr, a.label_text_it,
			a.category, a.genus, a.product_category, a.branding, a.co_branding, a.gtin_cu, a.gtin_tu,
			a.created_at, a.updated_at
		FROM scans s
		LEFT JOIN articles a ON a.id = s.article_id
		WHERE `+where+`
		ORDER BY s.scanned_at DESC
		LIMIT `+fmt.Sprint(ScanListLimit)+`
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	items := make([]Scan, 0)
	for rows.Next() {
		var item Scan
		var status string
		var problemType *string
		var articleID, articleNumber, articleText sql.NullString
		var articleCreated, articleUpdated sql.NullTime
		var article Article
		if err := rows.Scan(
			&item.ID,
			&item.PositionCode,
			&item.DeviceID,
			&item.DeviceName,
			&item.Gtin,
			&item.ArticleID,
			&status,
			&item.Weight,
			&item.Notes,
			&item.PhotoURL,
			&problemType,
			&item.ScannedAt,
			&item.CreatedAt,
			&articleID,
			&articleNumber,
			&articleText,
			&article.LabelTextDE,
			&article.LabelTextFR,
			&article.LabelTextIT,
			&article.Category,
			&article.Genus,
			&article.ProductCategory,
			&article.Branding,
			&article.CoBranding,
			&article.GtinCU,
			&article.GtinTU,
			&articleCreated,
			&articleUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		item.Status = ScanStatus(status)
		if problemType != nil {
			pt := ProblemType(*problemType)
			item.ProblemType = &pt
		}
		if articleID.Valid {
			article.ID = articleID.String
			article.ArticleNumber = articleNumber.String
			article.ArticleTextDE = articleText.String
			article.CreatedAt = articleCreated.Time
			article.UpdatedAt = articleUpdated.Time
			item.Article = &article
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountScans(ctx context.Context, filter ScanFilter) (int, error) {
	where, args := scanFilterClauses(filter)
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans s WHERE `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count scans: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountScansSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans WHERE scanned_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count scans since: %w", err)
	}
	return count, nil
}

// ListScanDevices returns the distinct device names (falling back to the
// device id) across all scans, for filter UI population. Deliberately
// unaffected by any current filter.
func (s *PostgresStore) ListScanDevices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT COALESCE(NULLIF(device_name, ''), device_id)
		FROM scans
		WHERE device_id <> ''
		ORDER BY 1 ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list scan devices: %w", err)
	}
	defer rows.Close()

	items := make([]string, 0)
	for rows.Next() {
		var device string
		if err := rows.Scan(&device); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		items = append(items, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return items, nil
}

// ScanCountsByPosition returns the scan count per position code. Codes
// are matched exactly as stored; no trimming or case folding.
func (s *PostgresStore) ScanCountsByPosition(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_code, COUNT(*)::int
		FROM scans
		WHERE position_code IS NOT NULL
		GROUP BY position_code
	`)
	if err != nil {
		return nil, fmt.Errorf("scan counts by position: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, fmt.Errorf("scan position count: %w", err)
		}
		counts[code] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position counts: %w", err)
	}
	return counts, nil
}

// ---------------------------------------------------------------------------
// Documents

const documentColumns = `id, position_code, file_url, file_name, file_type, file_size, document_type, notes, uploaded_at, uploaded_by`

func (s *PostgresStore) ListDocumentsByPosition(ctx context.Context, positionCode string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE position_code=$1
		ORDER BY uploaded_at DESC
	`, positionCode)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		var documentType string
		if err := rows.Scan(
			&item.ID,
			&item.PositionCode,
			&item.FileURL,
			&item.FileName,
			&item.FileType,
			&item.FileSize,
			&documentType,
			&item.Notes,
			&item.UploadedAt,
			&item.UploadedBy,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		item.DocumentType = DocumentType(documentType)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var item Document
	var documentType string
	err := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE id=$1
	`, documentID).Scan(
		&item.ID,
		&item.PositionCode,
		&item.FileURL,
		&item.FileName,
		&item.FileType,
		&item.FileSize,
		&documentType,
		&item.Notes,
		&item.UploadedAt,
		&item.UploadedBy,
	)
	if err != nil {
		return Document{}, err
	}
	item.DocumentType = DocumentType(documentType)
	return item, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, position_code, file_url, file_name, file_type, file_size, document_type, notes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.PositionCode, item.FileURL, item.FileName, item.FileType, item.FileSize, string(item.DocumentType), item.Notes, item.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentNotes(ctx context.Context, documentID, notes string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET notes=$2 WHERE id=$1`, documentID, notes)
	if err != nil {
		return fmt.Errorf("update document notes: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Users

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
