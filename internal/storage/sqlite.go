package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// timeLayout sorts lexically in time order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStorage keeps the queryable crawl history
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the history database
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; batch crawls share the handle
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS crawls (
		crawl_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		store_type TEXT NOT NULL,
		title TEXT,
		price TEXT,
		source TEXT,
		image_count INTEGER,
		error TEXT,
		error_kind TEXT,
		elapsed_ms INTEGER,
		crawled_at TEXT NOT NULL,
		product_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_crawls_url ON crawls(url);
	CREATE INDEX IF NOT EXISTS idx_crawls_store_type ON crawls(store_type);
	CREATE INDEX IF NOT EXISTS idx_crawls_crawled_at ON crawls(crawled_at);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// SaveRecord stores one crawl outcome
func (s *SQLiteStorage) SaveRecord(rec types.CrawlRecord) error {
	var productJSON sql.NullString
	if rec.Product != nil {
		data, err := json.Marshal(rec.Product)
		if err != nil {
			return fmt.Errorf("failed to marshal product: %w", err)
		}
		productJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO crawls
		(crawl_id, url, store_type, title, price, source, image_count, error, error_kind, elapsed_ms, crawled_at, product_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		rec.CrawlID,
		rec.URL,
		string(rec.StoreType),
		rec.Title,
		rec.Price,
		rec.Source.String(),
		rec.ImageCount,
		rec.Error,
		rec.ErrorKind,
		rec.Elapsed.Milliseconds(),
		rec.CrawledAt.UTC().Format(timeLayout),
		productJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save crawl: %w", err)
	}
	return nil
}

// Filter narrows QueryRecords. Zero values match everything.
type Filter struct {
	StoreType  types.StoreType
	URL        string
	FailedOnly bool
	Since      time.Time
	Limit      int
}

// QueryRecords returns matching crawls, newest first
func (s *SQLiteStorage) QueryRecords(f Filter) ([]types.CrawlRecord, error) {
	var where []string
	args := make([]interface{}, 0)

	if f.StoreType != "" {
		where = append(where, "store_type = ?")
		args = append(args, string(f.StoreType))
	}
	if f.URL != "" {
		where = append(where, "url = ?")
		args = append(args, f.URL)
	}
	if f.FailedOnly {
		where = append(where, "error IS NOT NULL AND error != ''")
	}
	if !f.Since.IsZero() {
		where = append(where, "crawled_at >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}

	query := "SELECT crawl_id, url, store_type, title, price, source, image_count, error, error_kind, elapsed_ms, crawled_at, product_json FROM crawls"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY crawled_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawls: %w", err)
	}
	defer rows.Close()

	results := make([]types.CrawlRecord, 0)
	for rows.Next() {
		var (
			rec                                    types.CrawlRecord
			storeType, source, crawledAt           string
			title, price, errMsg, errKind, product sql.NullString
			imageCount, elapsedMS                  sql.NullInt64
		)
		err := rows.Scan(
			&rec.CrawlID,
			&rec.URL,
			&storeType,
			&title,
			&price,
			&source,
			&imageCount,
			&errMsg,
			&errKind,
			&elapsedMS,
			&crawledAt,
			&product,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl: %w", err)
		}
		rec.StoreType = types.StoreType(storeType)
		rec.Title = title.String
		rec.Price = price.String
		rec.Source = types.ParseSource(source)
		rec.ImageCount = int(imageCount.Int64)
		rec.Error = errMsg.String
		rec.ErrorKind = errKind.String
		rec.Elapsed = time.Duration(elapsedMS.Int64) * time.Millisecond
		rec.CrawledAt, _ = time.Parse(timeLayout, crawledAt)
		if product.Valid && product.String != "" {
			var p types.ExtractedProduct
			if err := json.Unmarshal([]byte(product.String), &p); err == nil {
				rec.Product = &p
			}
		}
		results = append(results, rec)
	}

	return results, rows.Err()
}

// GetStats returns crawl statistics
func (s *SQLiteStorage) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM crawls").Scan(&total); err != nil {
		return nil, err
	}
	stats["total_crawls"] = total

	var failed int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM crawls WHERE error IS NOT NULL AND error != ''").Scan(&failed); err != nil {
		return nil, err
	}
	stats["failed_crawls"] = failed
	stats["successful_crawls"] = total - failed

	rows, err := s.db.Query("SELECT source, COUNT(*) FROM crawls WHERE error IS NULL OR error = '' GROUP BY source")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bySource := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		bySource[source] = n
	}
	stats["by_source"] = bySource

	return stats, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
