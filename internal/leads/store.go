// Package leads persists finished pipeline results to SQLite. Drafts stored
// here have already been deanonymized and verified (or flagged unverified);
// this is the system of record the CRM reads from.
package leads

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	beaverotel "github.com/Harshalzarikar/Beaver-agent/internal/otel"
)

var tracer = beaverotel.Tracer("github.com/Harshalzarikar/Beaver-agent/internal/leads")

// Lead is one saved pipeline result.
type Lead struct {
	ID          int64     `json:"id"`
	CompanyName string    `json:"company_name"`
	Category    string    `json:"category"`
	EmailDraft  string    `json:"email_draft"`
	Unverified  bool      `json:"unverified"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store wraps the SQLite leads database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the leads database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening leads database: %w", err)
	}

	// email_draft is UNIQUE: reprocessing the same email must not produce
	// duplicate CRM rows.
	schema := `
	CREATE TABLE IF NOT EXISTS leads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		company_name TEXT,
		category TEXT NOT NULL,
		email_draft TEXT UNIQUE,
		unverified INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leads_company_name ON leads(company_name);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating leads schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts a lead. Returns false without error when an identical draft
// already exists.
func (s *Store) Save(ctx context.Context, lead *Lead) (bool, error) {
	ctx, span := tracer.Start(ctx, "leads.save")
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO leads (company_name, category, email_draft, unverified, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		lead.CompanyName, lead.Category, lead.EmailDraft, lead.Unverified, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("saving lead: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("saving lead: %w", err)
	}
	saved := rows > 0
	span.SetAttributes(attribute.Bool("leads.saved", saved))
	if saved {
		log.Info().Str("company", lead.CompanyName).Str("category", lead.Category).Msg("lead_saved")
	} else {
		log.Warn().Str("company", lead.CompanyName).Msg("duplicate_draft_ignored")
	}
	return saved, nil
}

// List returns the most recent leads, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Lead, error) {
	ctx, span := tracer.Start(ctx, "leads.list")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_name, category, email_draft, unverified, created_at
		 FROM leads ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.CompanyName, &l.Category, &l.EmailDraft, &l.Unverified, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lead: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	return out, nil
}

// CountByCompany returns how many leads exist for a company.
func (s *Store) CountByCompany(ctx context.Context, company string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE company_name = ?`, company).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting leads: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
