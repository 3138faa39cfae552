package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrDocumentNotFound = errors.New("document not found")

type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Suggestion struct {
	ID            string `json:"id"`
	DocumentID    string `json:"documentId"`
	OriginalText  string `json:"originalText"`
	SuggestedText string `json:"suggestedText"`
	Description   string `json:"description,omitempty"`
}

type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) SaveDocument(ctx context.Context, d Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, title, kind, content) VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.UserID, d.Title, d.Kind, d.Content,
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *DocumentStore) GetDocument(ctx context.Context, id string) (Document, error) {
	var d Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, kind, COALESCE(content, ''), created_at FROM documents WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.UserID, &d.Title, &d.Kind, &d.Content, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *DocumentStore) UpdateDocument(ctx context.Context, id, content string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET content = $2 WHERE id = $1`,
		id, content,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *DocumentStore) SaveSuggestions(ctx context.Context, suggestions []Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, sg := range suggestions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO suggestions (id, document_id, original_text, suggested_text, description)
			 VALUES ($1, $2, $3, $4, $5)`,
			sg.ID, sg.DocumentID, sg.OriginalText, sg.SuggestedText, sg.Description,
		); err != nil {
			return fmt.Errorf("save suggestion: %w", err)
		}
	}
	return tx.Commit()
}
