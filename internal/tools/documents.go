package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/llm"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
	"github.com/prettygood-work/benefits-chat-demo/internal/store"
)

// DocumentSink is the slice of the document store the artifact tools use.
type DocumentSink interface {
	SaveDocument(ctx context.Context, d store.Document) error
	GetDocument(ctx context.Context, id string) (store.Document, error)
	UpdateDocument(ctx context.Context, id, content string) error
	SaveSuggestions(ctx context.Context, suggestions []store.Suggestion) error
}

type DocumentToolsConfig struct {
	Store    DocumentSink
	Provider llm.Provider
	Logger   logging.Logger
}

// NewDocumentTools returns the three artifact tools. Content is drafted by a
// nested model call without tools.
func NewDocumentTools(cfg DocumentToolsConfig) []Tool {
	return []Tool{
		newCreateDocumentTool(cfg),
		newUpdateDocumentTool(cfg),
		newRequestSuggestionsTool(cfg),
	}
}

var documentKinds = map[string]bool{
	"text":  true,
	"code":  true,
	"sheet": true,
}

type createDocumentArgs struct {
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

func newCreateDocumentTool(cfg DocumentToolsConfig) Tool {
	return Tool{
		Name:        "create_document",
		Description: "Create a document artifact for writing tasks such as benefits summaries or enrollment checklists",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string"},
				"kind": map[string]any{
					"type": "string",
					"enum": []string{"text", "code", "sheet"},
				},
			},
			"required": []string{"title", "kind"},
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in createDocumentArgs
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Title == "" {
				return nil, api.E(api.KindBadRequest, "title is required")
			}
			if !documentKinds[in.Kind] {
				return nil, api.E(api.KindBadRequest, "kind must be text, code or sheet")
			}

			content, err := draftContent(ctx, cfg.Provider, fmt.Sprintf(
				"Write a %s document titled %q for an employee benefits portal. Return only the document body.",
				in.Kind, in.Title))
			if err != nil {
				return nil, err
			}

			doc := store.Document{
				ID:      uuid.New().String(),
				UserID:  session.GetUserID(ctx),
				Title:   in.Title,
				Kind:    in.Kind,
				Content: content,
			}
			if err := cfg.Store.SaveDocument(ctx, doc); err != nil {
				return nil, fmt.Errorf("save document: %w", err)
			}
			return map[string]any{
				"id":    doc.ID,
				"title": doc.Title,
				"kind":  doc.Kind,
			}, nil
		},
	}
}

type updateDocumentArgs struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

func newUpdateDocumentTool(cfg DocumentToolsConfig) Tool {
	return Tool{
		Name:        "update_document",
		Description: "Update an existing document according to a change description",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":          map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"id", "description"},
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in updateDocumentArgs
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}

			doc, err := cfg.Store.GetDocument(ctx, in.ID)
			if errors.Is(err, store.ErrDocumentNotFound) {
				return nil, api.E(api.KindNotFound, "document not found")
			}
			if err != nil {
				return nil, fmt.Errorf("load document: %w", err)
			}

			content, err := draftContent(ctx, cfg.Provider, fmt.Sprintf(
				"Rewrite the following document applying this change: %s\n\n%s\n\nReturn only the updated document body.",
				in.Description, doc.Content))
			if err != nil {
				return nil, err
			}
			if err := cfg.Store.UpdateDocument(ctx, in.ID, content); err != nil {
				return nil, fmt.Errorf("update document: %w", err)
			}
			return map[string]any{
				"id":     doc.ID,
				"title":  doc.Title,
				"status": "updated",
			}, nil
		},
	}
}

type requestSuggestionsArgs struct {
	DocumentID string `json:"documentId"`
}

type suggestionDraft struct {
	OriginalText  string `json:"originalText"`
	SuggestedText string `json:"suggestedText"`
	Description   string `json:"description"`
}

func newRequestSuggestionsTool(cfg DocumentToolsConfig) Tool {
	return Tool{
		Name:        "request_suggestions",
		Description: "Request improvement suggestions for an existing document",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"documentId": map[string]any{"type": "string"},
			},
			"required": []string{"documentId"},
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in requestSuggestionsArgs
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}

			doc, err := cfg.Store.GetDocument(ctx, in.DocumentID)
			if errors.Is(err, store.ErrDocumentNotFound) {
				return nil, api.E(api.KindNotFound, "document not found")
			}
			if err != nil {
				return nil, fmt.Errorf("load document: %w", err)
			}

			raw, err := draftContent(ctx, cfg.Provider, fmt.Sprintf(
				"Suggest up to 5 improvements for the document below. Respond with a JSON array of objects with originalText, suggestedText and description fields and nothing else.\n\n%s",
				doc.Content))
			if err != nil {
				return nil, err
			}

			var drafts []suggestionDraft
			if err := json.Unmarshal([]byte(extractJSONArray(raw)), &drafts); err != nil {
				return nil, api.Wrap(api.KindInternal, "model returned unparseable suggestions", err)
			}

			suggestions := make([]store.Suggestion, 0, len(drafts))
			for _, d := range drafts {
				suggestions = append(suggestions, store.Suggestion{
					ID:            uuid.New().String(),
					DocumentID:    doc.ID,
					OriginalText:  d.OriginalText,
					SuggestedText: d.SuggestedText,
					Description:   d.Description,
				})
			}
			if err := cfg.Store.SaveSuggestions(ctx, suggestions); err != nil {
				return nil, fmt.Errorf("save suggestions: %w", err)
			}
			return map[string]any{
				"documentId":  doc.ID,
				"suggestions": len(suggestions),
			}, nil
		},
	}
}

// draftContent runs a nested completion without tools and collects the text.
func draftContent(ctx context.Context, provider llm.Provider, prompt string) (string, error) {
	if provider == nil {
		return "", api.E(api.KindUpstreamUnavailable, "no model available for document drafting")
	}
	stream, err := provider.Complete(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		return "", api.Wrap(api.KindUpstreamUnavailable, "model unavailable", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", api.Wrap(api.KindUpstreamUnavailable, "model stream failed", err)
		}
		sb.WriteString(chunk.Content)
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractJSONArray trims any prose the model wrapped around a JSON array.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
