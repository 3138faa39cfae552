package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
	"github.com/prettygood-work/benefits-chat-demo/internal/store"
)

func deleteRouter(chats *store.ChatStore, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(session.WithUserID(c.Request.Context(), userID))
	})
	handler := &Handler{Chats: chats, Logger: logging.NewLogger()}
	router.DELETE("/chat", handler.HandleDeleteChat)
	return router
}

func TestHandleDeleteChatReturnsDeletedRecord(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	created := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, user_id, title, visibility, created_at FROM chats`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "visibility", "created_at"}).
			AddRow("c-1", "u-1", "Deductible questions", "private", created))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM messages`).WithArgs("c-1").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM stream_handles`).WithArgs("c-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM chats`).WithArgs("c-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodDelete, "/chat?id=c-1", nil)
	w := httptest.NewRecorder()
	deleteRouter(store.NewChatStore(db), "u-1").ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var got store.Chat
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "c-1" || got.Title != "Deductible questions" {
		t.Fatalf("deleted record: got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestHandleDeleteChatForbidsOtherUsers(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, user_id, title, visibility, created_at FROM chats`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "visibility", "created_at"}).
			AddRow("c-1", "u-owner", "Private notes", "private", time.Now()))

	req := httptest.NewRequest(http.MethodDelete, "/chat?id=c-1", nil)
	w := httptest.NewRecorder()
	deleteRouter(store.NewChatStore(db), "u-intruder").ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	// The delete never runs for a foreign chat.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
