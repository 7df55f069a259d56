package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/ingest"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store/sqlite"
)

type stubVerifier struct{}

func (stubVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if idToken == "valid" {
		return &auth.Token{UID: "user-1"}, nil
	}
	return nil, errors.New("invalid")
}

type stubIngester struct{ userID string }

func (s *stubIngester) Ingest(ctx context.Context, req ingest.Request) (*ingest.Summary, error) {
	s.userID = req.UserID
	return &ingest.Summary{StatementID: "stmt-1", BankFormat: "revolut", Status: "parsed"}, nil
}

func newTestServer(t *testing.T) (http.Handler, *stubIngester) {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ing := &stubIngester{}
	srv := New(Deps{Ingester: ing, Store: st, Verifier: stubVerifier{}, Logger: zerolog.Nop()})
	return srv.Handler(), ing
}

func TestRoutes(t *testing.T) {
	h, ing := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{"health without auth", "GET", "/health", "", "", http.StatusOK},
		{"api requires auth", "GET", "/api/accounts", "", "", http.StatusUnauthorized},
		{"invalid token", "GET", "/api/accounts", "", "nope", http.StatusUnauthorized},
		{"accounts", "GET", "/api/accounts", "", "valid", http.StatusOK},
		{"statements", "GET", "/api/statements", "", "valid", http.StatusOK},
		{"statement not found", "GET", "/api/statements/missing", "", "valid", http.StatusNotFound},
		{"transactions", "GET", "/api/transactions", "", "valid", http.StatusOK},
		{"process statement", "POST", "/api/process-statement", `{"storagePath":"a.csv","accountId":"acc-1"}`, "valid", http.StatusOK},
		{"wrong method", "GET", "/api/process-statement", "", "valid", http.StatusMethodNotAllowed},
		{"preflight", "OPTIONS", "/api/process-statement", "", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}

	assert.Equal(t, "user-1", ing.userID)
}
