package api

import (
	"bytes"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/testutil"
	"github.com/stretchr/testify/assert"
)

var errNoRows = sql.ErrNoRows

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &VibesApp{
		log: testutil.TestLogger(t),
	}

	app.log.SetOutput(buf)

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	app.errorHandler(panicHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: test panic")

	body := decodeBody[ApiError](t, rr)
	assert.Equal(t, "internal server error", body.Message)
}

func TestErrorHandler_NonErrorPanic(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &VibesApp{log: testutil.TestLogger(t)}
	app.log.SetOutput(buf)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("string panic")
	})).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "panic: string panic")
}

func TestErrorHandler_NoPanic(t *testing.T) {
	app := &VibesApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	app.errorHandler(okHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func TestAuthMiddleware(t *testing.T) {
	app := NewVibesApp(http.NewServeMux(), testutil.TestLogger(t), nil, nil, Services{}, testConfig())
	app.log.SetOutput(&bytes.Buffer{})

	var gotUserId int
	tokenHandler := func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		if !ok {
			return
		}
		gotUserId = userId
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}

	validToken, err := app.createJwtForSession(7, defaultJwtExpiration)
	assert.NoError(t, err)

	expiredToken, err := app.createJwtForSession(7, -time.Hour)
	assert.NoError(t, err)

	otherApp := &VibesApp{signingKey: []byte("another-key")}
	foreignToken, err := otherApp.createJwtForSession(7, defaultJwtExpiration)
	assert.NoError(t, err)

	tcases := []struct {
		name       string
		cookie     *http.Cookie
		statusCode int
	}{
		{
			name:       "valid token",
			cookie:     createJwtCookie(validToken, defaultJwtExpiration),
			statusCode: http.StatusOK,
		},
		{
			name:       "missing token",
			statusCode: http.StatusUnauthorized,
		},
		{
			name:       "malformed token",
			cookie:     createJwtCookie("not-a-jwt", defaultJwtExpiration),
			statusCode: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			cookie:     createJwtCookie(expiredToken, defaultJwtExpiration),
			statusCode: http.StatusUnauthorized,
		},
		{
			name:       "token signed with another key",
			cookie:     createJwtCookie(foreignToken, defaultJwtExpiration),
			statusCode: http.StatusUnauthorized,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			gotUserId = 0
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}

			app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

			assert.Equal(t, tc.statusCode, rr.Code)
			if tc.statusCode == http.StatusOK {
				assert.Equal(t, 7, gotUserId)
				assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
			} else {
				assert.Zero(t, gotUserId)
			}
		})
	}
}

func TestAdminMiddleware(t *testing.T) {
	tcases := []struct {
		name       string
		user       database.User
		mockErr    error
		statusCode int
	}{
		{
			name:       "admin is allowed",
			user:       database.User{Id: 1, IsAdmin: true},
			statusCode: http.StatusOK,
		},
		{
			name:       "regular user is forbidden",
			user:       database.User{Id: 1},
			statusCode: http.StatusForbidden,
		},
		{
			name:       "unknown user",
			mockErr:    errNoRows,
			statusCode: http.StatusNotFound,
		},
		{
			name:       "db error",
			mockErr:    errors.New("db error"),
			statusCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockVibeRepository{}
			defer db.AssertExpectations(t)
			db.On("GetAccountById", 1).Return(tc.user, tc.mockErr).Once()

			app := &VibesApp{log: testutil.TestLogger(t), db: db}
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithUserId(req.Context(), 1))

			app.adminMiddleware(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}).ServeHTTP(rr, req)

			assert.Equal(t, tc.statusCode, rr.Code)
		})
	}
}

func TestAdminMiddleware_NoUser(t *testing.T) {
	app := &VibesApp{log: testutil.TestLogger(t)}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	app.adminMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
