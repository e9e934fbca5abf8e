package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/resettoken"
	"github.com/npezzotti/go-vibes/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type recordingMailer struct {
	to, name, link string
	calls          int
	err            error
}

func (m *recordingMailer) SendPasswordReset(to, name, link string) error {
	m.calls++
	m.to, m.name, m.link = to, name, link
	return m.err
}

func newTestResetStore(t *testing.T) (*miniredis.Miniredis, *resettoken.Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, resettoken.NewStore(client, time.Hour)
}

func TestCreateAccount(t *testing.T) {
	now := time.Now().UTC()
	expectedUser := database.User{
		Id:           1,
		EmailAddress: "newuser@example.com",
		DisplayName:  "New User",
		PasswordHash: "hashedpassword",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tcases := []struct {
		name       string
		body       any
		callDb     bool
		mockErr    error
		statusCode int
		message    string
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Email:       " newuser@example.com ",
				Password:    "password",
				DisplayName: "New User",
			},
			callDb:     true,
			statusCode: http.StatusCreated,
		},
		{
			name:       "invalid json body",
			body:       "invalid json",
			statusCode: http.StatusBadRequest,
			message:    "bad request",
		},
		{
			name:       "missing display name",
			body:       RegisterRequest{Email: "newuser@example.com", Password: "password"},
			statusCode: http.StatusBadRequest,
			message:    "email, password and display name are required",
		},
		{
			name:       "invalid email",
			body:       RegisterRequest{Email: "not-an-email", Password: "password", DisplayName: "New User"},
			statusCode: http.StatusBadRequest,
			message:    "invalid email address",
		},
		{
			name:       "short password",
			body:       RegisterRequest{Email: "newuser@example.com", Password: "12345", DisplayName: "New User"},
			statusCode: http.StatusBadRequest,
			message:    "password must be at least 6 characters",
		},
		{
			name: "email already registered",
			body: RegisterRequest{
				Email:       "newuser@example.com",
				Password:    "password",
				DisplayName: "New User",
			},
			callDb:     true,
			mockErr:    &pq.Error{Code: "23505"},
			statusCode: http.StatusConflict,
			message:    "an account with this email already exists",
		},
		{
			name: "db error",
			body: RegisterRequest{
				Email:       "newuser@example.com",
				Password:    "password",
				DisplayName: "New User",
			},
			callDb:     true,
			mockErr:    errors.New("db error"),
			statusCode: http.StatusInternalServerError,
			message:    "internal server error",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, db := newTestApp(t, Services{})
			if tc.callDb {
				db.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
					return p.EmailAddress == "newuser@example.com" &&
						p.DisplayName == "New User" &&
						verifyPassword(p.PasswordHash, "password")
				})).Return(expectedUser, tc.mockErr).Once()
			}

			rr := doRequest(t, app, http.MethodPost, "/api/auth/register", tc.body, 0)

			assert.Equal(t, tc.statusCode, rr.Code)
			if tc.statusCode == http.StatusCreated {
				u := decodeBody[types.User](t, rr)
				assert.Equal(t, expectedUser.Id, u.Id)
				assert.Equal(t, expectedUser.EmailAddress, u.EmailAddress)
				assert.Equal(t, expectedUser.DisplayName, u.DisplayName)
				assert.False(t, u.IsAdmin)
				assert.NotContains(t, rr.Body.String(), "hashedpassword")
			} else {
				assert.Equal(t, tc.message, decodeBody[ApiError](t, rr).Message)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	hash, err := hashPassword("password")
	assert.NoError(t, err)

	dbUser := database.User{
		Id:           1,
		EmailAddress: "test@example.com",
		DisplayName:  "Test",
		PasswordHash: hash,
		IsAdmin:      true,
	}

	t.Run("success", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("GetAccountByEmail", "test@example.com").Return(dbUser, nil).Once()
		db.On("UpdateUserStatus", 1, true).Return(nil).Once()

		rr := doRequest(t, app, http.MethodPost, "/api/auth/login", LoginRequest{Email: "test@example.com", Password: "password"}, 0)

		assert.Equal(t, http.StatusOK, rr.Code)
		cookie := findCookie(rr, tokenCookieKey)
		if assert.NotNil(t, cookie, "expected session cookie") {
			userId, err := app.extractUserIdFromToken(cookie.Value)
			assert.NoError(t, err)
			assert.Equal(t, 1, userId)
			assert.True(t, cookie.HttpOnly)
		}

		u := decodeBody[types.User](t, rr)
		assert.True(t, u.IsAdmin)
		assert.True(t, u.Online)
	})

	t.Run("status update failure does not block login", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("GetAccountByEmail", "test@example.com").Return(dbUser, nil).Once()
		db.On("UpdateUserStatus", 1, true).Return(errors.New("db error")).Once()

		rr := doRequest(t, app, http.MethodPost, "/api/auth/login", LoginRequest{Email: "test@example.com", Password: "password"}, 0)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotNil(t, findCookie(rr, tokenCookieKey))
	})

	tcases := []struct {
		name       string
		body       any
		mockUser   *database.User
		mockErr    error
		statusCode int
	}{
		{
			name:       "missing password",
			body:       LoginRequest{Email: "test@example.com"},
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       "{",
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "unknown email",
			body:       LoginRequest{Email: "test@example.com", Password: "password"},
			mockUser:   &database.User{},
			mockErr:    errNoRows,
			statusCode: http.StatusUnauthorized,
		},
		{
			name:       "wrong password",
			body:       LoginRequest{Email: "test@example.com", Password: "wrong-password"},
			mockUser:   &dbUser,
			statusCode: http.StatusUnauthorized,
		},
		{
			name:       "db error",
			body:       LoginRequest{Email: "test@example.com", Password: "password"},
			mockUser:   &database.User{},
			mockErr:    errors.New("db error"),
			statusCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, db := newTestApp(t, Services{})
			if tc.mockUser != nil {
				db.On("GetAccountByEmail", "test@example.com").Return(*tc.mockUser, tc.mockErr).Once()
			}

			rr := doRequest(t, app, http.MethodPost, "/api/auth/login", tc.body, 0)

			assert.Equal(t, tc.statusCode, rr.Code)
			assert.Nil(t, findCookie(rr, tokenCookieKey))
			if tc.statusCode == http.StatusUnauthorized {
				assert.Equal(t, "invalid email or password", decodeBody[ApiError](t, rr).Message)
			}
		})
	}
}

func TestSession(t *testing.T) {
	app, db := newTestApp(t, Services{})
	db.On("GetAccountById", 3).Return(database.User{Id: 3, DisplayName: "Carol"}, nil).Once()

	rr := doRequest(t, app, http.MethodGet, "/api/auth/session", nil, 3)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Carol", decodeBody[types.User](t, rr).DisplayName)
}

func TestLogout(t *testing.T) {
	app, db := newTestApp(t, Services{})
	db.On("UpdateUserStatus", 3, false).Return(nil).Once()

	rr := doRequest(t, app, http.MethodGet, "/api/auth/logout", nil, 3)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookie := findCookie(rr, tokenCookieKey)
	if assert.NotNil(t, cookie) {
		assert.Empty(t, cookie.Value)
		assert.Less(t, cookie.MaxAge, 0)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	t.Run("known email receives a link", func(t *testing.T) {
		mr, store := newTestResetStore(t)
		mailer := &recordingMailer{}
		app, db := newTestApp(t, Services{Resets: store, Mailer: mailer})
		db.On("GetAccountByEmail", "test@example.com").
			Return(database.User{Id: 5, EmailAddress: "test@example.com", DisplayName: "Test"}, nil).Once()

		rr := doRequest(t, app, http.MethodPost, "/api/auth/password-reset", PasswordResetRequest{Email: "test@example.com"}, 0)

		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, 1, mailer.calls)
		assert.Equal(t, "test@example.com", mailer.to)
		assert.Equal(t, "Test", mailer.name)
		assert.True(t, strings.HasPrefix(mailer.link, "http://vibes.test/reset-password?token="))

		link, err := url.Parse(mailer.link)
		assert.NoError(t, err)
		token := link.Query().Get("token")
		assert.NotEmpty(t, token)
		assert.Len(t, mr.Keys(), 1)

		accountId, err := store.Consume(context.Background(), token)
		assert.NoError(t, err)
		assert.Equal(t, 5, accountId)
	})

	t.Run("unknown email is not disclosed", func(t *testing.T) {
		mr, store := newTestResetStore(t)
		mailer := &recordingMailer{}
		app, db := newTestApp(t, Services{Resets: store, Mailer: mailer})
		db.On("GetAccountByEmail", "nobody@example.com").Return(database.User{}, errNoRows).Once()

		rr := doRequest(t, app, http.MethodPost, "/api/auth/password-reset", PasswordResetRequest{Email: "nobody@example.com"}, 0)

		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Zero(t, mailer.calls)
		assert.Empty(t, mr.Keys())
	})

	t.Run("mail failure is not reported", func(t *testing.T) {
		_, store := newTestResetStore(t)
		mailer := &recordingMailer{err: errors.New("smtp down")}
		app, db := newTestApp(t, Services{Resets: store, Mailer: mailer})
		db.On("GetAccountByEmail", "test@example.com").
			Return(database.User{Id: 5, EmailAddress: "test@example.com"}, nil).Once()

		rr := doRequest(t, app, http.MethodPost, "/api/auth/password-reset", PasswordResetRequest{Email: "test@example.com"}, 0)

		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, 1, mailer.calls)
	})

	t.Run("invalid email", func(t *testing.T) {
		app, _ := newTestApp(t, Services{})

		rr := doRequest(t, app, http.MethodPost, "/api/auth/password-reset", PasswordResetRequest{Email: "nope"}, 0)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestConfirmPasswordReset(t *testing.T) {
	t.Run("valid token updates the password once", func(t *testing.T) {
		_, store := newTestResetStore(t)
		app, db := newTestApp(t, Services{Resets: store})
		token, err := store.Issue(context.Background(), 5)
		assert.NoError(t, err)

		db.On("UpdatePassword", 5, mock.MatchedBy(func(hash string) bool {
			return verifyPassword(hash, "new-password")
		})).Return(nil).Once()

		body := ConfirmPasswordResetRequest{Token: token, Password: "new-password"}
		rr := doRequest(t, app, http.MethodPost, "/api/auth/password-reset/confirm", body, 0)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = doRequest(t, app, http.MethodPost, "/api/auth/password-reset/confirm", body, 0)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected token to be single use")
	})

	t.Run("expired token", func(t *testing.T) {
		mr, store := newTestResetStore(t)
		app, _ := newTestApp(t, Services{Resets: store})
		token, err := store.Issue(context.Background(), 5)
		assert.NoError(t, err)
		mr.FastForward(2 * time.Hour)

		rr := doRequest(t, app, http.MethodPost, "/api/auth/password-reset/confirm",
			ConfirmPasswordResetRequest{Token: token, Password: "new-password"}, 0)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "reset link is invalid or has expired", decodeBody[ApiError](t, rr).Message)
	})

	t.Run("short password", func(t *testing.T) {
		_, store := newTestResetStore(t)
		app, _ := newTestApp(t, Services{Resets: store})

		rr := doRequest(t, app, http.MethodPost, "/api/auth/password-reset/confirm",
			ConfirmPasswordResetRequest{Token: "abc", Password: "123"}, 0)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUpdateAccount(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		params := database.UpdateAccountParams{
			UserId:      1,
			DisplayName: "Alice",
			PhoneNumber: "555-0100",
			DateOfBirth: "1990-01-01",
			Gender:      "female",
		}
		db.On("UpdateAccount", params).
			Return(database.User{Id: 1, DisplayName: "Alice", PhoneNumber: "555-0100"}, nil).Once()

		rr := doRequest(t, app, http.MethodPut, "/api/account", UpdateAccountRequest{
			DisplayName: " Alice ",
			PhoneNumber: "555-0100",
			DateOfBirth: "1990-01-01",
			Gender:      "female",
		}, 1)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Alice", decodeBody[types.User](t, rr).DisplayName)
	})

	t.Run("display name required", func(t *testing.T) {
		app, _ := newTestApp(t, Services{})

		rr := doRequest(t, app, http.MethodPut, "/api/account", UpdateAccountRequest{DisplayName: "  "}, 1)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		app, _ := newTestApp(t, Services{})

		rr := doRequest(t, app, http.MethodPut, "/api/account", UpdateAccountRequest{DisplayName: "Alice"}, 0)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestGetAccount_NotFound(t *testing.T) {
	app, db := newTestApp(t, Services{})
	db.On("GetAccountById", 1).Return(database.User{}, errNoRows).Once()

	rr := doRequest(t, app, http.MethodGet, "/api/account", nil, 1)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateSettings(t *testing.T) {
	app, db := newTestApp(t, Services{})
	db.On("UpdateSettings", mock.MatchedBy(func(p database.UpdateSettingsParams) bool {
		return p.UserId == 1 &&
			p.EmailNotifications != nil && !*p.EmailNotifications &&
			p.PushNotifications == nil
	})).Return(database.User{Id: 1, PushNotifications: true}, nil).Once()

	rr := doRequest(t, app, http.MethodPut, "/api/account/settings", `{"email_notifications": false}`, 1)

	assert.Equal(t, http.StatusOK, rr.Code)
	u := decodeBody[types.User](t, rr)
	assert.False(t, u.EmailNotifications)
	assert.True(t, u.PushNotifications)
}

func TestDeleteAccount(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("DeleteAccount", 1).Return([]string{"room1", "room2"}, nil).Once()

		rr := doRequest(t, app, http.MethodDelete, "/api/account", nil, 1)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		cookie := findCookie(rr, tokenCookieKey)
		if assert.NotNil(t, cookie) {
			assert.Empty(t, cookie.Value)
		}
	})

	t.Run("db error", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("DeleteAccount", 1).Return(nil, errors.New("db error")).Once()

		rr := doRequest(t, app, http.MethodDelete, "/api/account", nil, 1)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Nil(t, findCookie(rr, tokenCookieKey))
	})
}
