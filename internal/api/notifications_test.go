package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestListNotifications(t *testing.T) {
	app, db := newTestApp(t, Services{})
	now := time.Now().UTC()
	db.On("ListNotifications", 1).Return([]database.Notification{
		{Id: "n3", UserId: 1, Type: types.NotificationJoin, SenderName: "Carol", CreatedAt: now},
		{Id: "n2", UserId: 1, Type: types.NotificationMessage, CreatedAt: now.Add(-time.Minute)},
		{Id: "n1", UserId: 1, Type: types.NotificationVibe, SenderName: "Bob", VibeType: types.VibeShort, Read: true, CreatedAt: now.Add(-time.Hour)},
	}, nil).Once()

	rr := doRequest(t, app, http.MethodGet, "/api/notifications", nil, 1)

	assert.Equal(t, http.StatusOK, rr.Code)
	notifications := decodeBody[[]types.Notification](t, rr)
	if assert.Len(t, notifications, 3) {
		assert.Equal(t, "Carol joined your connection", notifications[0].Message)
		assert.Equal(t, "Someone sent you a message", notifications[1].Message)
		assert.Equal(t, "Bob sent you a short vibe", notifications[2].Message)
		assert.True(t, notifications[2].Read)
	}
}

func TestListNotifications_DbError(t *testing.T) {
	app, db := newTestApp(t, Services{})
	db.On("ListNotifications", 1).Return([]database.Notification(nil), errors.New("db error")).Once()

	rr := doRequest(t, app, http.MethodGet, "/api/notifications", nil, 1)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMarkNotificationRead(t *testing.T) {
	id := uuid.NewString()

	tcases := []struct {
		name       string
		path       string
		callDb     bool
		dbErr      error
		statusCode int
	}{
		{
			name:       "success",
			path:       "/api/notifications/" + id + "/read",
			callDb:     true,
			statusCode: http.StatusNoContent,
		},
		{
			name:       "belongs to someone else",
			path:       "/api/notifications/" + id + "/read",
			callDb:     true,
			dbErr:      errNoRows,
			statusCode: http.StatusNotFound,
		},
		{
			name:       "malformed id",
			path:       "/api/notifications/not-a-uuid/read",
			statusCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, db := newTestApp(t, Services{})
			if tc.callDb {
				db.On("MarkNotificationRead", 1, id).Return(tc.dbErr).Once()
			}

			rr := doRequest(t, app, http.MethodPut, tc.path, nil, 1)

			assert.Equal(t, tc.statusCode, rr.Code)
		})
	}
}

func TestDeleteNotification(t *testing.T) {
	id := uuid.NewString()

	t.Run("success", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("DeleteNotification", 1, id).Return(nil).Once()

		rr := doRequest(t, app, http.MethodDelete, "/api/notifications/"+id, nil, 1)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("not found", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("DeleteNotification", 1, id).Return(errNoRows).Once()

		rr := doRequest(t, app, http.MethodDelete, "/api/notifications/"+id, nil, 1)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestClearReadNotifications(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("DeleteReadNotifications", 1).Return(3, nil).Once()

		rr := doRequest(t, app, http.MethodDelete, "/api/notifications?read=true", nil, 1)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, map[string]int{"deleted": 3}, decodeBody[map[string]int](t, rr))
	})

	t.Run("requires read filter", func(t *testing.T) {
		app, _ := newTestApp(t, Services{})

		rr := doRequest(t, app, http.MethodDelete, "/api/notifications", nil, 1)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAdminRoutes(t *testing.T) {
	admin := database.User{Id: 1, IsAdmin: true}

	t.Run("users", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("GetAccountById", 1).Return(admin, nil).Once()
		db.On("ListAccounts").Return([]database.User{admin, {Id: 2, DisplayName: "Bob"}}, nil).Once()

		rr := doRequest(t, app, http.MethodGet, "/api/admin/users", nil, 1)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decodeBody[[]types.User](t, rr), 2)
	})

	t.Run("rooms", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("GetAccountById", 1).Return(admin, nil).Once()
		db.On("ListRooms").Return([]database.Room{testRoom()}, nil).Once()

		rr := doRequest(t, app, http.MethodGet, "/api/admin/rooms", nil, 1)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decodeBody[[]types.Room](t, rr), 1)
	})

	t.Run("stats", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("GetAccountById", 1).Return(admin, nil).Once()
		db.On("CountStats").Return(database.Stats{UserCount: 5, RoomCount: 2, ActiveUsers: 1}, nil).Once()

		rr := doRequest(t, app, http.MethodGet, "/api/admin/stats", nil, 1)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, database.Stats{UserCount: 5, RoomCount: 2, ActiveUsers: 1}, decodeBody[database.Stats](t, rr))
	})

	t.Run("non admin is forbidden", func(t *testing.T) {
		app, db := newTestApp(t, Services{})
		db.On("GetAccountById", 2).Return(database.User{Id: 2}, nil).Once()

		rr := doRequest(t, app, http.MethodGet, "/api/admin/stats", nil, 2)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
