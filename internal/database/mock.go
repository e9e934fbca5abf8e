package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockVibeRepository struct {
	mock.Mock
}

func (m *MockVibeRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockVibeRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockVibeRepository) UpdateAccount(ctx context.Context, params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockVibeRepository) UpdateSettings(ctx context.Context, params UpdateSettingsParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockVibeRepository) UpdatePassword(ctx context.Context, accountId int, passwordHash string) error {
	args := m.Called(accountId, passwordHash)
	return args.Error(0)
}
func (m *MockVibeRepository) GetAccountById(ctx context.Context, accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockVibeRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockVibeRepository) DeleteAccount(ctx context.Context, accountId int) ([]string, error) {
	args := m.Called(accountId)
	if rooms, ok := args.Get(0).([]string); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockVibeRepository) UpdateUserStatus(ctx context.Context, accountId int, online bool) error {
	args := m.Called(accountId, online)
	return args.Error(0)
}
func (m *MockVibeRepository) ListAccounts(ctx context.Context) ([]User, error) {
	args := m.Called()
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockVibeRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockVibeRepository) GetRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockVibeRepository) GetRoomWithMembers(ctx context.Context, roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockVibeRepository) ListRoomsForUser(ctx context.Context, accountId int) ([]Room, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockVibeRepository) ListRooms(ctx context.Context) ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockVibeRepository) ListRoomsWithRetention(ctx context.Context) ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockVibeRepository) DeleteRoom(ctx context.Context, roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockVibeRepository) UpdateRoomRetention(ctx context.Context, roomId int, retention string) (Room, error) {
	args := m.Called(roomId, retention)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockVibeRepository) CreateSubscription(ctx context.Context, accountId, roomId int) (bool, error) {
	args := m.Called(accountId, roomId)
	return args.Bool(0), args.Error(1)
}
func (m *MockVibeRepository) SubscriptionExists(ctx context.Context, accountId, roomId int) (bool, error) {
	args := m.Called(accountId, roomId)
	return args.Bool(0), args.Error(1)
}
func (m *MockVibeRepository) DeleteSubscription(ctx context.Context, accountId, roomId int) error {
	args := m.Called(accountId, roomId)
	return args.Error(0)
}
func (m *MockVibeRepository) GetMembersByRoomId(ctx context.Context, roomId int) ([]User, error) {
	args := m.Called(roomId)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockVibeRepository) CreateVibe(ctx context.Context, params CreateVibeParams) (Vibe, []Notification, error) {
	args := m.Called(params)
	notifications, _ := args.Get(1).([]Notification)
	return args.Get(0).(Vibe), notifications, args.Error(2)
}
func (m *MockVibeRepository) ListVibes(ctx context.Context, roomId, limit int) ([]Vibe, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]Vibe), args.Error(1)
}
func (m *MockVibeRepository) CreateMessage(ctx context.Context, msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockVibeRepository) GetMessages(ctx context.Context, roomId, after, before, limit int) ([]Message, error) {
	args := m.Called(roomId, after, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockVibeRepository) MarkMessagesViewed(ctx context.Context, roomId, accountId int) (int, error) {
	args := m.Called(roomId, accountId)
	return args.Int(0), args.Error(1)
}
func (m *MockVibeRepository) MarkMessageViewed(ctx context.Context, roomId, seqId, accountId int) (int, error) {
	args := m.Called(roomId, seqId, accountId)
	return args.Int(0), args.Error(1)
}
func (m *MockVibeRepository) CleanupMessages(ctx context.Context, roomId int, retention string, now time.Time) (int, error) {
	args := m.Called(roomId, retention)
	return args.Int(0), args.Error(1)
}
func (m *MockVibeRepository) CreateNotifications(ctx context.Context, notifications []Notification) error {
	args := m.Called(notifications)
	return args.Error(0)
}
func (m *MockVibeRepository) ListNotifications(ctx context.Context, accountId int) ([]Notification, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Notification), args.Error(1)
}
func (m *MockVibeRepository) MarkNotificationRead(ctx context.Context, accountId int, id string) error {
	args := m.Called(accountId, id)
	return args.Error(0)
}
func (m *MockVibeRepository) DeleteNotification(ctx context.Context, accountId int, id string) error {
	args := m.Called(accountId, id)
	return args.Error(0)
}
func (m *MockVibeRepository) DeleteReadNotifications(ctx context.Context, accountId int) (int, error) {
	args := m.Called(accountId)
	return args.Int(0), args.Error(1)
}
func (m *MockVibeRepository) CountStats(ctx context.Context) (Stats, error) {
	args := m.Called()
	return args.Get(0).(Stats), args.Error(1)
}
