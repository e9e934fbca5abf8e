package database

import (
	"context"
	"time"
)

type VibeRepository interface {
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	UpdateAccount(ctx context.Context, params UpdateAccountParams) (User, error)
	UpdateSettings(ctx context.Context, params UpdateSettingsParams) (User, error)
	UpdatePassword(ctx context.Context, accountId int, passwordHash string) error
	GetAccountById(ctx context.Context, accountId int) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)
	DeleteAccount(ctx context.Context, accountId int) ([]string, error)
	UpdateUserStatus(ctx context.Context, accountId int, online bool) error
	ListAccounts(ctx context.Context) ([]User, error)

	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoomByExternalId(ctx context.Context, externalId string) (Room, error)
	GetRoomWithMembers(ctx context.Context, roomId int) (Room, error)
	ListRoomsForUser(ctx context.Context, accountId int) ([]Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	ListRoomsWithRetention(ctx context.Context) ([]Room, error)
	DeleteRoom(ctx context.Context, roomId int) error
	UpdateRoomRetention(ctx context.Context, roomId int, retention string) (Room, error)

	CreateSubscription(ctx context.Context, accountId, roomId int) (bool, error)
	SubscriptionExists(ctx context.Context, accountId, roomId int) (bool, error)
	DeleteSubscription(ctx context.Context, accountId, roomId int) error
	GetMembersByRoomId(ctx context.Context, roomId int) ([]User, error)

	CreateVibe(ctx context.Context, params CreateVibeParams) (Vibe, []Notification, error)
	ListVibes(ctx context.Context, roomId, limit int) ([]Vibe, error)

	CreateMessage(ctx context.Context, msg Message) error
	GetMessages(ctx context.Context, roomId, after, before, limit int) ([]Message, error)
	MarkMessagesViewed(ctx context.Context, roomId, accountId int) (int, error)
	MarkMessageViewed(ctx context.Context, roomId, seqId, accountId int) (int, error)
	CleanupMessages(ctx context.Context, roomId int, retention string, now time.Time) (int, error)

	CreateNotifications(ctx context.Context, notifications []Notification) error
	ListNotifications(ctx context.Context, accountId int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, accountId int, id string) error
	DeleteNotification(ctx context.Context, accountId int, id string) error
	DeleteReadNotifications(ctx context.Context, accountId int) (int, error)

	CountStats(ctx context.Context) (Stats, error)
}
