package database

import "time"

type User struct {
	Id                 int
	EmailAddress       string
	DisplayName        string
	PhoneNumber        string
	DateOfBirth        string
	Gender             string
	PhotoURL           string
	Online             bool
	LastSeen           *time.Time
	IsAdmin            bool
	EmailNotifications bool
	PushNotifications  bool
	PasswordHash       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Room struct {
	Id               int
	ExternalId       string
	Name             string
	OwnerId          int
	MessageRetention string
	SeqId            int
	MemberIds        []int
	Members          []User
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Vibe struct {
	Id         string
	RoomId     int
	SenderId   int
	SenderName string
	Type       string
	SentAt     time.Time
}

type Message struct {
	Id       int
	SeqId    int
	RoomId   int
	SenderId int
	Content  string
	SentAt   time.Time
	Viewed   bool
	ViewedAt *time.Time
}

type Notification struct {
	Id         string
	UserId     int
	Type       string
	RoomId     string
	SenderId   int
	SenderName string
	VibeType   string
	Message    string
	Read       bool
	CreatedAt  time.Time
}

type Stats struct {
	UserCount   int `json:"user_count"`
	RoomCount   int `json:"room_count"`
	ActiveUsers int `json:"active_users"`
}

type CreateAccountParams struct {
	EmailAddress string
	DisplayName  string
	PhoneNumber  string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId      int
	DisplayName string
	PhoneNumber string
	DateOfBirth string
	Gender      string
}

// UpdateSettingsParams changes only the settings that are non-nil.
type UpdateSettingsParams struct {
	UserId             int
	EmailNotifications *bool
	PushNotifications  *bool
}

type CreateRoomParams struct {
	Name       string
	OwnerId    int
	ExternalId string
}

type CreateVibeParams struct {
	RoomId         int
	RoomExternalId string
	SenderId       int
	SenderName     string
	Type           string
	SentAt         time.Time
}
