package types

import (
	"fmt"
	"time"
)

const (
	VibeShort = "short"
	VibeLong  = "long"
)

const (
	RetentionNever     = "never"
	RetentionSevenDays = "7days"
	RetentionAfterView = "afterView"
)

const (
	NotificationVibe    = "vibe"
	NotificationMessage = "message"
	NotificationJoin    = "join"
)

type User struct {
	Id                 int        `json:"id"`
	EmailAddress       string     `json:"email_address,omitempty"`
	DisplayName        string     `json:"display_name"`
	PhoneNumber        string     `json:"phone_number,omitempty"`
	DateOfBirth        string     `json:"date_of_birth,omitempty"`
	Gender             string     `json:"gender,omitempty"`
	PhotoURL           string     `json:"photo_url,omitempty"`
	Online             bool       `json:"online"`
	LastSeen           *time.Time `json:"last_seen,omitempty"`
	IsAdmin            bool       `json:"is_admin"`
	EmailNotifications bool       `json:"email_notifications"`
	PushNotifications  bool       `json:"push_notifications"`
	IsPresent          bool       `json:"is_present,omitempty"`
	CreatedAt          time.Time  `json:"created_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at,omitempty"`
}

type Room struct {
	Id               int       `json:"id"`
	ExternalId       string    `json:"external_id"`
	Name             string    `json:"name"`
	OwnerId          int       `json:"owner_id"`
	MessageRetention string    `json:"message_retention"`
	SeqId            int       `json:"seq_id"`
	MemberIds        []int     `json:"member_ids,omitempty"`
	Members          []User    `json:"members,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

type Vibe struct {
	Id         string    `json:"id"`
	RoomId     string    `json:"room_id"`
	SenderId   int       `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Type       string    `json:"type"`
	SentAt     time.Time `json:"sent_at"`
}

type Message struct {
	SeqId    int       `json:"seq_id"`
	RoomId   string    `json:"room_id"`
	SenderId int       `json:"sender_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
	Viewed   bool      `json:"viewed"`
}

type Notification struct {
	Id         string    `json:"id"`
	UserId     int       `json:"user_id"`
	Type       string    `json:"type"`
	RoomId     string    `json:"room_id,omitempty"`
	SenderId   int       `json:"sender_id,omitempty"`
	SenderName string    `json:"sender_name,omitempty"`
	VibeType   string    `json:"vibe_type,omitempty"`
	Message    string    `json:"message"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

func ValidVibeType(t string) bool {
	return t == VibeShort || t == VibeLong
}

func ValidRetention(r string) bool {
	switch r {
	case RetentionNever, RetentionSevenDays, RetentionAfterView:
		return true
	}
	return false
}

// FormatNotificationMessage renders the text shown for a notification.
func FormatNotificationMessage(n Notification) string {
	sender := n.SenderName
	if sender == "" {
		sender = "Someone"
	}

	switch n.Type {
	case NotificationVibe:
		vibeType := n.VibeType
		if vibeType == "" {
			vibeType = "new"
		}
		return fmt.Sprintf("%s sent you a %s vibe", sender, vibeType)
	case NotificationMessage:
		return sender + " sent you a message"
	case NotificationJoin:
		return sender + " joined your connection"
	default:
		if n.Message != "" {
			return n.Message
		}
		return "New notification"
	}
}
