package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/npezzotti/go-vibes/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join    *Join     `json:"join,omitempty"`
	Leave   *Leave    `json:"leave,omitempty"`
	Vibe    *SendVibe `json:"vibe,omitempty"`
	Publish *Publish  `json:"publish,omitempty"`
	Read    *Read     `json:"read,omitempty"`
	UserId  int       `json:"-"`
	client  *Client   `json:"-"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type SendVibe struct {
	RoomId string `json:"room_id"`
	Type   string `json:"type"`
}

type Publish struct {
	RoomId  string `json:"room_id"`
	Content string `json:"content"`
}

type Read struct {
	RoomId string `json:"room_id"`
	// SeqId limits the receipt to one message.
	SeqId int `json:"seq_id,omitempty"`
}

// roomId returns the room a non-join frame targets.
func (m *ClientMessage) roomId() string {
	switch {
	case m.Leave != nil:
		return m.Leave.RoomId
	case m.Vibe != nil:
		return m.Vibe.RoomId
	case m.Publish != nil:
		return m.Publish.RoomId
	case m.Read != nil:
		return m.Read.RoomId
	}

	return ""
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Vibe         *types.Vibe    `json:"vibe,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	// UserId addresses every socket of one user instead of a room.
	UserId     int     `json:"-"`
	SkipClient *Client `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Presence           *Presence           `json:"presence,omitempty"`
	SubscriptionChange *SubscriptionChange `json:"subscription_change,omitempty"`
	RoomDeleted        *RoomDeleted        `json:"room_deleted,omitempty"`
	New                *types.Notification `json:"new,omitempty"`
}

type Presence struct {
	Present bool   `json:"present"`
	UserId  int    `json:"user_id"`
	RoomId  string `json:"room_id"`
}

type SubscriptionChange struct {
	RoomId     string     `json:"room_id"`
	Subscribed bool       `json:"subscribed"`
	User       types.User `json:"user"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func response(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return response(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return response(id, http.StatusAccepted, "", data)
}

func ErrBadRequest(id int, msg string) *ServerMessage {
	return response(id, http.StatusBadRequest, msg, nil)
}

func ErrForbidden(id int) *ServerMessage {
	return response(id, http.StatusForbidden, "not a member of this room", nil)
}

func ErrRoomNotFound(id int) *ServerMessage {
	return response(id, http.StatusNotFound, "room not found", nil)
}

func ErrTooManyRequests(id int) *ServerMessage {
	return response(id, http.StatusTooManyRequests, "too many vibes, slow down", nil)
}

func ErrInternalError(id int) *ServerMessage {
	return response(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return response(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	if id < 0 {
		id = 0
	}

	return response(id, http.StatusBadRequest, "invalid message format", nil)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
