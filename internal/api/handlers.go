package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/server"
	"github.com/npezzotti/go-vibes/internal/types"
)

func (s *VibesApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *VibesApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Println(errResp.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// decodeJson reads the request body into v, replying 400 on failure.
func (s *VibesApp) decodeJson(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, NewBadRequestError())
		return false
	}

	return true
}

// currentUserId returns the caller set by authMiddleware, replying 401 when
// it is missing.
func (s *VibesApp) currentUserId(w http.ResponseWriter, r *http.Request) (int, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
	}

	return userId, ok
}

func (s *VibesApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Println("ping:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *VibesApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	user, err := s.db.GetAccountById(r.Context(), userId)
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(types.User{
		Id:          user.Id,
		DisplayName: user.DisplayName,
	}, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

func toUser(u database.User) types.User {
	return types.User{
		Id:                 u.Id,
		EmailAddress:       u.EmailAddress,
		DisplayName:        u.DisplayName,
		PhoneNumber:        u.PhoneNumber,
		DateOfBirth:        u.DateOfBirth,
		Gender:             u.Gender,
		PhotoURL:           u.PhotoURL,
		Online:             u.Online,
		LastSeen:           u.LastSeen,
		IsAdmin:            u.IsAdmin,
		EmailNotifications: u.EmailNotifications,
		PushNotifications:  u.PushNotifications,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

// toMember is the profile other members of a room can see.
func toMember(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		EmailAddress: u.EmailAddress,
		DisplayName:  u.DisplayName,
		PhotoURL:     u.PhotoURL,
		Online:       u.Online,
		LastSeen:     u.LastSeen,
	}
}

func toRoom(r database.Room) types.Room {
	room := types.Room{
		Id:               r.Id,
		ExternalId:       r.ExternalId,
		Name:             r.Name,
		OwnerId:          r.OwnerId,
		MessageRetention: r.MessageRetention,
		SeqId:            r.SeqId,
		MemberIds:        r.MemberIds,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	for _, m := range r.Members {
		room.Members = append(room.Members, toMember(m))
	}

	return room
}

func toNotification(n database.Notification) types.Notification {
	view := types.Notification{
		Id:         n.Id,
		UserId:     n.UserId,
		Type:       n.Type,
		RoomId:     n.RoomId,
		SenderId:   n.SenderId,
		SenderName: n.SenderName,
		VibeType:   n.VibeType,
		Message:    n.Message,
		Read:       n.Read,
		CreatedAt:  n.CreatedAt,
	}
	view.Message = types.FormatNotificationMessage(view)

	return view
}
