package api

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/types"
)

const (
	maxRoomNameLength = 100
	defaultVibeLimit  = 50
)

func newLimitTooLargeError() *ApiError {
	return NewValidationError(fmt.Sprintf("limit must be at most %d", database.MaxPageLimit))
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type UpdateRetentionRequest struct {
	Retention string `json:"retention"`
}

// roomForMember loads the room named in the path and checks that the caller
// belongs to it. It writes the error response itself.
func (s *VibesApp) roomForMember(w http.ResponseWriter, r *http.Request) (database.Room, int, bool) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return database.Room{}, 0, false
	}

	room, err := s.db.GetRoomByExternalId(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, dbError(err))
		return database.Room{}, 0, false
	}

	if !slices.Contains(room.MemberIds, userId) {
		s.writeError(w, NewForbiddenError())
		return database.Room{}, 0, false
	}

	return room, userId, true
}

func queryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

func (s *VibesApp) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || utf8.RuneCountInString(req.Name) > maxRoomNameLength {
		s.writeError(w, NewValidationError("room name must be between 1 and 100 characters"))
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newRoom, err := s.db.CreateRoom(r.Context(), database.CreateRoomParams{
		Name:       req.Name,
		OwnerId:    userId,
		ExternalId: sid,
	})
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, toRoom(newRoom))
}

func (s *VibesApp) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	dbRooms, err := s.db.ListRoomsForUser(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, room := range dbRooms {
		rooms = append(rooms, toRoom(room))
	}

	s.writeJson(w, http.StatusOK, rooms)
}

// getRoom is also used by the join page, so callers outside the room see the
// room without member profiles.
func (s *VibesApp) getRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	room, err := s.db.GetRoomByExternalId(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	if !slices.Contains(room.MemberIds, userId) {
		s.writeJson(w, http.StatusOK, toRoom(room))
		return
	}

	withMembers, err := s.db.GetRoomWithMembers(r.Context(), room.Id)
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toRoom(withMembers))
}

func (s *VibesApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	room, err := s.db.GetRoomByExternalId(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	if room.OwnerId != userId {
		s.writeError(w, NewForbiddenError())
		return
	}

	if err := s.db.DeleteRoom(r.Context(), room.Id); err != nil {
		s.log.Println("delete room:", err)
		s.writeError(w, dbError(err))
		return
	}

	if err := s.cs.UnloadRoom(r.Context(), room.ExternalId, true); err != nil {
		s.log.Println("delete room from chat server:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *VibesApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	room, err := s.db.GetRoomByExternalId(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	created, err := s.db.CreateSubscription(r.Context(), userId, room.Id)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	withMembers, err := s.db.GetRoomWithMembers(r.Context(), room.Id)
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	if created {
		s.announceJoin(r, withMembers, userId)
	}

	s.writeJson(w, http.StatusOK, toRoom(withMembers))
}

// announceJoin notifies the other members that userId joined and tells the
// live room about its new member. Failures are only logged since the
// membership already exists.
func (s *VibesApp) announceJoin(r *http.Request, room database.Room, userId int) {
	var joiner types.User
	for _, m := range room.Members {
		if m.Id == userId {
			joiner = types.User{Id: m.Id, DisplayName: m.DisplayName}
		}
	}
	if joiner.Id == 0 {
		joiner.Id = userId
	}

	now := time.Now().UTC()
	var notifications []database.Notification
	for _, memberId := range room.MemberIds {
		if memberId == userId {
			continue
		}
		notifications = append(notifications, database.Notification{
			Id:         uuid.NewString(),
			UserId:     memberId,
			Type:       types.NotificationJoin,
			RoomId:     room.ExternalId,
			SenderId:   userId,
			SenderName: joiner.DisplayName,
			CreatedAt:  now,
		})
	}

	if len(notifications) > 0 {
		if err := s.db.CreateNotifications(r.Context(), notifications); err != nil {
			s.log.Println("create join notifications:", err)
		} else {
			views := make([]types.Notification, len(notifications))
			for i, n := range notifications {
				views[i] = toNotification(n)
			}
			s.cs.NotifyUsers(views)
		}
	}

	s.cs.SubscriptionChanged(room.ExternalId, joiner, true)
}

func (s *VibesApp) removeMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	targetId, err := strconv.Atoi(r.PathValue("userId"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	room, err := s.db.GetRoomByExternalId(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	if targetId != userId && room.OwnerId != userId {
		s.writeError(w, NewForbiddenError())
		return
	}

	if targetId == room.OwnerId {
		s.writeError(w, NewValidationError("the owner cannot be removed from a room"))
		return
	}

	if err := s.db.DeleteSubscription(r.Context(), targetId, room.Id); err != nil {
		s.writeError(w, dbError(err))
		return
	}

	s.cs.SubscriptionChanged(room.ExternalId, types.User{Id: targetId}, false)

	w.WriteHeader(http.StatusNoContent)
}

func (s *VibesApp) updateRetention(w http.ResponseWriter, r *http.Request) {
	room, _, ok := s.roomForMember(w, r)
	if !ok {
		return
	}

	var req UpdateRetentionRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if !types.ValidRetention(req.Retention) {
		s.writeError(w, NewValidationError("retention must be one of never, 7days or afterView"))
		return
	}

	updated, err := s.db.UpdateRoomRetention(r.Context(), room.Id, req.Retention)
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}
	updated.MemberIds = room.MemberIds

	s.writeJson(w, http.StatusOK, toRoom(updated))
}

func (s *VibesApp) getMessages(w http.ResponseWriter, r *http.Request) {
	room, _, ok := s.roomForMember(w, r)
	if !ok {
		return
	}

	before, okBefore := queryInt(r, "before")
	after, okAfter := queryInt(r, "after")
	limit, okLimit := queryInt(r, "limit")
	if !okBefore || !okAfter || !okLimit {
		s.writeError(w, NewBadRequestError())
		return
	}
	if limit > database.MaxPageLimit {
		s.writeError(w, newLimitTooLargeError())
		return
	}

	dbMessages, err := s.db.GetMessages(r.Context(), room.Id, after, before, limit)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, types.Message{
			SeqId:    msg.SeqId,
			RoomId:   room.ExternalId,
			SenderId: msg.SenderId,
			Content:  msg.Content,
			SentAt:   msg.SentAt,
			Viewed:   msg.Viewed,
		})
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *VibesApp) getVibes(w http.ResponseWriter, r *http.Request) {
	room, _, ok := s.roomForMember(w, r)
	if !ok {
		return
	}

	limit, ok := queryInt(r, "limit")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}
	if limit > database.MaxPageLimit {
		s.writeError(w, newLimitTooLargeError())
		return
	}
	if limit == 0 {
		limit = defaultVibeLimit
	}

	dbVibes, err := s.db.ListVibes(r.Context(), room.Id, limit)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	vibes := make([]types.Vibe, 0, len(dbVibes))
	for _, v := range dbVibes {
		vibes = append(vibes, types.Vibe{
			Id:         v.Id,
			RoomId:     room.ExternalId,
			SenderId:   v.SenderId,
			SenderName: v.SenderName,
			Type:       v.Type,
			SentAt:     v.SentAt,
		})
	}

	s.writeJson(w, http.StatusOK, vibes)
}

func (s *VibesApp) cleanupRoom(w http.ResponseWriter, r *http.Request) {
	room, _, ok := s.roomForMember(w, r)
	if !ok {
		return
	}

	deleted, err := s.cleaner.SweepRoom(r.Context(), room.Id, room.MessageRetention)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"deleted": deleted})
}
