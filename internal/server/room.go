package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/types"
)

const (
	idleRoomTimeout  = time.Second * 5
	maxMessageLength = 1000
)

type exitReq struct {
	deleted bool
	// idle requests are refused if the room gained a client since the
	// kill timer fired
	idle bool
	done chan bool
}

type memberChange struct {
	user       types.User
	subscribed bool
}

type Room struct {
	id            int
	externalId    string
	seqId         int
	members       map[int]struct{}
	cs            *ChatServer
	db            database.VibeRepository
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	memberChan    chan memberChange
	clients       map[*Client]struct{}
	userMap       map[int]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *log.Logger
	// killTimer unloads the room once it has had no clients for idleRoomTimeout
	killTimer *time.Timer
	exit      chan exitReq
}

func newRoom(cs *ChatServer, dbRoom database.Room) *Room {
	members := make(map[int]struct{}, len(dbRoom.MemberIds))
	for _, id := range dbRoom.MemberIds {
		members[id] = struct{}{}
	}

	return &Room{
		id:            dbRoom.Id,
		externalId:    dbRoom.ExternalId,
		seqId:         dbRoom.SeqId,
		members:       members,
		cs:            cs,
		db:            cs.db,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		memberChan:    make(chan memberChange, 64),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan exitReq, 1),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leave := <-r.leaveChan:
			r.handleLeave(leave)
		case msg := <-r.clientMsgChan:
			switch {
			case msg.Vibe != nil:
				r.handleVibe(msg)
			case msg.Publish != nil:
				r.handlePublish(msg)
			case msg.Read != nil:
				r.handleRead(msg)
			}
		case change := <-r.memberChan:
			r.handleMemberChange(change)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			if e.idle && r.busy() {
				r.log.Printf("room %q is no longer idle", r.externalId)
				e.done <- false
				continue
			}
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

// busy reports whether the room has sockets or joins waiting to be handled.
func (r *Room) busy() bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients) > 0 || len(r.joinChan) > 0
}

func (r *Room) handleRoomTimeout() {
	if r.busy() {
		return
	}

	r.log.Printf("room %q timed out", r.externalId)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.externalId, idle: true}:
	default:
		// try again later
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)
	if e.deleted {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomId: r.externalId},
			},
		})
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clients = make(map[*Client]struct{})
	r.userMap = make(map[int]map[*Client]struct{})
	r.clientLock.Unlock()

	if r.killTimer != nil {
		r.killTimer.Stop()
	}

	// joins routed here before the room was unloaded
	for pending := true; pending; {
		select {
		case join := <-r.joinChan:
			join.client.queueMessage(ErrRoomNotFound(join.Id))
		default:
			pending = false
		}
	}

	if e.done != nil {
		e.done <- true
	}
}

func (r *Room) isMember(userId int) (bool, error) {
	if _, ok := r.members[userId]; ok {
		return true, nil
	}

	// the membership may have been created after the room was loaded
	ctx, cancel := r.ctx()
	defer cancel()
	exists, err := r.db.SubscriptionExists(ctx, userId, r.id)
	if err != nil {
		return false, err
	}
	if exists {
		r.members[userId] = struct{}{}
	}

	return exists, nil
}

func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	fail := func(msg *ServerMessage) {
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		c.queueMessage(msg)
	}

	member, err := r.isMember(c.user.Id)
	if err != nil {
		r.log.Println("subscription exists:", err)
		fail(ErrInternalError(join.Id))
		return
	}
	if !member {
		fail(ErrForbidden(join.Id))
		return
	}

	ctx, cancel := r.ctx()
	defer cancel()

	dbRoom, err := r.db.GetRoomWithMembers(ctx, r.id)
	if err != nil {
		r.log.Println("get room with members:", err)
		fail(ErrInternalError(join.Id))
		return
	}

	_, alreadyPresent := r.userMap[c.user.Id]
	r.addClient(c)

	roomInfo := types.Room{
		Id:               dbRoom.Id,
		ExternalId:       dbRoom.ExternalId,
		Name:             dbRoom.Name,
		OwnerId:          dbRoom.OwnerId,
		MessageRetention: dbRoom.MessageRetention,
		SeqId:            r.seqId,
		MemberIds:        dbRoom.MemberIds,
		CreatedAt:        dbRoom.CreatedAt,
		UpdatedAt:        dbRoom.UpdatedAt,
	}
	for _, m := range dbRoom.Members {
		roomInfo.Members = append(roomInfo.Members, types.User{
			Id:          m.Id,
			DisplayName: m.DisplayName,
			Online:      m.Online,
			LastSeen:    m.LastSeen,
			IsPresent:   r.userMap[m.Id] != nil,
		})
	}

	c.queueMessage(NoErrOK(join.Id, roomInfo))

	if !alreadyPresent {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				Presence: &Presence{
					Present: true,
					RoomId:  r.externalId,
					UserId:  c.user.Id,
				},
			},
			SkipClient: c,
		})
	}
}

func (r *Room) handleLeave(leave *ClientMessage) {
	c := leave.client
	if !r.removeClient(c) {
		c.queueMessage(ErrRoomNotFound(leave.Id))
		return
	}

	if leave.Id > 0 {
		c.queueMessage(NoErrOK(leave.Id, nil))
	}

	if r.userMap[c.user.Id] == nil {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				Presence: &Presence{
					Present: false,
					RoomId:  r.externalId,
					UserId:  c.user.Id,
				},
			},
		})
	}
}

func (r *Room) handleVibe(msg *ClientMessage) {
	c := msg.client
	if !types.ValidVibeType(msg.Vibe.Type) {
		c.queueMessage(ErrBadRequest(msg.Id, "invalid vibe type"))
		return
	}

	ctx, cancel := r.ctx()
	defer cancel()

	if r.cs.limiter != nil && !r.cs.limiter.Allow(ctx, fmt.Sprintf("%d:%s", c.user.Id, r.externalId)) {
		c.queueMessage(ErrTooManyRequests(msg.Id))
		return
	}

	vibe, notifications, err := r.db.CreateVibe(ctx, database.CreateVibeParams{
		RoomId:         r.id,
		RoomExternalId: r.externalId,
		SenderId:       c.user.Id,
		SenderName:     c.user.DisplayName,
		Type:           msg.Vibe.Type,
		SentAt:         msg.Timestamp,
	})
	if err != nil {
		r.log.Println("create vibe:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	r.cs.stats.Incr("NumVibesSent")
	c.queueMessage(NoErrAccepted(msg.Id, map[string]any{"vibe_id": vibe.Id}))

	r.broadcastExceptUser(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: vibe.SentAt},
		Vibe: &types.Vibe{
			Id:         vibe.Id,
			RoomId:     r.externalId,
			SenderId:   vibe.SenderId,
			SenderName: vibe.SenderName,
			Type:       vibe.Type,
			SentAt:     vibe.SentAt,
		},
	}, c.user.Id)

	r.cs.NotifyUsers(toNotificationViews(notifications))
}

func (r *Room) handlePublish(msg *ClientMessage) {
	c := msg.client
	content := strings.TrimSpace(msg.Publish.Content)
	if content == "" || utf8.RuneCountInString(content) > maxMessageLength {
		c.queueMessage(ErrBadRequest(msg.Id, fmt.Sprintf("message must be between 1 and %d characters", maxMessageLength)))
		return
	}

	ctx, cancel := r.ctx()
	defer cancel()

	if err := r.db.CreateMessage(ctx, database.Message{
		SeqId:    r.seqId + 1,
		RoomId:   r.id,
		SenderId: c.user.Id,
		Content:  content,
		SentAt:   msg.Timestamp,
	}); err != nil {
		r.log.Println("create message:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	// only advance once the message is stored
	r.seqId++
	r.cs.stats.Incr("NumMessagesSent")
	c.queueMessage(NoErrAccepted(msg.Id, map[string]any{"seq_id": r.seqId}))

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: msg.Timestamp},
		Message: &types.Message{
			SeqId:    r.seqId,
			RoomId:   r.externalId,
			SenderId: c.user.Id,
			Content:  content,
			SentAt:   msg.Timestamp,
		},
	})

	// members without a socket in the room get a notification instead
	var notifications []database.Notification
	for id := range r.members {
		if id == c.user.Id || r.userMap[id] != nil {
			continue
		}

		notifications = append(notifications, database.Notification{
			Id:         uuid.NewString(),
			UserId:     id,
			Type:       types.NotificationMessage,
			RoomId:     r.externalId,
			SenderId:   c.user.Id,
			SenderName: c.user.DisplayName,
			CreatedAt:  msg.Timestamp,
		})
	}
	if len(notifications) == 0 {
		return
	}

	if err := r.db.CreateNotifications(ctx, notifications); err != nil {
		r.log.Println("create notifications:", err)
		return
	}

	r.cs.NotifyUsers(toNotificationViews(notifications))
}

func (r *Room) handleRead(msg *ClientMessage) {
	ctx, cancel := r.ctx()
	defer cancel()

	var (
		n   int
		err error
	)
	if msg.Read.SeqId > 0 {
		n, err = r.db.MarkMessageViewed(ctx, r.id, msg.Read.SeqId, msg.UserId)
	} else {
		n, err = r.db.MarkMessagesViewed(ctx, r.id, msg.UserId)
	}
	if err != nil {
		r.log.Println("mark messages viewed:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	msg.client.queueMessage(NoErrOK(msg.Id, map[string]any{"viewed": n}))
}

func (r *Room) handleMemberChange(change memberChange) {
	if change.subscribed {
		r.members[change.user.Id] = struct{}{}
	}

	r.broadcast(&ServerMessage{
		Notification: &Notification{
			SubscriptionChange: &SubscriptionChange{
				RoomId:     r.externalId,
				Subscribed: change.subscribed,
				User:       change.user,
			},
		},
	})

	if !change.subscribed {
		delete(r.members, change.user.Id)
		r.removeAllClientsForUser(change.user.Id)
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

// removeClient reports whether c was in the room.
func (r *Room) removeClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	c.delRoom(r.externalId)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	if len(r.clients) == 0 && r.killTimer != nil {
		r.killTimer.Reset(idleRoomTimeout)
	}

	return true
}

func (r *Room) removeAllClientsForUser(userId int) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	for c := range r.userMap[userId] {
		delete(r.clients, c)
		c.delRoom(r.externalId)
	}
	delete(r.userMap, userId)

	if len(r.clients) == 0 && r.killTimer != nil {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.broadcastExceptUser(msg, 0)
}

// broadcastExceptUser queues msg on every room socket, skipping all sockets of
// skipUser and msg.SkipClient.
func (r *Room) broadcastExceptUser(msg *ServerMessage, skipUser int) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for c := range r.clients {
		if c == msg.SkipClient || (skipUser != 0 && c.user.Id == skipUser) {
			continue
		}

		c.queueMessage(msg)
	}
}

func toNotificationViews(notifications []database.Notification) []types.Notification {
	views := make([]types.Notification, len(notifications))
	for i, n := range notifications {
		views[i] = types.Notification{
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
	}

	return views
}
