package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/ratelimit"
	"github.com/npezzotti/go-vibes/internal/stats"
	"github.com/npezzotti/go-vibes/internal/types"
)

const dbTimeout = 5 * time.Second

type unloadRoomRequest struct {
	roomId  string
	deleted bool
	idle    bool
	done    chan struct{}
}

type stopRequest struct {
	done chan struct{}
}

// ChatServer owns the registry of loaded rooms and every connected client.
type ChatServer struct {
	log            *log.Logger
	db             database.VibeRepository
	stats          stats.StatsProvider
	limiter        ratelimit.Limiter
	clients        map[*Client]struct{}
	userMap        map[int]map[*Client]struct{}
	clientsLock    sync.RWMutex
	roomsMap       sync.Map
	numRooms       int
	roomsLock      sync.Mutex
	statusLock     sync.Mutex
	joinChan       chan *ClientMessage
	unloadRoomChan chan unloadRoomRequest
	stop           chan stopRequest
}

func NewChatServer(logger *log.Logger, db database.VibeRepository, su stats.StatsProvider, limiter ratelimit.Limiter) (*ChatServer, error) {
	if db == nil {
		return nil, errors.New("repository is required")
	}

	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		limiter:        limiter,
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[int]map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		stop:           make(chan stopRequest),
	}

	for _, name := range []string{"NumActiveClients", "NumActiveRooms", "NumVibesSent", "NumMessagesSent"} {
		su.RegisterMetric(name)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case msg := <-cs.joinChan:
			cs.handleJoin(msg)
		case req := <-cs.unloadRoomChan:
			cs.unloadRoom(req.roomId, req.deleted, req.idle)
			if req.done != nil {
				close(req.done)
			}
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			cs.roomsMap.Range(func(key, _ any) bool {
				cs.unloadRoom(key.(string), false, false)
				return true
			})

			cs.clientsLock.RLock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.RUnlock()

			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoin(msg *ClientMessage) {
	roomId := msg.Join.RoomId
	room, ok := cs.getRoom(roomId)
	if !ok {
		var err error
		room, err = cs.loadRoom(roomId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				msg.client.queueMessage(ErrRoomNotFound(msg.Id))
			} else {
				cs.log.Println("load room:", err)
				msg.client.queueMessage(ErrInternalError(msg.Id))
			}
			return
		}

		cs.addRoom(roomId, room)
		go room.start()
	}

	select {
	case room.joinChan <- msg:
	default:
		cs.log.Printf("join channel full on room %q", roomId)
		msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (cs *ChatServer) loadRoom(externalId string) (*Room, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	dbRoom, err := cs.db.GetRoomByExternalId(ctx, externalId)
	if err != nil {
		return nil, err
	}

	return newRoom(cs, dbRoom), nil
}

// unloadRoom stops the room goroutine and waits for it to exit. An idle
// unload is skipped when the room has picked up a client in the meantime.
func (cs *ChatServer) unloadRoom(roomId string, deleted, idle bool) {
	room, ok := cs.getRoom(roomId)
	if !ok {
		return
	}

	done := make(chan bool, 1)
	room.exit <- exitReq{deleted: deleted, idle: idle, done: done}
	if exited := <-done; !exited {
		return
	}

	cs.removeRoom(roomId)
	cs.log.Printf("unloaded room %q", roomId)
}

// UnloadRoom asks the server to stop a loaded room. When deleted is set, the
// room's sockets are told the room no longer exists.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string, deleted bool) error {
	req := unloadRoomRequest{roomId: roomId, deleted: deleted, done: make(chan struct{})}
	select {
	case cs.unloadRoomChan <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscriptionChanged forwards a membership change made outside the socket
// layer to the room, if it is loaded.
func (cs *ChatServer) SubscriptionChanged(roomId string, user types.User, subscribed bool) {
	room, ok := cs.getRoom(roomId)
	if !ok {
		return
	}

	select {
	case room.memberChan <- memberChange{user: user, subscribed: subscribed}:
	default:
		cs.log.Printf("member channel full on room %q", roomId)
	}
}

// NotifyUsers pushes each notification to the live sockets of its recipient.
func (cs *ChatServer) NotifyUsers(notifications []types.Notification) {
	for i := range notifications {
		n := notifications[i]
		n.Message = types.FormatNotificationMessage(n)
		cs.handleBroadcast(&ServerMessage{
			BaseMessage:  BaseMessage{Timestamp: Now()},
			Notification: &Notification{New: &n},
			UserId:       n.UserId,
		})
	}
}

// DisconnectUser closes every socket the user has open.
func (cs *ChatServer) DisconnectUser(userId int) {
	for _, c := range cs.getClients(userId) {
		c.stopClient()
	}
}

// IsOnline reports whether the user has at least one live socket.
func (cs *ChatServer) IsOnline(userId int) bool {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	return len(cs.userMap[userId]) > 0
}

func (cs *ChatServer) handleBroadcast(msg *ServerMessage) {
	for _, c := range cs.getClients(msg.UserId) {
		if c == msg.SkipClient {
			continue
		}

		c.queueMessage(msg)
	}
}

// RegisterClient tracks a new socket. The first socket of a user marks them
// online.
func (cs *ChatServer) RegisterClient(c *Client) {
	if first := cs.addClient(c); first {
		cs.syncUserStatus(c.user.Id)
	}
}

// DeregisterClient forgets a closed socket. Closing the last socket of a user
// marks them offline.
func (cs *ChatServer) DeregisterClient(c *Client) {
	if last := cs.removeClient(c); last {
		cs.syncUserStatus(c.user.Id)
	}
}

// syncUserStatus stores whether the user currently has a socket. Writes are
// serialized and read the registry under the lock, so the last write always
// matches the registry even when a socket opens while another closes.
func (cs *ChatServer) syncUserStatus(userId int) {
	cs.statusLock.Lock()
	defer cs.statusLock.Unlock()

	online := cs.IsOnline(userId)

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if err := cs.db.UpdateUserStatus(ctx, userId, online); err != nil {
		cs.log.Printf("update status for user %d: %v", userId, err)
	}
}

func (cs *ChatServer) addClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}
	cs.stats.Incr("NumActiveClients")

	return len(cs.userMap[c.user.Id]) == 1
}

func (cs *ChatServer) removeClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return false
	}

	delete(cs.clients, c)
	cs.stats.Decr("NumActiveClients")

	userClients := cs.userMap[c.user.Id]
	delete(userClients, c)
	if len(userClients) == 0 {
		delete(cs.userMap, c.user.Id)
		return true
	}

	return false
}

func (cs *ChatServer) getClients(userId int) []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.userMap[userId]))
	for c := range cs.userMap[userId] {
		clients = append(clients, c)
	}

	return clients
}

func (cs *ChatServer) addRoom(id string, r *Room) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	cs.roomsMap.Store(id, r)
	cs.numRooms++
	cs.stats.Incr("NumActiveRooms")
}

func (cs *ChatServer) getRoom(id string) (*Room, bool) {
	r, ok := cs.roomsMap.Load(id)
	if !ok {
		return nil, false
	}

	return r.(*Room), true
}

func (cs *ChatServer) removeRoom(id string) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	if _, loaded := cs.roomsMap.LoadAndDelete(id); loaded {
		cs.numRooms--
		cs.stats.Decr("NumActiveRooms")
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	req := stopRequest{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
