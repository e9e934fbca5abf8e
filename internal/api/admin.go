package api

import (
	"net/http"

	"github.com/npezzotti/go-vibes/internal/types"
)

func (s *VibesApp) listAllUsers(w http.ResponseWriter, r *http.Request) {
	dbUsers, err := s.db.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	users := make([]types.User, 0, len(dbUsers))
	for _, u := range dbUsers {
		users = append(users, toUser(u))
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *VibesApp) listAllRooms(w http.ResponseWriter, r *http.Request) {
	dbRooms, err := s.db.ListRooms(r.Context())
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

func (s *VibesApp) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.CountStats(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, stats)
}
