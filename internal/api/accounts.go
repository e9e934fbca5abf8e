package api

import (
	"database/sql"
	"errors"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/resettoken"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	PhoneNumber string `json:"phone_number"`
}

type UpdateAccountRequest struct {
	DisplayName string `json:"display_name"`
	PhoneNumber string `json:"phone_number"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
}

type UpdateSettingsRequest struct {
	EmailNotifications *bool `json:"email_notifications"`
	PushNotifications  *bool `json:"push_notifications"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type ConfirmPasswordResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func validEmail(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}

func validatePassword(passwd string) *ApiError {
	if len(passwd) < minPasswordLength {
		return NewValidationError("password must be at least 6 characters")
	}

	return nil
}

func (s *VibesApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		s.writeError(w, NewValidationError("email, password and display name are required"))
		return
	}

	if !validEmail(req.Email) {
		s.writeError(w, NewValidationError("invalid email address"))
		return
	}

	if errResp := validatePassword(req.Password); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newUser, err := s.db.CreateAccount(r.Context(), database.CreateAccountParams{
		EmailAddress: req.Email,
		DisplayName:  req.DisplayName,
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		PasswordHash: pwdHash,
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			s.writeError(w, NewConflictError("an account with this email already exists"))
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, toUser(newUser))
}

func (s *VibesApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if !s.decodeJson(w, r, &lr) {
		return
	}

	lr.Email = strings.TrimSpace(lr.Email)
	if lr.Email == "" || lr.Password == "" {
		s.writeError(w, NewValidationError("email and password are required"))
		return
	}

	dbUser, err := s.db.GetAccountByEmail(r.Context(), lr.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewInvalidCredentialsError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		s.writeError(w, NewInvalidCredentialsError())
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultJwtExpiration)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if err := s.db.UpdateUserStatus(r.Context(), dbUser.Id, true); err != nil {
		s.log.Println("update user status:", err)
	} else {
		dbUser.Online = true
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, toUser(dbUser))
}

func (s *VibesApp) session(w http.ResponseWriter, r *http.Request) {
	s.getAccount(w, r)
}

func (s *VibesApp) logout(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	s.cs.DisconnectUser(userId)
	if err := s.db.UpdateUserStatus(r.Context(), userId, false); err != nil {
		s.log.Println("update user status:", err)
	}

	http.SetCookie(w, expiredJwtCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (s *VibesApp) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if !validEmail(req.Email) {
		s.writeError(w, NewValidationError("invalid email address"))
		return
	}

	// The reply does not reveal whether the address has an account.
	defer s.writeJson(w, http.StatusAccepted, nil)

	user, err := s.db.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Println("get account by email:", err)
		}
		return
	}

	token, err := s.resets.Issue(r.Context(), user.Id)
	if err != nil {
		s.log.Println("issue reset token:", err)
		return
	}

	link := s.publicURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(user.EmailAddress, user.DisplayName, link); err != nil {
		s.log.Printf("send password reset to user %d: %v", user.Id, err)
	}
}

func (s *VibesApp) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPasswordResetRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if req.Token == "" {
		s.writeError(w, NewValidationError("reset token is required"))
		return
	}

	if errResp := validatePassword(req.Password); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	accountId, err := s.resets.Consume(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, resettoken.ErrInvalidToken) {
			s.writeError(w, NewValidationError("reset link is invalid or has expired"))
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if err := s.db.UpdatePassword(r.Context(), accountId, pwdHash); err != nil {
		s.writeError(w, dbError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *VibesApp) getAccount(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	user, err := s.db.GetAccountById(r.Context(), userId)
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toUser(user))
}

func (s *VibesApp) updateAccount(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		s.writeError(w, NewValidationError("display name is required"))
		return
	}

	dbUser, err := s.db.UpdateAccount(r.Context(), database.UpdateAccountParams{
		UserId:      userId,
		DisplayName: req.DisplayName,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		DateOfBirth: strings.TrimSpace(req.DateOfBirth),
		Gender:      strings.TrimSpace(req.Gender),
	})
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toUser(dbUser))
}

func (s *VibesApp) updateSettings(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	var req UpdateSettingsRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	dbUser, err := s.db.UpdateSettings(r.Context(), database.UpdateSettingsParams{
		UserId:             userId,
		EmailNotifications: req.EmailNotifications,
		PushNotifications:  req.PushNotifications,
	})
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toUser(dbUser))
}

func (s *VibesApp) deleteAccount(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.currentUserId(w, r)
	if !ok {
		return
	}

	ownedRooms, err := s.db.DeleteAccount(r.Context(), userId)
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	for _, roomId := range ownedRooms {
		if err := s.cs.UnloadRoom(r.Context(), roomId, true); err != nil {
			s.log.Printf("unload room %q: %v", roomId, err)
		}
	}
	s.cs.DisconnectUser(userId)

	http.SetCookie(w, expiredJwtCookie())
	w.WriteHeader(http.StatusNoContent)
}
