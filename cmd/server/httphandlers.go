package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	appkafka "example.com/conduit/internal/broker"
	"example.com/conduit/internal/middleware"
	"example.com/conduit/internal/models"
	"example.com/conduit/internal/tags"
	"example.com/conduit/internal/users"
	"github.com/gorilla/mux"
)

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

// authResponse is returned by registration and login.
type authResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) issueAuth(w http.ResponseWriter, status int, u *models.User) {
	tokenStr, err := s.tokens.Issue(u.ID)
	if err != nil {
		logg.Error("http/auth", "Failed to sign token", err)
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, authResponse{User: u, Token: tokenStr})
}

// currentUser loads the user named by the JWT, writing the error response itself.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request, module string) (*models.User, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info(module, "Unauthorized request")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	u, err := s.users.FindByID(r.Context(), userID)
	if err != nil {
		logg.Error(module, "Failed to load user_id="+userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if u == nil {
		logg.Info(module, "Token refers to unknown user_id="+userID)
		http.Error(w, "user not found", http.StatusUnauthorized)
		return nil, false
	}
	return u, true
}

// --- HTTP Handlers ---

// createUserHandler registers a user.
// Expects JSON body: {"username": "jake", "email": "jake@jake.jake", "password": "..."}
// Returns 201 with {"user": {...}, "token": "..."}
func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/users", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	u, err := s.users.Register(r.Context(), body.Username, body.Email, body.Password)
	switch {
	case errors.Is(err, users.ErrInvalidUser):
		logg.Info("http/users", "Rejected registration: "+err.Error())
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, users.ErrEmailTaken):
		logg.Info("http/users", "Email already registered")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		logg.Error("http/users", "Failed to create user", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ev := models.UserRegisteredEvent{UserID: u.ID, Username: u.Username, Created: time.Now()}
	if err := appkafka.PublishEvent(s.kafkaWriter, models.EventUserRegistered, ev); err != nil {
		logg.Error("http/users", "Failed to publish registration event", err)
	}

	logg.Info("http/users", "User created successfully with user_id="+u.ID)
	s.issueAuth(w, http.StatusCreated, u)
}

// loginHandler exchanges email and password for a token.
// Expects JSON body: {"email": "...", "password": "..."}
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/login", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	u, err := s.users.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			logg.Info("http/login", "Invalid credentials")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		logg.Error("http/login", "Failed to authenticate", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.issueAuth(w, http.StatusOK, u)
}

// currentUserHandler returns the user named by the token.
func (s *Server) currentUserHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r, "http/user")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

// updateUserHandler replaces bio and image of the current user.
// Expects JSON body: {"bio": "...", "image": "..."}
func (s *Server) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Bio   string `json:"bio"`
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/user", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	u, ok := s.currentUser(w, r, "http/user")
	if !ok {
		return
	}

	if err := s.users.UpdateProfile(r.Context(), u, body.Bio, body.Image); err != nil {
		logg.Error("http/user", "Failed to update profile", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

// followHandler appends the followee to the current user's following list.
// Expects JSON body: {"followee_id": "<id>"}
// Uses user_id from JWT token.
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FolloweeID string `json:"followee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/follow", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if body.FolloweeID == "" {
		http.Error(w, "followee_id is required", http.StatusBadRequest)
		return
	}

	me, ok := s.currentUser(w, r, "http/follow")
	if !ok {
		return
	}
	if me.ID == body.FolloweeID {
		logg.Info("http/follow", "Rejected self-follow for user_id="+me.ID)
		http.Error(w, "cannot follow yourself", http.StatusBadRequest)
		return
	}

	other, err := s.users.FindByID(r.Context(), body.FolloweeID)
	if err != nil {
		logg.Error("http/follow", "Failed to load followee", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if other == nil {
		http.Error(w, "followee not found", http.StatusNotFound)
		return
	}

	if err := s.users.Follow(r.Context(), me, other); err != nil {
		logg.Error("http/follow", "Failed to create follow relationship", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// The follow is stored; a lost event only delays the followers index.
	ev := models.FollowEvent{UserID: me.ID, FolloweeID: other.ID, Created: time.Now()}
	if err := appkafka.PublishEvent(s.kafkaWriter, models.EventUserFollowed, ev); err != nil {
		logg.Error("http/follow", "Failed to publish follow event", err)
	}

	logg.Info("http/follow", "User "+me.ID+" followed "+other.ID)
	writeJSON(w, http.StatusOK, map[string]any{"following": me.Following})
}

// getFollowersHandler returns the followers index of a user.
func (s *Server) getFollowersHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	followers, err := s.users.Followers(r.Context(), id)
	if err != nil {
		logg.Error("http/followers", "Failed to get followers", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followers": followers})
}

// listTagsHandler renders every tag name.
// Returns JSON response: {"tags": ["name", ...]}
func (s *Server) listTagsHandler(w http.ResponseWriter, r *http.Request) {
	names, err := s.tags.Names(r.Context())
	if err != nil {
		logg.Error("http/tags", "Failed to list tags", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": names})
}

// createTagHandler stores a tag.
// Expects JSON body: {"name": "golang"}
func (s *Server) createTagHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/tags", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	tag, err := s.tags.Save(r.Context(), body.Name)
	if err != nil {
		if errors.Is(err, tags.ErrInvalidTag) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logg.Error("http/tags", "Failed to save tag", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tag": tag})
}
