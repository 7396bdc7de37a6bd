// Package users persists users as documents keyed by id in the "users"
// bucket and maintains the follow relation.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"example.com/conduit/internal/auth"
	"example.com/conduit/internal/docstore"
	"example.com/conduit/internal/logger"
	"example.com/conduit/internal/models"
	"github.com/google/uuid"
)

const (
	Bucket          = "users"
	FollowersBucket = "followers"
)

var (
	ErrInvalidUser        = errors.New("invalid user")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotSaved           = errors.New("user has no id")
)

var logg = logger.New()

// document is the stored record shape; the id is the document key.
type document struct {
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	PasswordDigest string   `json:"password_digest"`
	Bio            string   `json:"bio"`
	Image          string   `json:"image"`
	Following      []string `json:"following"`
}

func toDocument(u *models.User) document {
	following := u.Following
	if following == nil {
		following = []string{}
	}
	return document{
		Username:       u.Username,
		Email:          u.Email,
		PasswordDigest: u.PasswordDigest,
		Bio:            u.Bio,
		Image:          u.Image,
		Following:      following,
	}
}

func fromDocument(id string, d document) *models.User {
	following := d.Following
	if following == nil {
		following = []string{}
	}
	return &models.User{
		ID:             id,
		Username:       d.Username,
		Email:          d.Email,
		PasswordDigest: d.PasswordDigest,
		Bio:            d.Bio,
		Image:          d.Image,
		Following:      following,
	}
}

type Repo struct {
	store      docstore.Client
	bcryptCost int
}

func New(store docstore.Client, bcryptCost int) *Repo {
	return &Repo{store: store, bcryptCost: bcryptCost}
}

// Save upserts the full document. A user without an id gets a fresh UUID,
// assigned only once the store has accepted the write. Store errors are
// returned as is.
func (r *Repo) Save(ctx context.Context, u *models.User) error {
	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}

	body, err := docstore.Marshal(toDocument(u))
	if err != nil {
		return err
	}

	if err := r.store.Upsert(ctx, Bucket, id, body); err != nil {
		logg.Error("users", "Failed to save user", err)
		return err
	}

	u.ID = id
	return nil
}

// FindByEmail returns the first user whose email matches, or nil when none does.
func (r *Repo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	rows, err := r.store.Query(ctx, docstore.Query{
		Bucket: Bucket,
		Field:  "email",
		Equals: email,
		Limit:  1,
	})
	if err != nil {
		logg.Error("users", "Failed to query user by email", err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var d document
	if err := json.Unmarshal(rows[0].Content, &d); err != nil {
		return nil, fmt.Errorf("users: decode %s: %w", rows[0].ID, err)
	}
	return fromDocument(rows[0].ID, d), nil
}

// FindByID returns the user stored under id, or nil when absent.
func (r *Repo) FindByID(ctx context.Context, id string) (*models.User, error) {
	res, err := r.store.Lookup(ctx, Bucket, id)
	if err != nil {
		logg.Error("users", "Failed to look up user", err)
		return nil, err
	}
	if !res.Exists {
		return nil, nil
	}

	var d document
	if err := res.Decode(&d); err != nil {
		return nil, fmt.Errorf("users: decode %s: %w", id, err)
	}
	return fromDocument(id, d), nil
}

// Follow appends other's id to u's stored following list with a single
// partial mutation. Duplicates are not checked.
func (r *Repo) Follow(ctx context.Context, u, other *models.User) error {
	if u.ID == "" || other.ID == "" {
		return ErrNotSaved
	}

	spec, err := docstore.ArrayAppend("following", other.ID)
	if err != nil {
		return err
	}
	if err := r.store.Mutate(ctx, Bucket, u.ID, []docstore.MutationSpec{spec}); err != nil {
		logg.Error("users", "Failed to append to following", err)
		return err
	}

	u.Following = append(u.Following, other.ID)
	return nil
}

// UpdateProfile replaces bio and image in place.
func (r *Repo) UpdateProfile(ctx context.Context, u *models.User, bio, image string) error {
	if u.ID == "" {
		return ErrNotSaved
	}

	bioSpec, err := docstore.Replace("bio", bio)
	if err != nil {
		return err
	}
	imageSpec, err := docstore.Replace("image", image)
	if err != nil {
		return err
	}
	if err := r.store.Mutate(ctx, Bucket, u.ID, []docstore.MutationSpec{bioSpec, imageSpec}); err != nil {
		logg.Error("users", "Failed to update profile", err)
		return err
	}

	u.Bio, u.Image = bio, image
	return nil
}

// Register validates the input, hashes the password and saves a new user.
func (r *Repo) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	if len(username) == 0 || len(username) > 50 {
		return nil, fmt.Errorf("%w: username must be 1-50 characters", ErrInvalidUser)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is not valid", ErrInvalidUser)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidUser)
	}

	existing, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	digest, err := auth.HashPassword(password, r.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}

	u := &models.User{
		Username:       username,
		Email:          email,
		PasswordDigest: digest,
		Following:      []string{},
	}
	if err := r.Save(ctx, u); err != nil {
		return nil, err
	}

	logg.Info("users", "User registered with user_id="+u.ID)
	return u, nil
}

// Authenticate returns the user whose email and password match.
func (r *Repo) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := r.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}

	if err := auth.CheckPassword(u.PasswordDigest, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return u, nil
}

// --- Followers index ---

// RecordFollower appends followerID to followeeID's followers document,
// creating it on first use.
func (r *Repo) RecordFollower(ctx context.Context, followeeID, followerID string) error {
	spec, err := docstore.ArrayAppend("followers", followerID)
	if err != nil {
		return err
	}
	if err := r.store.Mutate(ctx, FollowersBucket, followeeID, []docstore.MutationSpec{spec}, docstore.WithCreate()); err != nil {
		logg.Error("users", "Failed to record follower", err)
		return err
	}
	return nil
}

// Followers returns the ids recorded as following id.
func (r *Repo) Followers(ctx context.Context, id string) ([]string, error) {
	res, err := r.store.Lookup(ctx, FollowersBucket, id, "followers")
	if err != nil {
		logg.Error("users", "Failed to read followers", err)
		return nil, err
	}

	followers := []string{}
	if !res.Exists || !res.PathExists("followers") {
		return followers, nil
	}
	if err := res.ContentAs("followers", &followers); err != nil {
		return nil, fmt.Errorf("users: decode followers of %s: %w", id, err)
	}
	return followers, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
