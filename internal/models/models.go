package models

import "time"

// User is the application view of a user. ID is the document key and is not
// part of the stored body.
type User struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	PasswordDigest string   `json:"-"`
	Bio            string   `json:"bio"`
	Image          string   `json:"image"`
	Following      []string `json:"following"`
}

type Tag struct {
	Name string `json:"name"`
}

// Event keys used as Kafka message keys.
const (
	EventUserFollowed   = "user_followed"
	EventUserRegistered = "user_registered"
)

type FollowEvent struct {
	UserID     string    `json:"user_id"`
	FolloweeID string    `json:"followee_id"`
	Created    time.Time `json:"created"`
}

type UserRegisteredEvent struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Created  time.Time `json:"created"`
}
