package store

import "time"

// User represents a person authenticated via OAuth.
type User struct {
	ID           string
	OAuthSubject string
	PrimaryEmail string
	DisplayName  string
	FriendCode   string
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// Contact is a user's single shareable contact card. Every field besides
// ID/OwnerID is optional.
type Contact struct {
	ID          string
	OwnerID     string
	FirstName   *string
	LastName    *string
	Nickname    *string
	PhoneNumber *string
	Email       *string
	Instagram   *string
	Discord     *string
	Linkedin    *string
	Pronouns    *string
	Company     *string
	Address     *string
	Birthday    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Friendship is an unordered pair of users. Rows are stored with
// UserAID < UserBID; queries treat the relation symmetrically.
type Friendship struct {
	UserAID   string
	UserBID   string
	CreatedAt time.Time
}

// RequestStatus is the lifecycle state of a friend request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
)

// FriendRequest is a directed request from one user to another. Once it
// leaves PENDING it is a permanent historical record.
type FriendRequest struct {
	ID          string
	RequesterID string
	ReceiverID  string
	Status      RequestStatus
	Message     *string
	CreatedAt   time.Time
	RespondedAt *time.Time
}
