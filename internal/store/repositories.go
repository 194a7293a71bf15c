package store

import "context"

// UserRepository defines persistence operations for users.
type UserRepository interface {
	UpsertOAuthUser(ctx context.Context, subject, email, displayName string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByFriendCode(ctx context.Context, code string) (*User, error)
}

// ContactRepository handles contact card storage. Each user owns exactly one
// contact card.
type ContactRepository interface {
	// EnsureForOwner creates the owner's empty contact card if it does not
	// exist yet and returns it.
	EnsureForOwner(ctx context.Context, ownerID string) (*Contact, error)
	GetByOwner(ctx context.Context, ownerID string) (*Contact, error)
	GetByID(ctx context.Context, id string) (*Contact, error)
	Update(ctx context.Context, contact Contact) (*Contact, error)
	// ListFriendContacts returns the contact cards of every user with an
	// accepted friendship to userID. Order is unspecified.
	ListFriendContacts(ctx context.Context, userID string) ([]Contact, error)
}

// FriendshipRepository manages the symmetric friendship relation.
type FriendshipRepository interface {
	Exists(ctx context.Context, userID, otherID string) (bool, error)
	Delete(ctx context.Context, userID, otherID string) error
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// FriendRequestRepository manages directed friend requests and their
// transitions. Accept atomically creates the friendship.
type FriendRequestRepository interface {
	Create(ctx context.Context, requesterID, receiverID string, message *string) (*FriendRequest, error)
	GetByID(ctx context.Context, id string) (*FriendRequest, error)
	ListPendingForReceiver(ctx context.Context, receiverID string) ([]FriendRequest, error)
	Accept(ctx context.Context, id, receiverID string) error
	Reject(ctx context.Context, id, receiverID string) error
}
