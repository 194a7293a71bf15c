package store

import "errors"

// ErrNotFound indicates a missing or unauthorized resource lookup.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateRequest indicates a second pending friend request between the
// same pair of users.
var ErrDuplicateRequest = errors.New("pending friend request already exists")

// ErrAlreadyFriends indicates an attempt to request or create a friendship
// that already exists.
var ErrAlreadyFriends = errors.New("users are already friends")

// ErrRequestClosed indicates a response to a friend request that has already
// left the pending state.
var ErrRequestClosed = errors.New("friend request already answered")
