package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = "id, oauth_subject, primary_email, display_name, friend_code, created_at, last_login_at"

const contactColumns = `id, owner_id, first_name, last_name, nickname, phone_number, email,
instagram, discord, linkedin, pronouns, company, address, birthday, created_at, updated_at`

const requestColumns = "id, requester_id, receiver_id, status, message, created_at, responded_at"

// userRepo implements UserRepository.
type userRepo struct {
	pool *pgxpool.Pool
}

func (r *userRepo) UpsertOAuthUser(ctx context.Context, subject, email, displayName string) (*User, error) {
	defer observeDB(ctx, "db.users.upsert_oauth")()

	// Friend-code collisions are possible but vanishingly rare; retry a few
	// times instead of holding a lock.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		code, err := generateFriendCode()
		if err != nil {
			return nil, err
		}
		row := r.pool.QueryRow(ctx, `
			INSERT INTO users (id, oauth_subject, primary_email, display_name, friend_code, last_login_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (oauth_subject) DO UPDATE SET
				primary_email = EXCLUDED.primary_email,
				display_name  = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE users.display_name END,
				last_login_at = NOW()
			RETURNING `+userColumns,
			uuid.NewString(), subject, email, displayName, code)
		user, err := scanUser(row)
		if err == nil {
			return user, nil
		}
		if !isUniqueViolation(err, "users_friend_code_key") {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*User, error) {
	defer observeDB(ctx, "db.users.get_by_id")()
	row := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (r *userRepo) GetByFriendCode(ctx context.Context, code string) (*User, error) {
	defer observeDB(ctx, "db.users.get_by_friend_code")()
	row := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE friend_code = $1", code)
	return scanUser(row)
}

// contactRepo implements ContactRepository.
type contactRepo struct {
	pool *pgxpool.Pool
}

func (r *contactRepo) EnsureForOwner(ctx context.Context, ownerID string) (*Contact, error) {
	defer observeDB(ctx, "db.contacts.ensure_for_owner")()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO contacts (id, owner_id) VALUES ($1, $2)
		ON CONFLICT (owner_id) DO NOTHING`,
		uuid.NewString(), ownerID)
	if err != nil {
		return nil, err
	}
	return r.GetByOwner(ctx, ownerID)
}

func (r *contactRepo) GetByOwner(ctx context.Context, ownerID string) (*Contact, error) {
	defer observeDB(ctx, "db.contacts.get_by_owner")()
	row := r.pool.QueryRow(ctx, "SELECT "+contactColumns+" FROM contacts WHERE owner_id = $1", ownerID)
	return scanContact(row)
}

func (r *contactRepo) GetByID(ctx context.Context, id string) (*Contact, error) {
	defer observeDB(ctx, "db.contacts.get_by_id")()
	row := r.pool.QueryRow(ctx, "SELECT "+contactColumns+" FROM contacts WHERE id = $1", id)
	return scanContact(row)
}

func (r *contactRepo) Update(ctx context.Context, contact Contact) (*Contact, error) {
	defer observeDB(ctx, "db.contacts.update")()
	row := r.pool.QueryRow(ctx, `
		UPDATE contacts SET
			first_name = $2, last_name = $3, nickname = $4, phone_number = $5,
			email = $6, instagram = $7, discord = $8, linkedin = $9,
			pronouns = $10, company = $11, address = $12, birthday = $13,
			updated_at = NOW()
		WHERE owner_id = $1
		RETURNING `+contactColumns,
		contact.OwnerID, contact.FirstName, contact.LastName, contact.Nickname,
		contact.PhoneNumber, contact.Email, contact.Instagram, contact.Discord,
		contact.Linkedin, contact.Pronouns, contact.Company, contact.Address,
		contact.Birthday)
	return scanContact(row)
}

func (r *contactRepo) ListFriendContacts(ctx context.Context, userID string) ([]Contact, error) {
	defer observeDB(ctx, "db.contacts.list_friend_contacts")()
	rows, err := r.pool.Query(ctx, `
		SELECT `+contactColumns+` FROM contacts c
		JOIN friendships f
			ON (f.user_a_id = $1 AND c.owner_id = f.user_b_id)
			OR (f.user_b_id = $1 AND c.owner_id = f.user_a_id)`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContactRow(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// friendshipRepo implements FriendshipRepository.
type friendshipRepo struct {
	pool *pgxpool.Pool
}

func (r *friendshipRepo) Exists(ctx context.Context, userID, otherID string) (bool, error) {
	defer observeDB(ctx, "db.friendships.exists")()
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE user_a_id = LEAST($1::text, $2::text) AND user_b_id = GREATEST($1::text, $2::text)
		)`, userID, otherID).Scan(&exists)
	return exists, err
}

func (r *friendshipRepo) Delete(ctx context.Context, userID, otherID string) error {
	defer observeDB(ctx, "db.friendships.delete")()
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM friendships
		WHERE user_a_id = LEAST($1::text, $2::text) AND user_b_id = GREATEST($1::text, $2::text)`,
		userID, otherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *friendshipRepo) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	defer observeDB(ctx, "db.friendships.list_friend_ids")()
	rows, err := r.pool.Query(ctx, `
		SELECT CASE WHEN user_a_id = $1 THEN user_b_id ELSE user_a_id END
		FROM friendships
		WHERE user_a_id = $1 OR user_b_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// friendRequestRepo implements FriendRequestRepository.
type friendRequestRepo struct {
	pool *pgxpool.Pool
}

func (r *friendRequestRepo) Create(ctx context.Context, requesterID, receiverID string, message *string) (*FriendRequest, error) {
	defer observeDB(ctx, "db.friend_requests.create")()

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE user_a_id = LEAST($1::text, $2::text) AND user_b_id = GREATEST($1::text, $2::text)
		)`, requesterID, receiverID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyFriends
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO friend_requests (id, requester_id, receiver_id, status, message)
		VALUES ($1, $2, $3, 'PENDING', $4)
		RETURNING `+requestColumns,
		uuid.NewString(), requesterID, receiverID, message)
	req, err := scanFriendRequest(row)
	if isUniqueViolation(err, "friend_requests_pending_pair_idx") {
		return nil, ErrDuplicateRequest
	}
	return req, err
}

func (r *friendRequestRepo) GetByID(ctx context.Context, id string) (*FriendRequest, error) {
	defer observeDB(ctx, "db.friend_requests.get_by_id")()
	row := r.pool.QueryRow(ctx, "SELECT "+requestColumns+" FROM friend_requests WHERE id = $1", id)
	return scanFriendRequest(row)
}

func (r *friendRequestRepo) ListPendingForReceiver(ctx context.Context, receiverID string) ([]FriendRequest, error) {
	defer observeDB(ctx, "db.friend_requests.list_pending")()
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM friend_requests
		WHERE receiver_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC`, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []FriendRequest
	for rows.Next() {
		req, err := scanFriendRequestRow(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

func (r *friendRequestRepo) Accept(ctx context.Context, id, receiverID string) error {
	defer observeDB(ctx, "db.friend_requests.accept")()
	return r.respond(ctx, id, receiverID, RequestAccepted)
}

func (r *friendRequestRepo) Reject(ctx context.Context, id, receiverID string) error {
	defer observeDB(ctx, "db.friend_requests.reject")()
	return r.respond(ctx, id, receiverID, RequestRejected)
}

func (r *friendRequestRepo) respond(ctx context.Context, id, receiverID string, status RequestStatus) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM friend_requests
		WHERE id = $1 AND receiver_id = $2
		FOR UPDATE`, id, receiverID)
	req, err := scanFriendRequest(row)
	if err != nil {
		return err
	}
	if req.Status != RequestPending {
		return ErrRequestClosed
	}

	if _, err := tx.Exec(ctx, `
		UPDATE friend_requests SET status = $2, responded_at = NOW() WHERE id = $1`,
		id, string(status)); err != nil {
		return err
	}

	if status == RequestAccepted {
		if _, err := tx.Exec(ctx, `
			INSERT INTO friendships (user_a_id, user_b_id)
			VALUES (LEAST($1::text, $2::text), GREATEST($1::text, $2::text))
			ON CONFLICT DO NOTHING`,
			req.RequesterID, req.ReceiverID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.OAuthSubject, &u.PrimaryEmail, &u.DisplayName,
		&u.FriendCode, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanContact(row pgx.Row) (*Contact, error) {
	c, err := scanContactRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func scanContactRow(row pgx.Row) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.OwnerID, &c.FirstName, &c.LastName, &c.Nickname,
		&c.PhoneNumber, &c.Email, &c.Instagram, &c.Discord, &c.Linkedin,
		&c.Pronouns, &c.Company, &c.Address, &c.Birthday, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanFriendRequest(row pgx.Row) (*FriendRequest, error) {
	req, err := scanFriendRequestRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func scanFriendRequestRow(row pgx.Row) (*FriendRequest, error) {
	var req FriendRequest
	var status string
	err := row.Scan(&req.ID, &req.RequesterID, &req.ReceiverID, &status,
		&req.Message, &req.CreatedAt, &req.RespondedAt)
	if err != nil {
		return nil, err
	}
	req.Status = RequestStatus(status)
	return &req, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

const friendCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// generateFriendCode produces a shareable code like "K7MW-Q2PX".
func generateFriendCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate friend code: %w", err)
	}
	out := make([]byte, 0, 9)
	for i, b := range buf {
		if i == 4 {
			out = append(out, '-')
		}
		out = append(out, friendCodeAlphabet[int(b)%len(friendCodeAlphabet)])
	}
	return string(out), nil
}
