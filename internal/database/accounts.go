package database

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ErrAccountNotFound is returned when no account matches a token.
var ErrAccountNotFound = errors.New("account not found")

// ErrNicknameTaken is returned when another account already uses the nickname.
var ErrNicknameTaken = errors.New("nickname already taken")

// ErrAccountExists is returned when an account with the same token exists.
var ErrAccountExists = errors.New("account already exists")

// Account is a registered chat account. The raw token is never stored.
type Account struct {
	ID          int64
	TokenDigest string
	Nickname    string
	CreatedAt   time.Time
	LastSeen    *time.Time
}

// TokenDigest returns the hex BLAKE2b-256 digest under which a token is stored.
func TokenDigest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateAccount stores a new account for the given token and nickname.
func (d *Database) CreateAccount(token, nickname string) (*Account, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, errors.New("nickname cannot be empty")
	}
	if token == "" {
		return nil, errors.New("token cannot be empty")
	}

	account := &Account{
		TokenDigest: TokenDigest(token),
		Nickname:    nickname,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}

	id, err := d.insert(
		"INSERT INTO accounts (token_digest, nickname, created_at) VALUES (?, ?, ?)",
		account.TokenDigest, account.Nickname, account.CreatedAt,
	)
	if err != nil {
		if d.dialect.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "nickname") {
				return nil, ErrNicknameTaken
			}
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	account.ID = id

	return account, nil
}

// AccountByToken looks up the account a token was issued for.
func (d *Database) AccountByToken(token string) (*Account, error) {
	account := &Account{}
	var lastSeen sql.NullTime

	err := d.db.QueryRow(
		d.qb.Build("SELECT id, token_digest, nickname, created_at, last_seen FROM accounts WHERE token_digest = ?"),
		TokenDigest(token),
	).Scan(&account.ID, &account.TokenDigest, &account.Nickname, &account.CreatedAt, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if lastSeen.Valid {
		account.LastSeen = &lastSeen.Time
	}
	return account, nil
}

// NicknameExists reports whether an account already uses the nickname.
func (d *Database) NicknameExists(nickname string) (bool, error) {
	var count int
	err := d.db.QueryRow(
		d.qb.Build("SELECT COUNT(*) FROM accounts WHERE nickname = ?"),
		nickname,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check nickname: %w", err)
	}
	return count > 0, nil
}

// TouchAccount records that the account was just used.
func (d *Database) TouchAccount(id int64) error {
	result, err := d.db.Exec(
		d.qb.Build("UPDATE accounts SET last_seen = ? WHERE id = ?"),
		time.Now().UTC().Truncate(time.Second), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}
