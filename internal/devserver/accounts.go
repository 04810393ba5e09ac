package devserver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lawnchairsociety/minechat/internal/database"
)

// defaultNickname is assigned when a client registers with an empty name.
const defaultNickname = "anonymous"

// Accounts issues and checks account tokens.
type Accounts struct {
	db *database.Database
}

func NewAccounts(db *database.Database) *Accounts {
	return &Accounts{db: db}
}

// Register mints a token for a new account. A taken nickname gets a suffix
// derived from the token, so registration never fails on a name clash.
func (a *Accounts) Register(nickname string) (token string, account *database.Account, err error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", nil, fmt.Errorf("failed to mint token: %w", err)
	}
	token = id.String()

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = defaultNickname
	}

	account, err = a.db.CreateAccount(token, nickname)
	if errors.Is(err, database.ErrNicknameTaken) {
		account, err = a.db.CreateAccount(token, nickname+"-"+token[:8])
	}
	if err != nil {
		return "", nil, err
	}
	return token, account, nil
}

// Authorize returns the account a token belongs to. ok is false for an
// unknown token.
func (a *Accounts) Authorize(token string) (account *database.Account, ok bool, err error) {
	account, err = a.db.AccountByToken(token)
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := a.db.TouchAccount(account.ID); err != nil {
		return nil, false, err
	}
	return account, true, nil
}
