package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Reply field names used by the chat server.
const (
	FieldNickname    = "nickname"
	FieldAccountHash = "account_hash"
)

// ReplyKind distinguishes the two shapes a structured reply line can take.
type ReplyKind int

const (
	// ReplyEmpty is a falsy payload: null, false, 0, "", [] or {}.
	// The server sends it for an unknown token.
	ReplyEmpty ReplyKind = iota
	// ReplyRecord is a non-empty JSON object.
	ReplyRecord
)

// String returns the string representation of ReplyKind
func (k ReplyKind) String() string {
	if k == ReplyRecord {
		return "record"
	}
	return "empty"
}

// Reply is a decoded structured reply line.
type Reply struct {
	Kind   ReplyKind
	Fields map[string]any
}

// Identity is the display name the server associates with a token.
type Identity struct {
	Nickname string
}

// Account is a registered account: the token to present on later
// connections and the nickname the server assigned.
type Account struct {
	Token    string
	Nickname string
}

// ParseReply decodes one structured reply line.
// A blank line counts as an empty reply; anything that is not JSON, or is a
// truthy non-object value, is a KindDecode error.
func ParseReply(line string) (Reply, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Reply{Kind: ReplyEmpty}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return Reply{}, NewError(KindDecode, "parse reply", err)
	}

	switch t := v.(type) {
	case nil:
		return Reply{Kind: ReplyEmpty}, nil
	case bool:
		if !t {
			return Reply{Kind: ReplyEmpty}, nil
		}
	case float64:
		if t == 0 {
			return Reply{Kind: ReplyEmpty}, nil
		}
	case string:
		if t == "" {
			return Reply{Kind: ReplyEmpty}, nil
		}
	case []any:
		if len(t) == 0 {
			return Reply{Kind: ReplyEmpty}, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return Reply{Kind: ReplyEmpty}, nil
		}
		return Reply{Kind: ReplyRecord, Fields: t}, nil
	}

	return Reply{}, NewError(KindDecode, "parse reply", fmt.Errorf("unexpected payload %q", trimmed))
}

// IsEmpty reports whether the reply is the falsy "unknown token" payload.
func (r Reply) IsEmpty() bool {
	return r.Kind == ReplyEmpty
}

// Field returns a string field of a record reply.
func (r Reply) Field(key string) (string, bool) {
	if r.Kind != ReplyRecord {
		return "", false
	}
	s, ok := r.Fields[key].(string)
	return s, ok
}

// Identity returns the nickname carried by an authorization reply.
// A record without a nickname is not an authorization.
func (r Reply) Identity() (Identity, error) {
	nickname, ok := r.Field(FieldNickname)
	if r.Kind != ReplyRecord || !ok {
		return Identity{}, NewError(KindDecode, "read identity", fmt.Errorf("reply has no %s", FieldNickname))
	}
	return Identity{Nickname: nickname}, nil
}

// Account extracts the account minted by a registration reply.
func (r Reply) Account() (Account, error) {
	if r.Kind != ReplyRecord {
		return Account{}, NewError(KindRegistration, "read account", errors.New("empty registration reply"))
	}
	token, ok := r.Field(FieldAccountHash)
	if !ok || token == "" {
		return Account{}, NewError(KindRegistration, "read account", fmt.Errorf("reply has no %s", FieldAccountHash))
	}
	if err := ValidateToken(token); err != nil {
		return Account{}, Reclassify(err, KindRegistration, "read account")
	}
	nickname, _ := r.Field(FieldNickname)
	return Account{Token: token, Nickname: nickname}, nil
}

// ValidateToken checks that a token can be sent as a single protocol line.
func ValidateToken(token string) error {
	if strings.ContainsAny(token, "\r\n") {
		return NewError(KindDecode, "validate token", errors.New("token contains a line break"))
	}
	return nil
}
