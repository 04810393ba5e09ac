package devserver

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/lawnchairsociety/minechat/internal/database"
	"github.com/lawnchairsociety/minechat/internal/moderation"
	"github.com/lawnchairsociety/minechat/internal/protocol"
)

// Lines the writer port sends, as the public server words them.
const (
	GreetingLine = "Hello %username%! Enter your personal hash or leave it empty to create new account."
	PromptLine   = "Enter preferred nickname below:"
	WelcomeLine  = "Welcome to chat! Post your message below. End it with an empty line."
	AckLine      = "Message send. Write more, end message with an empty line."
)

// handleWriter runs the server side of the writer protocol.
func (s *Server) handleWriter(client Client) {
	log := s.log.With("remote_addr", client.RemoteAddr())
	ip := extractIP(client.RemoteAddr())

	if err := client.WriteLine(GreetingLine); err != nil {
		return
	}
	token, err := client.ReadLine()
	if err != nil {
		return
	}

	if token != "" {
		if locked, remaining := s.guard.Locked(ip); locked {
			log.Warn("Token rejected - address locked out", "ip", ip, "remaining", remaining)
			return
		}

		account, ok, err := s.accounts.Authorize(token)
		if err != nil {
			log.Error("Failed to look up account", "error", err)
			return
		}
		if ok {
			s.guard.RecordSuccess(ip)
			log.Info("Client authorized", "nickname", account.Nickname)
			if s.sendAccount(client, token, account) != nil {
				return
			}
			s.serveMessages(client, account.Nickname)
			return
		}
		log.Info("Unknown token")
		if locked, lockout := s.guard.RecordFailure(ip); locked {
			log.Warn("Too many unknown tokens, locking out", "ip", ip, "lockout", lockout)
			return
		}
		if err := client.WriteLine("null"); err != nil {
			return
		}
	}

	if err := client.WriteLine(PromptLine); err != nil {
		return
	}
	nickname, err := client.ReadLine()
	if err != nil {
		return
	}

	if allowed, reason := s.names.Allowed(nickname); !allowed {
		log.Info("Nickname refused", "nickname", nickname, "reason", reason)
		nickname = ""
	}

	token, account, err := s.accounts.Register(nickname)
	if err != nil {
		log.Error("Failed to register account", "error", err)
		return
	}
	log.Info("Account registered", "nickname", account.Nickname)

	if s.sendAccount(client, token, account) != nil {
		return
	}
	s.serveMessages(client, account.Nickname)
}

// sendAccount sends the account record followed by the welcome line.
func (s *Server) sendAccount(client Client, token string, account *database.Account) error {
	record, err := json.Marshal(map[string]string{
		protocol.FieldNickname:    account.Nickname,
		protocol.FieldAccountHash: token,
	})
	if err != nil {
		return err
	}
	if err := client.WriteLine(string(record)); err != nil {
		return err
	}
	return client.WriteLine(WelcomeLine)
}

// serveMessages reads blank-line terminated messages until the client
// leaves. Every terminated message is acknowledged, including ones that
// moderation drops; the rest are published as "nickname: line".
func (s *Server) serveMessages(client Client, nickname string) {
	log := s.log.With("remote_addr", client.RemoteAddr(), "nickname", nickname)
	spam := moderation.NewSpamTracker(s.cfg.Moderation.Spam)

	var body []string
	for {
		line, err := client.ReadLine()
		if err != nil {
			return
		}
		if line != "" {
			body = append(body, line)
			continue
		}

		if len(body) > 0 {
			s.publish(log, spam, nickname, body)
		}
		body = nil

		if err := client.WriteLine(AckLine); err != nil {
			return
		}
	}
}

// publish screens one message and broadcasts what survives.
func (s *Server) publish(log *slog.Logger, spam *moderation.SpamTracker, nickname string, body []string) {
	if verdict := spam.Check(strings.Join(body, "\n")); !verdict.Allowed {
		log.Info("Message dropped", "reason", verdict.Reason, "retry_in", verdict.Wait)
		return
	}

	lines := make([]string, 0, len(body))
	for _, text := range body {
		result := s.words.Check(strings.TrimSpace(text))
		if result.Blocked(s.words.Mode()) {
			log.Info("Message blocked", "matched", result.Matched)
			return
		}
		lines = append(lines, result.Filtered)
	}

	for _, text := range lines {
		if err := s.hub.Publish(nickname + ": " + text); err != nil {
			log.Error("Failed to publish message", "error", err)
		}
	}
}
