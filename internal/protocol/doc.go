// Package protocol holds the wire-level vocabulary of the underground chat:
// structured reply decoding, outbound text sanitation and the error kinds
// shared by transports and sessions.
//
// The chat protocol is line oriented. Every client line ends with a single
// newline, except message submissions which end with a blank line:
//
//	S: Hello %username%! Enter your personal hash or leave it empty to create new account.
//	C: f261dde6-ae79-11ea-b989-0242ac110002
//	S: {"nickname": "Bob", "account_hash": "f261dde6-ae79-11ea-b989-0242ac110002"}
//	S: Welcome to chat! Post your message below. End it with an empty line.
//	C: Hello
//	C:
//	S: Message send. Write more, end message with an empty line.
package protocol
