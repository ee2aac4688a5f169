package domain

import "context"

// ConversationMemory produces the ordered, role-tagged context for one exchange.
type ConversationMemory interface {
	// Begin returns the full context for msg, ending with msg as a user utterance.
	Begin(ctx context.Context, msg InboundMessage) ([]Utterance, error)
	// Commit records the assistant reply to msg.
	Commit(ctx context.Context, msg InboundMessage, reply Utterance) error
}
