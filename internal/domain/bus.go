package domain

// MessageBus carries inbound platform messages to the handler.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Close()
}
