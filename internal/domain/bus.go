package domain

// MessageBus decouples transports from the bot core: channels publish
// inbound events, the handler subscribes, replies are routed back to the
// channel that registered an outbound handler under its name.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
