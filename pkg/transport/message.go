package transport

// ReceivedMessage is one datagram as read from the network.
type ReceivedMessage struct {
	Data     []byte
	PeerAddr PeerAddress
}

// MessageHandler is called for each received message from the transport's
// read goroutine.
type MessageHandler func(msg *ReceivedMessage)

// Transport moves encoded messages to peers.
type Transport interface {
	Send(data []byte, peer PeerAddress) error
	Close() error
}
