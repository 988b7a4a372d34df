// Package transport connects the router to a chat network.
package transport

import "context"

// Contact identifies the sender of a message on the chat network.
type Contact struct {
	ID         string
	Nickname   string
	RemarkName string
}

type Message struct {
	From Contact
	Text string
}

// Transport is a chat connection. Receive returns io.EOF once the source
// is exhausted.
type Transport interface {
	Start(ctx context.Context) error
	Receive(ctx context.Context) (Message, error)
	Send(ctx context.Context, to Contact, text string) error
}

// Handler produces the reply for an inbound message. The boolean is false
// when nothing should be sent back.
type Handler func(ctx context.Context, m Message) (string, bool)
