package transport

import (
	"context"
	"io"
	"sync"
)

type sent struct {
	To   Contact
	Text string
	At   int64
}

// fakeTransport delivers messages from inbox and reports io.EOF once it is
// closed. Errors in recvErrs are returned by Receive first.
type fakeTransport struct {
	inbox    chan Message
	startErr error

	mu       sync.Mutex
	recvErrs []error
	sent     []sent
	clock    func() int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan Message, 16)}
}

func (f *fakeTransport) Start(context.Context) error { return f.startErr }

func (f *fakeTransport) Receive(ctx context.Context) (Message, error) {
	f.mu.Lock()
	if len(f.recvErrs) > 0 {
		err := f.recvErrs[0]
		f.recvErrs = f.recvErrs[1:]
		f.mu.Unlock()
		return Message{}, err
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case m, ok := <-f.inbox:
		if !ok {
			return Message{}, io.EOF
		}
		return m, nil
	}
}

func (f *fakeTransport) Send(ctx context.Context, to Contact, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var at int64
	if f.clock != nil {
		at = f.clock()
	}
	f.sent = append(f.sent, sent{To: to, Text: text, At: at})
	return nil
}

func (f *fakeTransport) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}
