package mail

import "context"

// Mail is a templated outbound message. Template names a builtin body
// template; Params feeds its placeholders.
type Mail struct {
	To       []string
	Subject  string
	Template string
	Params   map[string]string
}

type Sender interface {
	Send(ctx context.Context, m Mail) error
}
