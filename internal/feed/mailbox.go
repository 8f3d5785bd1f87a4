package feed

import "khorcha/internal/engine"

// Mailbox holds at most one undelivered dashboard. A newer dashboard
// replaces an older one that was not taken yet, so a slow reader only ever
// sees the latest state.
type Mailbox struct {
	ch chan engine.Dashboard
}

func NewMailbox() *Mailbox {
	return &Mailbox{ch: make(chan engine.Dashboard, 1)}
}

// Put never blocks.
func (m *Mailbox) Put(d engine.Dashboard) {
	for {
		select {
		case m.ch <- d:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// C is the channel to read dashboards from.
func (m *Mailbox) C() <-chan engine.Dashboard {
	return m.ch
}
