package events

import (
	"context"
)

// ChanNotifier queues envelopes on a buffered channel. Sends block while the
// buffer is full and give up when ctx is done.
type ChanNotifier struct {
	ch chan Envelope
}

// NewChanNotifier creates a notifier with the given buffer size.
func NewChanNotifier(buffer int) *ChanNotifier {
	if buffer < 0 {
		buffer = 0
	}
	return &ChanNotifier{ch: make(chan Envelope, buffer)}
}

// Events returns the receive side of the queue.
func (n *ChanNotifier) Events() <-chan Envelope {
	return n.ch
}

// RecordAdded implements Notifier.
func (n *ChanNotifier) RecordAdded(ctx context.Context, ev RecordAdded) error {
	err := n.send(ctx, recordEnvelope(ev))
	observe("chan", TypeRecordAdded, err)
	return err
}

// RunComplete implements Notifier.
func (n *ChanNotifier) RunComplete(ctx context.Context, ev RunCompleted) error {
	err := n.send(ctx, completedEnvelope(ev))
	observe("chan", TypeRunCompleted, err)
	return err
}

func (n *ChanNotifier) send(ctx context.Context, env Envelope) error {
	select {
	case n.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
