package server

import (
	"fmt"
	"log/slog"

	"github.com/Tyrowin/relaychat/internal/chatlog"
)

// Broadcaster fans a sender's chat message out to every other registered
// connection and records it in the message log.
type Broadcaster struct {
	registry *Registry
	sink     chatlog.Sink
	log      *slog.Logger
}

func NewBroadcaster(registry *Registry, sink chatlog.Sink, log *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, sink: sink, log: log}
}

// Delivery summarises one broadcast.
type Delivery struct {
	Recipients int
	Failed     int
	SinkErr    error
}

// Deliver appends msg to the message log, then sends each recipient the
// pending notices followed by msg itself. A log failure or a failed recipient
// is reported in the returned Delivery and never stops the fan-out.
func (b *Broadcaster) Deliver(senderID ConnID, msg Frame, notices []Frame) Delivery {
	var d Delivery

	if b.sink != nil {
		if err := b.sink.Append(msg.Text()); err != nil {
			d.SinkErr = fmt.Errorf("%w: %w", ErrLogSink, err)
			b.log.Warn("Message log append failed; broadcasting anyway",
				"conn_id", senderID, "error", err)
		}
	}

	frames := make([]Frame, 0, len(notices)+1)
	frames = append(append(frames, notices...), msg)
	d.Recipients, d.Failed = b.fanOut(senderID, frames)
	b.log.Debug("Broadcast message",
		"conn_id", senderID, "recipients", d.Recipients, "failed", d.Failed, "notices", len(notices))
	return d
}

// Announce sends notices to every connection except senderID without logging
// them; used when join announcements are not deferred.
func (b *Broadcaster) Announce(senderID ConnID, notices ...Frame) Delivery {
	var d Delivery
	d.Recipients, d.Failed = b.fanOut(senderID, notices)
	return d
}

func (b *Broadcaster) fanOut(senderID ConnID, frames []Frame) (recipients, failed int) {
	outs := b.registry.SnapshotRecipients(senderID)
	for _, out := range outs {
		if err := sendAll(out, frames); err != nil {
			failed++
			b.log.Warn("Failed to deliver to recipient", "conn_id", senderID, "error", err)
		}
	}
	return len(outs), failed
}

func sendAll(out Outbound, frames []Frame) error {
	for _, f := range frames {
		if err := out.Send(f); err != nil {
			return err
		}
	}
	return nil
}
