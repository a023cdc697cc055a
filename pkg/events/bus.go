package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// historyLimit caps the per-channel replay buffer; oldest events are
// evicted first. Sized to hold every recorded event of a typical session.
const historyLimit = 200

// BroadcastFunc delivers one marshaled event to a delivery layer, usually
// ConnectionManager.Broadcast. Sinks must not block indefinitely; the bus
// calls them synchronously on the publishing goroutine.
type BroadcastFunc func(channel string, payload []byte)

// Bus is the in-process event hub. Recorded events are appended to a
// bounded per-channel replay buffer before being fanned out to sinks;
// transient events are fanned out only. Every recorded event gets a
// process-wide monotonic sequence number so clients can track their
// position for catchup.
type Bus struct {
	mu      sync.Mutex
	history map[string][]storedEvent
	nextSeq int

	sinkMu sync.RWMutex
	sinks  []BroadcastFunc

	logger *slog.Logger
}

// storedEvent is one replay buffer entry. The payload map does not contain
// the seq field; it is injected into the broadcast and catchup copies.
type storedEvent struct {
	seq     int
	payload map[string]any
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		history: make(map[string][]storedEvent),
		logger:  logger.With("component", "event_bus"),
	}
}

// AddSink registers a delivery callback. Called during startup wiring,
// before any publishes.
func (b *Bus) AddSink(fn BroadcastFunc) {
	if fn == nil {
		return
	}
	b.sinkMu.Lock()
	b.sinks = append(b.sinks, fn)
	b.sinkMu.Unlock()
}

// Publish records the payload in the channel's replay buffer and broadcasts
// it to all sinks. The broadcast copy carries a "seq" field for client
// position tracking; the stored copy does not (catchup re-injects it).
func (b *Bus) Publish(channel string, payload any) error {
	m, err := toMap(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.nextSeq++
	seq := b.nextSeq
	buf := append(b.history[channel], storedEvent{seq: seq, payload: m})
	if len(buf) > historyLimit {
		buf = buf[len(buf)-historyLimit:]
	}
	b.history[channel] = buf
	b.mu.Unlock()

	enriched, err := withSeq(m, seq)
	if err != nil {
		return err
	}
	b.fanOut(channel, enriched)
	return nil
}

// Transient broadcasts the payload without recording it. Used for
// high-frequency progress ticks that are worthless after the fact.
func (b *Bus) Transient(channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transient event: %w", err)
	}
	b.fanOut(channel, data)
	return nil
}

// GetCatchupEvents implements CatchupQuerier over the replay buffer,
// returning up to limit recorded events with seq greater than sinceSeq.
func (b *Bus) GetCatchupEvents(_ context.Context, channel string, sinceSeq, limit int) ([]CatchupEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := b.history[channel]
	out := make([]CatchupEvent, 0, len(buf))
	for _, evt := range buf {
		if evt.seq <= sinceSeq {
			continue
		}
		// Copy so the caller's seq injection cannot mutate the buffer.
		payload := make(map[string]any, len(evt.payload)+1)
		for k, v := range evt.payload {
			payload[k] = v
		}
		out = append(out, CatchupEvent{Seq: evt.seq, Payload: payload})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DropChannel discards a channel's replay buffer. Called when the owning
// session is deleted.
func (b *Bus) DropChannel(channel string) {
	b.mu.Lock()
	delete(b.history, channel)
	b.mu.Unlock()
}

// ChannelDepth returns the replay buffer length for a channel.
func (b *Bus) ChannelDepth(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history[channel])
}

func (b *Bus) fanOut(channel string, payload []byte) {
	b.sinkMu.RLock()
	sinks := make([]BroadcastFunc, len(b.sinks))
	copy(sinks, b.sinks)
	b.sinkMu.RUnlock()

	for _, sink := range sinks {
		sink(channel, payload)
	}
}

// toMap round-trips a typed payload through JSON into a map so the bus can
// inject the seq field without knowing the payload type.
func toMap(payload any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("event payload must be a JSON object: %w", err)
	}
	return m, nil
}

func withSeq(m map[string]any, seq int) ([]byte, error) {
	enriched := make(map[string]any, len(m)+1)
	for k, v := range m {
		enriched[k] = v
	}
	enriched["seq"] = seq

	data, err := json.Marshal(enriched)
	if err != nil {
		return nil, fmt.Errorf("marshal enriched event: %w", err)
	}
	return data, nil
}
