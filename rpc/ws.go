package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"nhooyr.io/websocket"

	"giftchain/core"
	"giftchain/core/events"
	"giftchain/core/types"
	"giftchain/crypto"
	"giftchain/observability"
	"giftchain/storage/eventlog"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsSubscriberSize = 64
	wsReplayPageSize = 100
)

// streamDelivered counts websocket messages through the global OTel meter
// provider; it is a no-op until telemetry is initialised.
var streamDelivered, _ = otel.Meter("giftchain/rpc").Int64Counter(
	"giftchain.rpc.stream.delivered",
	metric.WithDescription("Events written to websocket subscribers."),
)

type streamFilter struct {
	owner     string
	eventType string
}

func (f streamFilter) matches(eventType string, attrs map[string]string) bool {
	if f.eventType != "" && f.eventType != eventType {
		return false
	}
	if f.owner != "" && attrs[types.AttrOwner] != f.owner {
		return false
	}
	return true
}

type streamMessage struct {
	Sequence   int64             `json:"sequence,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// handleEventStream upgrades to a websocket and pushes committed events.
// Query parameters: owner and type filter the stream, after replays journal
// entries with a higher sequence before switching to live events.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	query := r.URL.Query()
	filter := streamFilter{eventType: strings.TrimSpace(query.Get("type"))}
	if raw := strings.TrimSpace(query.Get("owner")); raw != "" {
		owner, err := core.ParseAddress(raw)
		if err != nil {
			http.Error(w, "invalid owner", http.StatusBadRequest)
			return
		}
		filter.owner = crypto.FormatAddress(owner)
	}
	var after int64 = -1
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid after cursor", http.StatusBadRequest)
			return
		}
		after = parsed
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	observability.Events().StreamOpened()
	defer observability.Events().StreamClosed()

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter, after); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter streamFilter, after int64) error {
	updates, cancel := s.feed.Subscribe(wsSubscriberSize)
	defer cancel()

	if after >= 0 && s.journal != nil {
		replay := eventlog.Filter{Type: filter.eventType, Owner: filter.owner, After: after, Limit: wsReplayPageSize}
		err := s.journal.Replay(ctx, replay, func(rec eventlog.Record) error {
			msg := streamMessage{Sequence: rec.Sequence, Type: rec.Type, Attributes: rec.Attributes}
			return writeStreamMessage(ctx, conn, msg)
		})
		if err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			rendered := events.Render(evt)
			if rendered == nil || !filter.matches(rendered.Type, rendered.Attributes) {
				continue
			}
			msg := streamMessage{Type: rendered.Type, Attributes: rendered.Attributes}
			if err := writeStreamMessage(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

func writeStreamMessage(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return err
	}
	if streamDelivered != nil {
		streamDelivered.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", msg.Type),
			attribute.Bool("replay", msg.Sequence > 0),
		))
	}
	return nil
}
