package events

import (
	"bytes"
	"strings"
	"testing"

	"giftchain/crypto"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	copy(out[:], bytes.Repeat([]byte{fill}, 20))
	return out
}

func TestGiftCardRedeemedAttributes(t *testing.T) {
	evt := GiftCardRedeemed{
		CardID:           7,
		Owner:            addr(0x01),
		Record:           addr(0x02),
		Recipient:        addr(0x03),
		Asset:            "USDC",
		Amount:           400,
		RemainingBalance: 600,
	}
	rendered := Render(evt)
	if rendered.Type != TypeGiftCardRedeemed {
		t.Fatalf("unexpected type %s", rendered.Type)
	}
	if rendered.Attributes["amount"] != "400" || rendered.Attributes["remainingBalance"] != "600" {
		t.Fatalf("unexpected amounts: %+v", rendered.Attributes)
	}
	if rendered.Attributes["recipient"] != crypto.FormatAddress(addr(0x03)) {
		t.Fatalf("unexpected recipient %s", rendered.Attributes["recipient"])
	}
	if !strings.HasPrefix(rendered.Attributes["giftCard"], "giftx1") {
		t.Fatalf("record address should use custody prefix")
	}
}

func TestAllowListUpdatedJoinsRecipients(t *testing.T) {
	evt := GiftCardAllowListUpdated{CardID: 1, Owner: addr(0x01), Record: addr(0x02), Recipients: [][20]byte{addr(0x0A), addr(0x0B)}}
	rendered := Render(evt)
	parts := strings.Split(rendered.Attributes["recipients"], ",")
	if len(parts) != 2 || rendered.Attributes["count"] != "2" {
		t.Fatalf("unexpected recipients attribute: %+v", rendered.Attributes)
	}

	empty := Render(GiftCardAllowListUpdated{CardID: 1})
	if empty.Attributes["recipients"] != "" || empty.Attributes["count"] != "0" {
		t.Fatalf("empty allow-list should render empty: %+v", empty.Attributes)
	}
}

type recorder struct{ seen []string }

func (r *recorder) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestBufferFlushesInOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(GiftCardCreated{CardID: 1})
	buf.Emit(GiftCardDeleted{CardID: 1})
	rec := &recorder{}
	if n := buf.Flush(Multi{rec, NoopEmitter{}}); n != 2 {
		t.Fatalf("expected 2 flushed events, got %d", n)
	}
	if len(rec.seen) != 2 || rec.seen[0] != TypeGiftCardCreated || rec.seen[1] != TypeGiftCardDeleted {
		t.Fatalf("unexpected order: %v", rec.seen)
	}
	if len(buf.Pending()) != 0 {
		t.Fatalf("buffer should be empty after flush")
	}
}

func TestFeedDeliversAndCancels(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe(1)
	feed.Emit(GiftCardCreated{CardID: 5})
	// Buffer is full; this one is dropped instead of blocking.
	feed.Emit(GiftCardCreated{CardID: 6})
	got := <-ch
	if got.(GiftCardCreated).CardID != 5 {
		t.Fatalf("unexpected event %+v", got)
	}
	cancel()
	cancel()
	if feed.Subscribers() != 0 {
		t.Fatalf("subscription should be released")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}
