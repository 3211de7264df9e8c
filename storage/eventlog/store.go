package eventlog

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	"giftchain/core/types"
)

// ErrChainBroken is returned by Verify when a stored digest does not match the
// recomputed hash chain.
var ErrChainBroken = errors.New("eventlog: digest chain broken")

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Record is a persisted event.
type Record struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Owner      string            `json:"owner,omitempty"`
	CardID     *uint64           `json:"cardId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	Digest     string            `json:"digest"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type   string
	Owner  string
	CardID *uint64
	After  int64
	Limit  int
}

// Store is an append-only SQLite journal of committed events. Each row carries
// a blake3 digest chained over the previous row so tampering is detectable.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	last [32]byte
}

// Open opens or creates the journal at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            owner TEXT,
            card_id INTEGER,
            payload TEXT NOT NULL,
            digest TEXT NOT NULL UNIQUE,
            recorded_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_owner_card ON events(owner, card_id);`,
		`CREATE INDEX IF NOT EXISTS events_type ON events(type);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	var digest sql.NullString
	err := s.db.QueryRow(`SELECT digest FROM events ORDER BY sequence DESC LIMIT 1`).Scan(&digest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if digest.Valid {
		raw, err := hex.DecodeString(digest.String)
		if err != nil || len(raw) != len(s.last) {
			return fmt.Errorf("eventlog: corrupt head digest")
		}
		copy(s.last[:], raw)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func chainDigest(prev [32]byte, eventType string, payload []byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write(prev[:])
	h.Write([]byte(eventType))
	h.Write([]byte{0})
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func parseCardID(attrs map[string]string) *uint64 {
	raw, ok := attrs[types.AttrCardID]
	if !ok {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// Append stores evt and returns the persisted record.
func (s *Store) Append(ctx context.Context, evt *types.Event, at time.Time) (Record, error) {
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return Record{}, fmt.Errorf("eventlog: event type required")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	// encoding/json sorts map keys, so the payload is canonical.
	payload, err := json.Marshal(attrs)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	digest := chainDigest(s.last, evt.Type, payload)
	rec := Record{
		Type:       evt.Type,
		Owner:      evt.Attr(types.AttrOwner),
		CardID:     parseCardID(attrs),
		Attributes: attrs,
		Digest:     hex.EncodeToString(digest[:]),
		RecordedAt: at.UTC(),
	}
	var owner sql.NullString
	if rec.Owner != "" {
		owner = sql.NullString{String: rec.Owner, Valid: true}
	}
	var cardID sql.NullInt64
	if rec.CardID != nil {
		cardID = sql.NullInt64{Int64: int64(*rec.CardID), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events(type, owner, card_id, payload, digest, recorded_at) VALUES(?, ?, ?, ?, ?, ?)`,
		rec.Type, owner, cardID, string(payload), rec.Digest, rec.RecordedAt)
	if err != nil {
		return Record{}, fmt.Errorf("eventlog: insert: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Record{}, err
	}
	rec.Sequence = seq
	s.last = digest
	return rec, nil
}

// List returns events matching f in ascending sequence order.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	clauses := []string{"sequence > ?"}
	args := []any{f.After}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.Owner != "" {
		clauses = append(clauses, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.CardID != nil {
		clauses = append(clauses, "card_id = ?")
		args = append(args, int64(*f.CardID))
	}
	args = append(args, limit)
	query := `SELECT sequence, type, owner, card_id, payload, digest, recorded_at FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY sequence ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, _, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Replay calls fn for every event matching f in ascending sequence order,
// paging through the journal until a short page shows it is exhausted.
// f.Limit sets the page size.
func (s *Store) Replay(ctx context.Context, f Filter, fn func(Record) error) error {
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	for {
		page, err := s.List(ctx, f)
		if err != nil {
			return err
		}
		for _, rec := range page {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(page) < f.Limit {
			return nil
		}
		f.After = page[len(page)-1].Sequence
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, string, error) {
	var (
		rec     Record
		owner   sql.NullString
		cardID  sql.NullInt64
		payload string
	)
	if err := row.Scan(&rec.Sequence, &rec.Type, &owner, &cardID, &payload, &rec.Digest, &rec.RecordedAt); err != nil {
		return Record{}, "", err
	}
	rec.Owner = owner.String
	if cardID.Valid {
		id := uint64(cardID.Int64)
		rec.CardID = &id
	}
	if err := json.Unmarshal([]byte(payload), &rec.Attributes); err != nil {
		return Record{}, "", fmt.Errorf("eventlog: decode payload %d: %w", rec.Sequence, err)
	}
	return rec, payload, nil
}

// Head returns the sequence number of the newest event, or zero.
func (s *Store) Head(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM events`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// Verify recomputes the digest chain over the whole journal.
func (s *Store) Verify(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT sequence, type, owner, card_id, payload, digest, recorded_at FROM events ORDER BY sequence ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var prev [32]byte
	for rows.Next() {
		rec, payload, err := scanRecord(rows)
		if err != nil {
			return err
		}
		want := chainDigest(prev, rec.Type, []byte(payload))
		if hex.EncodeToString(want[:]) != rec.Digest {
			return fmt.Errorf("%w at sequence %d", ErrChainBroken, rec.Sequence)
		}
		prev = want
	}
	return rows.Err()
}
