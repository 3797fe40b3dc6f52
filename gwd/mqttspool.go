package gwd

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
	bridge "github.com/mcubridge/gatewayd"
	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"
)

var spoolBucket = []byte("outbound")

// SpoolEntry is one durable outbound publish: topic, payload, and the meta
// envelope (reply topic/correlation data/user properties) needed to
// reconstruct the original publish after a restart.
type SpoolEntry struct {
	ID      string            `json:"id"`
	Topic   string            `json:"topic"`
	Payload []byte            `json:"payload"`
	Meta    ResponseMeta      `json:"meta"`
	Props   map[string]string `json:"props"`
}

// Spool is a bbolt-backed FIFO of SpoolEntry, capped at maxEntries with
// trim-oldest-on-overflow. A corrupt row (one that fails to unmarshal) is
// skipped rather than aborting a drain.
type Spool struct {
	db         *bolt.DB
	state      *RuntimeState
	log        *logging.Logger
	maxEntries int
	nextSeq    uint64
}

// OpenSpool opens (creating if necessary) the bbolt file at dir/spool.db.
// A failure here is never fatal to daemon startup: the caller marks the
// spool degraded and the gateway keeps running without persistence.
func OpenSpool(dir string, maxEntries int, state *RuntimeState, log *logging.Logger) (*Spool, error) {
	path := dir + "/spool.db"
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, bridge.NewSpoolError("open", "opening %s: %v", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(spoolBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, bridge.NewSpoolError("open", "initializing bucket: %v", err)
	}

	s := &Spool{db: db, state: state, log: log, maxEntries: maxEntries}
	if err := s.recoverNextSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Spool) recoverNextSeq() error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(spoolBucket).Cursor()
		k, _ := c.Last()
		if k == nil {
			s.nextSeq = 0
			return nil
		}
		s.nextSeq = binary.BigEndian.Uint64(k) + 1
		return nil
	})
}

// Append writes entry at the tail, trimming the oldest row first if the
// spool is already at maxEntries. Returns trimmed=true if an older entry
// was dropped to make room, for the caller to bump mqtt_spool_dropped_limit.
func (s *Spool) Append(entry SpoolEntry) (trimmed bool, err error) {
	encoded, err := encodeSpoolEntry(entry)
	if err != nil {
		return false, bridge.NewSpoolError("encode", "encoding entry %s: %v", entry.ID, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(spoolBucket)
		if b.Stats().KeyN >= s.maxEntries {
			c := b.Cursor()
			if k, _ := c.First(); k != nil {
				if err := b.Delete(k); err != nil {
					return err
				}
				trimmed = true
			}
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, s.nextSeq)
		s.nextSeq++
		return b.Put(key, encoded)
	})
	if err != nil {
		return false, bridge.NewSpoolError("append", "writing entry %s: %v", entry.ID, err)
	}
	if trimmed {
		s.state.IncSpoolDroppedLimit()
	}
	return trimmed, nil
}

// DrainAll returns every spooled entry in FIFO order and removes them from
// the bbolt file. A row that fails to decode is skipped and deleted rather
// than aborting the drain — a corrupt row never blocks the rest of the
// spool.
func (s *Spool) DrainAll() ([]SpoolEntry, error) {
	var entries []SpoolEntry
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(spoolBucket)
		c := b.Cursor()
		var keys [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entry, err := decodeSpoolEntry(v)
			if err != nil {
				s.log.Warning("dropping corrupt spool row:", err)
				keys = append(keys, append([]byte(nil), k...))
				continue
			}
			entries = append(entries, entry)
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, bridge.NewSpoolError("drain", "draining spool: %v", err)
	}
	return entries, nil
}

// Depth reports the current row count, published as mqtt_spool_depth.
func (s *Spool) Depth() int {
	n := 0
	s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(spoolBucket).Stats().KeyN
		return nil
	})
	return n
}

func (s *Spool) Close() error {
	return s.db.Close()
}

// PublishFunc is the underlying transport's blocking single-publish call.
type PublishFunc func(topic string, payload []byte) error

// RetryPublish wraps a single publish attempt in bounded exponential
// backoff, retrying transient errors until maxElapsed has passed.
// MQTTTransport's drain loop does not call it; a failed publish there is
// requeued and spooled instead.
func RetryPublish(ctx context.Context, publish PublishFunc, entry SpoolEntry, maxElapsed time.Duration) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := publish(entry.Topic, entry.Payload); err != nil {
			return struct{}{}, fmt.Errorf("publishing spooled entry %s: %w", entry.ID, err)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
	return err
}

func encodeSpoolEntry(entry SpoolEntry) ([]byte, error) {
	return json.Marshal(entry)
}

func decodeSpoolEntry(raw []byte) (SpoolEntry, error) {
	var entry SpoolEntry
	err := json.Unmarshal(raw, &entry)
	return entry, err
}
