package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vtcode/vtcode/internal/message"
)

// EventRecord is one line of the session log: an append-only JSONL stream
// with monotonic timestamps, suitable for replay and debugging.
type EventRecord struct {
	Seq     int64           `json:"seq"`
	Time    time.Time       `json:"time"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventLog appends records to a JSONL file. Safe for concurrent use.
type EventLog struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	seq  int64
	last time.Time
}

// OpenEventLog creates (or truncates) a session log at path.
func OpenEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	return &EventLog{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one record. Timestamps are forced monotonic: a clock step
// backwards reuses the previous timestamp plus a nanosecond.
func (l *EventLog) Append(kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventlog: marshal %s payload: %w", kind, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if !now.After(l.last) {
		now = l.last.Add(time.Nanosecond)
	}
	l.last = now
	l.seq++

	rec := EventRecord{Seq: l.seq, Time: now, Kind: kind, Payload: data}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("eventlog: marshal record: %w", err)
	}
	if _, err := l.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("eventlog: write: %w", err)
	}
	return l.w.Flush()
}

// Close flushes and closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

// KindMessage is the record kind used for conversation messages; replay
// reconstructs history from these records alone.
const KindMessage = "message"

// ReadEventLog parses every record in a session log file.
func ReadEventLog(path string) ([]EventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	defer f.Close()

	var records []EventRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec EventRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("eventlog: line %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: scan: %w", err)
	}
	return records, nil
}

// ReplayHistory reconstructs a conversation from a session log: every
// KindMessage record is decoded and appended in sequence order.
func ReplayHistory(path string) (*message.ConversationHistory, error) {
	records, err := ReadEventLog(path)
	if err != nil {
		return nil, err
	}

	history := message.NewConversationHistory("")
	var lastSeq int64
	var lastTime time.Time
	for _, rec := range records {
		if rec.Seq <= lastSeq {
			return nil, fmt.Errorf("eventlog: non-monotonic seq %d after %d", rec.Seq, lastSeq)
		}
		if rec.Time.Before(lastTime) {
			return nil, fmt.Errorf("eventlog: non-monotonic timestamp at seq %d", rec.Seq)
		}
		lastSeq, lastTime = rec.Seq, rec.Time

		if rec.Kind != KindMessage {
			continue
		}
		var msg message.Message
		if err := json.Unmarshal(rec.Payload, &msg); err != nil {
			return nil, fmt.Errorf("eventlog: decode message at seq %d: %w", rec.Seq, err)
		}
		history.Append(msg)
	}
	return history, nil
}
