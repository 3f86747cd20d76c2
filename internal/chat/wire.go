package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/rudransh-shrivastava/peer-chat/internal/codec"
)

// Channel names carried over the room.
const (
	channelMessage = "message"
	channelIntro   = "intro"
	channelHistory = "history"
)

var errMalformedPayload = errors.New("malformed payload")

type messagePayload struct {
	ID        string `cbor:"id"`
	Content   string `cbor:"content"`
	Timestamp string `cbor:"timestamp"`
}

type introPayload struct {
	Name string `cbor:"name"`
}

// historyEntry is_local is written for compatibility and ignored on receipt.
type historyEntry struct {
	ID         string `cbor:"id"`
	Content    string `cbor:"content"`
	SenderID   string `cbor:"sender_id"`
	SenderName string `cbor:"sender_name"`
	Timestamp  string `cbor:"timestamp"`
	IsLocal    bool   `cbor:"is_local"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", errMalformedPayload, s)
	}
	return t.UTC(), nil
}

func encodeMessage(m Message) ([]byte, error) {
	return codec.Marshal(messagePayload{
		ID:        m.ID,
		Content:   m.Content,
		Timestamp: formatTimestamp(m.Timestamp),
	})
}

// decodeMessage builds a remote message attributed to senderID.
func decodeMessage(data []byte, senderID, senderName string) (Message, error) {
	var p messagePayload
	if err := codec.Unmarshal(data, &p); err != nil {
		return Message{}, err
	}
	if p.ID == "" {
		return Message{}, fmt.Errorf("%w: missing id", errMalformedPayload)
	}
	ts, err := parseTimestamp(p.Timestamp)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:         p.ID,
		Content:    p.Content,
		SenderID:   senderID,
		SenderName: senderName,
		Timestamp:  ts,
	}, nil
}

func encodeIntro(name string) ([]byte, error) {
	return codec.Marshal(introPayload{Name: name})
}

func decodeIntro(data []byte) (string, error) {
	var p introPayload
	if err := codec.Unmarshal(data, &p); err != nil {
		return "", err
	}
	return p.Name, nil
}

func encodeHistory(messages []Message) ([]byte, error) {
	entries := make([]historyEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, historyEntry{
			ID:         m.ID,
			Content:    m.Content,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Timestamp:  formatTimestamp(m.Timestamp),
			IsLocal:    m.IsLocal,
		})
	}
	return codec.Marshal(entries)
}

// decodeHistory returns the well-formed entries of a bundle and how many
// were dropped.
func decodeHistory(data []byte) ([]Message, int, error) {
	var entries []historyEntry
	if err := codec.Unmarshal(data, &entries); err != nil {
		return nil, 0, err
	}

	messages := make([]Message, 0, len(entries))
	dropped := 0
	for _, e := range entries {
		ts, err := parseTimestamp(e.Timestamp)
		if err != nil || e.ID == "" {
			dropped++
			continue
		}
		messages = append(messages, Message{
			ID:         e.ID,
			Content:    e.Content,
			SenderID:   e.SenderID,
			SenderName: e.SenderName,
			Timestamp:  ts,
		})
	}
	return messages, dropped, nil
}
