package chat

import "slices"

// MessageStore is the ordered, de-duplicated message log of a session.
// Not safe for concurrent use.
type MessageStore struct {
	messages []Message
	ids      map[string]struct{}
}

func NewMessageStore() *MessageStore {
	return &MessageStore{ids: make(map[string]struct{})}
}

// Append adds m at the end of the log. A message whose id is already
// present is skipped and Append returns false.
func (s *MessageStore) Append(m Message) bool {
	if _, ok := s.ids[m.ID]; ok {
		return false
	}
	s.ids[m.ID] = struct{}{}
	s.messages = append(s.messages, m)
	return true
}

// Merge inserts every incoming message whose id is unknown, deriving
// IsLocal from selfID, then stable-sorts the log by timestamp. It returns
// the number of inserted messages.
func (s *MessageStore) Merge(incoming []Message, selfID string) int {
	inserted := 0
	for _, m := range incoming {
		m.IsLocal = m.SenderID == selfID
		if s.Append(m) {
			inserted++
		}
	}

	slices.SortStableFunc(s.messages, func(a, b Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return inserted
}

func (s *MessageStore) Snapshot() []Message {
	return slices.Clone(s.messages)
}

func (s *MessageStore) Len() int {
	return len(s.messages)
}

func (s *MessageStore) Clear() {
	s.messages = nil
	clear(s.ids)
}
