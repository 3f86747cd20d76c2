package webrtc

import (
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/peer-chat/internal/codec"
)

const (
	// chunkSize keeps every data channel message well under the 64 KiB
	// SCTP limit, including the chunk header.
	chunkSize = 16 * 1024
	maxChunks = 1024
)

var (
	errMessageTooLarge = errors.New("message too large")
	errMalformedChunk  = errors.New("malformed chunk")
)

// chunk is one data channel message. A frame is sent as Count chunks with
// the same ID and Index 0..Count-1.
type chunk struct {
	ID    uint32 `cbor:"id"`
	Index uint16 `cbor:"i"`
	Count uint16 `cbor:"n"`
	Data  []byte `cbor:"d"`
}

func splitMessage(id uint32, data []byte) ([][]byte, error) {
	count := max(1, (len(data)+chunkSize-1)/chunkSize)
	if count > maxChunks {
		return nil, fmt.Errorf("%w: %d bytes", errMessageTooLarge, len(data))
	}

	out := make([][]byte, 0, count)
	for i := range count {
		end := min((i+1)*chunkSize, len(data))
		buf, err := codec.Marshal(chunk{
			ID:    id,
			Index: uint16(i),
			Count: uint16(count),
			Data:  data[i*chunkSize : end],
		})
		if err != nil {
			return nil, err
		}
		out = append(out, buf)
	}
	return out, nil
}

// assembler rebuilds frames from the chunks of one ordered data channel.
// Senders never interleave the chunks of two frames on a channel.
type assembler struct {
	active bool
	id     uint32
	count  uint16
	next   uint16
	buf    []byte
}

// add returns the whole frame once its last chunk arrives.
func (a *assembler) add(raw []byte) ([]byte, bool, error) {
	var c chunk
	if err := codec.Unmarshal(raw, &c); err != nil {
		a.reset()
		return nil, false, fmt.Errorf("%w: %v", errMalformedChunk, err)
	}
	if c.Count == 0 || c.Count > maxChunks || c.Index >= c.Count || len(c.Data) > chunkSize {
		a.reset()
		return nil, false, fmt.Errorf("%w: chunk %d/%d", errMalformedChunk, c.Index, c.Count)
	}

	if c.Index == 0 {
		// an unfinished frame is abandoned
		a.active = true
		a.id = c.ID
		a.count = c.Count
		a.next = 0
		a.buf = nil
	} else if !a.active || c.ID != a.id || c.Count != a.count || c.Index != a.next {
		a.reset()
		return nil, false, fmt.Errorf("%w: chunk %d/%d of frame %d out of sequence", errMalformedChunk, c.Index, c.Count, c.ID)
	}

	a.buf = append(a.buf, c.Data...)
	a.next++
	if a.next < a.count {
		return nil, false, nil
	}

	frame := a.buf
	a.reset()
	return frame, true, nil
}

func (a *assembler) reset() {
	a.active = false
	a.buf = nil
	a.next = 0
}
