package sse

import (
	"context"
	"encoding/json"
	"log"
)

// ChannelCapacity bounds the downstream byte channel, mirroring the
// capacity of the upstream Message channel it pumps from.
const ChannelCapacity = 100

type errorFrame struct {
	Error string `json:"error"`
}

// Encode pumps messages into downstream SSE wire bytes:
//
//	Chunk(payload) -> "data: <payload>\n\n"
//	Done           -> "data: [DONE]\n\n"
//	Error(err)     -> "event: error\ndata: {\"error\":\"...\"}\n\n"
//
// It never reorders or pads frames, and closes its output channel when
// messages closes or ctx is canceled (to honor backpressure from a
// dropped downstream receiver).
func Encode(ctx context.Context, messages <-chan Message) <-chan []byte {
	out := make(chan []byte, ChannelCapacity)

	go func() {
		defer close(out)

		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					return
				}
				frame, terminal := encodeOne(msg)
				if frame != nil {
					select {
					case out <- frame:
					case <-ctx.Done():
						log.Printf("sse: downstream receiver dropped; stopping encode")
						return
					}
				}
				if terminal {
					return
				}
			case <-ctx.Done():
				log.Printf("sse: downstream receiver dropped; stopping encode")
				return
			}
		}
	}()

	return out
}

// encodeOne renders a single Message as wire bytes and reports whether
// the stream is finished after this frame.
func encodeOne(msg Message) (frame []byte, terminal bool) {
	switch msg.Kind {
	case KindChunk:
		return append(append([]byte("data: "), msg.Payload...), '\n', '\n'), false
	case KindDone:
		return []byte("data: [DONE]\n\n"), true
	case KindError:
		body, _ := json.Marshal(errorFrame{Error: msg.Err.Error()})
		return append(append([]byte("event: error\ndata: "), body...), '\n', '\n'), false
	default:
		return nil, false
	}
}
