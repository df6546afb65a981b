package marshaller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

// Frame is the server -> peer envelope shared by both transports.
type Frame struct {
	Event  string `json:"event"`
	ID     string `json:"id"`
	SentAt int64  `json:"sent_at"`
	Data   any    `json:"data,omitempty"`
}

// NewFrame maps a domain event onto the wire envelope.
func NewFrame(ev model.Eventer) Frame {
	return Frame{
		Event:  ev.GetName(),
		ID:     ev.GetID(),
		SentAt: ev.GetOccurredAt(),
		Data:   ev.GetPayload(),
	}
}

var ErrEmptyBody = errors.New("marshaller: empty body")

// DecodeFrames parses peer -> server messages. Both a single frame object and
// an array of frames are accepted.
func DecodeFrames(body []byte) ([]model.InboundFrame, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	if body[0] == '[' {
		var frames []model.InboundFrame
		if err := json.Unmarshal(body, &frames); err != nil {
			return nil, fmt.Errorf("marshaller: decode frames: %w", err)
		}
		return frames, validate(frames)
	}

	var frame model.InboundFrame
	if err := json.Unmarshal(body, &frame); err != nil {
		return nil, fmt.Errorf("marshaller: decode frame: %w", err)
	}
	frames := []model.InboundFrame{frame}
	return frames, validate(frames)
}

func validate(frames []model.InboundFrame) error {
	for i, f := range frames {
		if f.Event == "" {
			return fmt.Errorf("marshaller: frame %d has no event", i)
		}
	}
	return nil
}
