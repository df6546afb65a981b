package wsmarshaller

import (
	"encoding/json"

	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/handler/marshaller"
)

// MarshallDeliveryEvent prepares one event for a websocket text frame.
// The encoded bytes are cached on the event, so one fan-out to many
// streaming peers marshals once.
func MarshallDeliveryEvent(ev model.Eventer) ([]byte, error) {
	if cached, ok := ev.GetCached().([]byte); ok {
		return cached, nil
	}

	data, err := json.Marshal(marshaller.NewFrame(ev))
	if err != nil {
		return nil, err
	}

	ev.SetCached(data)
	return data, nil
}

// UnmarshallControl decodes one websocket text frame into control messages.
func UnmarshallControl(data []byte) ([]model.InboundFrame, error) {
	return marshaller.DecodeFrames(data)
}
