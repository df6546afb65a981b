package marshaller

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

func TestDecodeFrames(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		events  []string
		wantErr bool
	}{
		{name: "single object", body: `{"event":"ping"}`, events: []string{"ping"}},
		{name: "array", body: ` [{"event":"join-rider","data":"3"},{"event":"ping"}]`, events: []string{"join-rider", "ping"}},
		{name: "empty body", body: "  ", wantErr: true},
		{name: "not json", body: "ping", wantErr: true},
		{name: "missing event", body: `[{"data":1}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := DecodeFrames([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			got := make([]string, 0, len(frames))
			for _, f := range frames {
				got = append(got, f.Event)
			}
			assert.Equal(t, tt.events, got)
		})
	}
}

func TestNewFrame(t *testing.T) {
	ev := model.NewEvent(model.EventPong, nil)
	f := NewFrame(ev)

	assert.Equal(t, model.EventPong, f.Event)
	assert.Equal(t, ev.GetID(), f.ID)
	assert.Equal(t, ev.GetOccurredAt(), f.SentAt)
	assert.Nil(t, f.Data)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 400, ErrEmptyBody)

	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"error","error":"marshaller: empty body"}`, rec.Body.String())
}
