package ingest

import (
	"encoding/base64"
	"errors"
	"strconv"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0x00, 0x10}
	enc := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"raw base64", enc, raw, false},
		{"jpeg data url", "data:image/jpeg;base64," + enc, raw, false},
		{"png data url", "data:image/png;base64," + enc, raw, false},
		{"empty", "", nil, true},
		{"empty data url", "data:image/jpeg;base64,", nil, true},
		{"data url without comma", "data:image/jpeg;base64", nil, true},
		{"invalid base64", "not base64!", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFrame(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEnd(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	assert.True(t, parseEnd(nil, now).Equal(now))
	assert.True(t, parseEnd([]byte("garbage"), now).Equal(now))
	assert.True(t, parseEnd([]byte(`{"timestamp": 0}`), now).Equal(now))

	ts := now.Add(-time.Minute)
	body := []byte(`{"timestamp": ` + strconv.FormatInt(ts.UnixMilli(), 10) + `}`)
	assert.True(t, parseEnd(body, now).Equal(ts))
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ mqtt.Message = fakeMessage{}

func TestWrapDeliversMessage(t *testing.T) {
	var gotTopic string
	var gotPayload []byte
	h := wrap(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, payload
		return errors.New("logged, not propagated")
	})

	h(nil, fakeMessage{topic: "posture/cam-1/frame", payload: []byte("{}")})
	assert.Equal(t, "posture/cam-1/frame", gotTopic)
	assert.Equal(t, []byte("{}"), gotPayload)
}
