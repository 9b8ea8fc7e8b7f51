package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(opts Options) (*Hub, *fakeRooms, *fakeMessages, *fakeUsers) {
	rooms := newFakeRooms()
	messages := newFakeMessages()
	users := newFakeUsers()
	h := New(discardLogger(), rooms, messages, users, opts)
	return h, rooms, messages, users
}

// connect registers a transport-less client; delivered frames accumulate in
// its send buffer where tests can read them.
func connect(h *Hub, userID int, username string) *Client {
	c := newClient(h, nil, userID, username)
	h.register(c)
	return c
}

// recvFrames drains and decodes everything queued for the client so far.
func recvFrames(t *testing.T, c *Client) []Frame {
	t.Helper()
	var frames []Frame
	for {
		select {
		case raw := <-c.send:
			var f Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

// lastEvent returns the most recent frame with the given event name.
func lastEvent(t *testing.T, c *Client, event string) (Frame, bool) {
	t.Helper()
	var found Frame
	ok := false
	for _, f := range recvFrames(t, c) {
		if f.Event == event {
			found = f
			ok = true
		}
	}
	return found, ok
}

func decodeInto(t *testing.T, f Frame, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Data, v))
}

func mustFrame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Frame{Event: event, Data: data})
	require.NoError(t, err)
	return raw
}
