package command

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0bVdnt/PixlSurface/internal/video"
)

func dialTest(t *testing.T, src *WebsocketSource, rec *recorder) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(src.Handler(rec))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebsocketDispatch(t *testing.T) {
	rec := &recorder{}
	src := NewWebsocketSource("", "/", DefaultTopics(), quietLogger())
	conn := dialTest(t, src, rec)

	messages := []string{
		`{"topic":"set_video_path","data":"/videos/clip.mp4"}`,
		`{"topic":"set_video_seek","data":0.75}`,
		`{"topic":"set_video_paused","data":true}`,
		`{"topic":"set_image_path","data":""}`,
		`{"topic":"image_raw","data":{"width":1,"height":1,"encoding":"rgb8","data":"AQID"}}`,
	}
	for _, m := range messages {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(m)))
	}

	assert.Eventually(t, func() bool { return len(rec.Calls()) == len(messages) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"video /videos/clip.mp4",
		"seek 0.75",
		"pause true",
		"image ",
		"raw 1x1 rgb8",
	}, rec.Calls())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []byte{1, 2, 3}, rec.images[0].Data)
}

func TestWebsocketRepliesWithErrors(t *testing.T) {
	rec := &recorder{}
	src := NewWebsocketSource("", "/", DefaultTopics(), quietLogger())
	conn := dialTest(t, src, rec)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"set_video_seek","data":"fast"}`)))

	var reply errorReply
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "set_video_seek", reply.Topic)
	assert.NotEmpty(t, reply.Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"nope","data":1}`)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply.Error, "unknown topic")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.NotEmpty(t, reply.Error)

	// the connection survives bad messages
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"set_video_paused","data":false}`)))
	assert.Eventually(t, func() bool { return len(rec.Calls()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestWebsocketClosesOversizedMessage(t *testing.T) {
	rec := &recorder{}
	src := NewWebsocketSource("", "/", DefaultTopics(), quietLogger())
	src.readLimit = 256
	conn := dialTest(t, src, rec)

	big := `{"topic":"set_video_path","data":"` + strings.Repeat("a", 1024) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig), "unexpected error: %v", err)
	assert.Empty(t, rec.Calls())
}

func TestWebsocketDefaultReadLimit(t *testing.T) {
	src := NewWebsocketSource("", "/", DefaultTopics(), quietLogger())
	assert.Greater(t, src.readLimit, int64(video.MaxFramePixels*4))
}

func TestWebsocketRunStopsOnCancel(t *testing.T) {
	src := NewWebsocketSource("127.0.0.1:0", "/bus", DefaultTopics(), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, &recorder{}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("websocket source did not stop")
	}
}

func TestWebsocketRunBadAddress(t *testing.T) {
	src := NewWebsocketSource("256.0.0.1:99999", "/", DefaultTopics(), quietLogger())

	err := src.Run(context.Background(), &recorder{})

	assert.Error(t, err)
}
