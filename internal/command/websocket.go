package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/0bVdnt/PixlSurface/internal/video"
)

// Message is one command frame on the websocket bus
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// RawImagePayload is the data of a raw image message. Data is base64 in JSON.
type RawImagePayload struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Encoding string `json:"encoding"`
	Data     []byte `json:"data"`
}

type errorReply struct {
	Topic string `json:"topic,omitempty"`
	Error string `json:"error"`
}

// Largest message accepted: a base64 raw frame of video.MaxFramePixels
// BGRA pixels plus room for the envelope
const maxMessageSize = int64((video.MaxFramePixels*4+2)/3*4) + 64<<10

// WebsocketSource accepts command messages from websocket clients
type WebsocketSource struct {
	addr      string
	path      string
	topics    Topics
	upgrader  websocket.Upgrader
	readLimit int64
	log       logrus.FieldLogger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewWebsocketSource(addr, path string, topics Topics, log logrus.FieldLogger) *WebsocketSource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if path == "" {
		path = "/"
	}
	return &WebsocketSource{
		addr:   addr,
		path:   path,
		topics: topics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		readLimit: maxMessageSize,
		log:       log,
		conns:     map[*websocket.Conn]struct{}{},
	}
}

// Listens on the configured address until ctx is cancelled
func (s *WebsocketSource) Run(ctx context.Context, h Handler) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("websocket listen %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, s.Handler(h))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.log.WithFields(logrus.Fields{
		"function": "WebsocketSource.Run",
		"addr":     ln.Addr().String(),
		"path":     s.path,
	}).Info("Listening for commands")

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("websocket serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "WebsocketSource.Run",
			"error":    err,
		}).Warn("Websocket server shutdown")
	}
	s.closeConns()
	return ctx.Err()
}

// Returns the HTTP handler upgrading requests and feeding h
func (s *WebsocketSource) Handler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"function": "WebsocketSource.Handler",
				"remote":   r.RemoteAddr,
				"error":    err,
			}).Warn("Upgrade failed")
			return
		}
		s.track(conn)
		defer s.untrack(conn)
		s.serveConn(conn, h)
	})
}

func (s *WebsocketSource) serveConn(conn *websocket.Conn, h Handler) {
	conn.SetReadLimit(s.readLimit)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if isDecodeError(err) {
				s.reply(conn, errorReply{Error: err.Error()})
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithFields(logrus.Fields{
					"function": "WebsocketSource.serveConn",
					"remote":   conn.RemoteAddr().String(),
					"error":    err,
				}).Debug("Connection closed")
			}
			return
		}
		if err := s.dispatch(h, msg); err != nil {
			s.log.WithFields(logrus.Fields{
				"function": "WebsocketSource.serveConn",
				"topic":    msg.Topic,
				"error":    err,
			}).Warn("Ignoring command")
			s.reply(conn, errorReply{Topic: msg.Topic, Error: err.Error()})
		}
	}
}

func (s *WebsocketSource) reply(conn *websocket.Conn, r errorReply) {
	if err := conn.WriteJSON(r); err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "WebsocketSource.reply",
			"topic":    r.Topic,
			"error":    err,
		}).Warn("Unable to send error reply")
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func (s *WebsocketSource) dispatch(h Handler, msg Message) error {
	switch msg.Topic {
	case s.topics.Image:
		var p RawImagePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return fmt.Errorf("raw image: %w", err)
		}
		h.PushImage(video.RawImage{
			Width:    p.Width,
			Height:   p.Height,
			Encoding: p.Encoding,
			Data:     p.Data,
		})
	case s.topics.ImagePath, s.topics.VideoPath:
		var path string
		if err := json.Unmarshal(msg.Data, &path); err != nil {
			return fmt.Errorf("path: %w", err)
		}
		if msg.Topic == s.topics.ImagePath {
			h.SetImagePath(path)
		} else {
			h.SetVideoPath(path)
		}
	case s.topics.VideoSeek:
		var f float64
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		h.Seek(f)
	case s.topics.VideoPause:
		var b bool
		if err := json.Unmarshal(msg.Data, &b); err != nil {
			return fmt.Errorf("pause: %w", err)
		}
		h.SetPaused(b)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTopic, msg.Topic)
	}
	return nil
}

func (s *WebsocketSource) track(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *WebsocketSource) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *WebsocketSource) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}
