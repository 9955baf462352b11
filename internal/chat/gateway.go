package chat

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Frame types exchanged with clients.
const (
	FrameHello  = "hello"
	FramePaired = "paired"
	FrameText   = "text"
	FramePing   = "ping"
	FramePong   = "pong"
	FrameError  = "error"
)

// Frame is one JSON message on the chat socket.
type Frame struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id,omitempty"`
	Payload  string `json:"payload,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Handler receives inbound chat events.
type Handler interface {
	HandlePairing(ctx context.Context, clientID, payload string)
	HandleText(ctx context.Context, clientID, text string)
}

// Gateway serves the chat websocket and delivers outbound messages.
type Gateway struct {
	registry       *Registry
	handler        Handler
	originPatterns []string
	writeTimeout   time.Duration
	logger         *slog.Logger
}

// NewGateway creates a gateway. originPatterns are host patterns accepted
// for cross-origin upgrades.
func NewGateway(registry *Registry, originPatterns []string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry:       registry,
		originPatterns: originPatterns,
		writeTimeout:   5 * time.Second,
		logger:         logger,
	}
}

// SetHandler sets the receiver of inbound events. It must be called before
// the gateway serves requests.
func (g *Gateway) SetHandler(h Handler) {
	g.handler = h
}

// ServeHTTP upgrades the request and runs the read loop. The client id comes
// from the client_id query parameter; a new one is assigned when it is
// missing or not a UUID.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if _, err := uuid.Parse(clientID); err != nil {
		clientID = uuid.NewString()
	}
	connID := uuid.NewString()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.logger.Error("Failed to accept WebSocket", "error", err, "client_id", clientID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			g.logger.Debug("Failed to close websocket", "error", closeErr, "client_id", clientID)
		}
	}()

	g.registry.Register(clientID, connID, ws)
	defer g.registry.Unregister(clientID, connID, ws)

	ctx := r.Context()
	if err := g.write(ctx, ws, Frame{Type: FrameHello, ClientID: clientID}); err != nil {
		g.logger.Debug("Failed to send hello", "error", err, "client_id", clientID)
		return
	}

	g.readLoop(ctx, ws, clientID)
	g.logger.Info("Chat session ended", "client_id", clientID)
}

// readLoop handles frames in arrival order; a handler runs to completion
// before the next frame is read.
func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, clientID string) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 {
				g.logger.Debug("WebSocket closed by client", "client_id", clientID)
			} else if ctx.Err() == nil {
				g.logger.Warn("WebSocket read error", "error", err, "client_id", clientID)
			}
			return
		}

		switch frame.Type {
		case FramePaired:
			g.handler.HandlePairing(ctx, clientID, frame.Payload)
		case FrameText:
			g.handler.HandleText(ctx, clientID, frame.Text)
		case FramePing:
			if err := g.write(ctx, ws, Frame{Type: FramePong}); err != nil {
				g.logger.Debug("Failed to send pong", "error", err)
			}
		default:
			if err := g.write(ctx, ws, Frame{Type: FrameError, Text: "unknown frame type"}); err != nil {
				g.logger.Debug("Failed to send error frame", "error", err)
			}
		}
	}
}

// SendMessage delivers text to every open connection of the client. It
// never fails; undeliverable messages are logged and dropped.
func (g *Gateway) SendMessage(ctx context.Context, clientID, text string) {
	conns := g.registry.Connections(clientID)
	if len(conns) == 0 {
		g.logger.Warn("Client offline, message dropped", "client_id", clientID)
		return
	}
	for _, ws := range conns {
		if err := g.write(ctx, ws, Frame{Type: FrameText, Text: text}); err != nil {
			g.logger.Warn("Failed to deliver message", "error", err, "client_id", clientID)
		}
	}
}

func (g *Gateway) write(ctx context.Context, ws *websocket.Conn, frame Frame) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, frame)
}
