package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
)

// opTimeout bounds one session operation triggered by a socket message.
const opTimeout = 10 * time.Second

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Sessions is the part of live.Service the socket drives.
type Sessions interface {
	Join(ctx context.Context, sessionID uuid.UUID, viewer live.Participant) error
	Leave(ctx context.Context, sessionID, viewerID uuid.UUID) error
	SendChat(ctx context.Context, sessionID uuid.UUID, author live.Participant, text string) (*models.ChatMessage, error)
	BroadcasterOf(sessionID uuid.UUID) (uuid.UUID, bool)
}

// Authenticator turns a query-string token into the caller's identity.
type Authenticator func(token string) (live.Participant, error)

// Client is a single WebSocket connection. A client without a session is the
// broadcaster's studio connection used to publish media before going live.
type Client struct {
	ID        string
	SessionID uuid.UUID
	User      live.Participant
	hub       *Hub
	sfu       *SFU
	sessions  Sessions
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger

	joined         bool
	subscribedFrom uuid.UUID
}

// Upgrader builds the WebSocket upgrader. An empty allowlist accepts every origin.
func Upgrader(allowOrigin func(origin string) bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin == nil || allowOrigin(origin)
		},
	}
}

// ServeWs handles GET /ws?token=&session_id= and runs the client loop.
func ServeWs(hub *Hub, sfu *SFU, sessions Sessions, authenticate Authenticator, upgrader websocket.Upgrader, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		var sessionID uuid.UUID
		if s := c.Query("session_id"); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
				return
			}
			sessionID = id
		}
		user, err := authenticate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			User:      user,
			hub:       hub,
			sfu:       sfu,
			sessions:  sessions,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger.With(zap.String("user_id", user.ID.String())),
		}
		if client.inSession() {
			hub.Register(client)
		}
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) inSession() bool { return c.SessionID != uuid.Nil }

func (c *Client) sendToMe(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

func (c *Client) sendError(err error) {
	c.sendToMe("error", map[string]string{"message": err.Error()})
}

func (c *Client) readPump() {
	defer c.disconnect()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handle(msg)
	}
}

func (c *Client) handle(msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch msg.Event {
	case "join":
		if !c.inSession() {
			return
		}
		if err := c.sessions.Join(ctx, c.SessionID, c.User); err != nil {
			c.sendError(err)
			return
		}
		c.joined = true
	case "leave":
		c.leave(ctx)
	case "chat_message":
		if !c.inSession() {
			return
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError(live.Validation("invalid chat payload"))
			return
		}
		// The controller fans the stored message out to every client, sender included.
		if _, err := c.sessions.SendChat(ctx, c.SessionID, c.User, payload.Text); err != nil {
			c.sendError(err)
		}
	case "webrtc_publisher_offer":
		if c.sfu == nil {
			return
		}
		if !c.User.Role.CanBroadcast() {
			c.sendToMe("webrtc_error", map[string]string{"message": "not_allowed"})
			return
		}
		if sdp, ok := decodeSDP(msg.Data, webrtc.SDPTypeOffer); ok {
			if err := c.sfu.HandlePublisherOffer(c.User.ID, sdp, c.sendToMe); err != nil {
				c.logger.Warn("publisher offer failed", zap.Error(err))
				c.sendToMe("webrtc_error", map[string]string{"message": "publish_failed"})
			}
		}
	case "webrtc_subscribe":
		if c.sfu == nil || !c.inSession() {
			return
		}
		broadcaster, ok := c.sessions.BroadcasterOf(c.SessionID)
		if !ok {
			c.sendToMe("webrtc_error", map[string]string{"message": "no_stream"})
			return
		}
		if err := c.sfu.HandleSubscribe(broadcaster, c.ID, c.sendToMe); err != nil {
			c.logger.Warn("subscribe failed", zap.Error(err))
			return
		}
		c.subscribedFrom = broadcaster
	case "webrtc_subscriber_answer":
		if c.sfu == nil || c.subscribedFrom == uuid.Nil {
			return
		}
		if sdp, ok := decodeSDP(msg.Data, webrtc.SDPTypeAnswer); ok {
			_ = c.sfu.HandleSubscriberAnswer(c.subscribedFrom, c.ID, sdp)
		}
	case "webrtc_ice":
		if c.sfu == nil {
			return
		}
		var payload struct {
			Target    string          `json:"target"`
			Candidate json.RawMessage `json:"candidate"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || len(payload.Candidate) == 0 {
			return
		}
		var cand webrtc.ICECandidateInit
		if json.Unmarshal(payload.Candidate, &cand) != nil {
			return
		}
		switch payload.Target {
		case "publisher":
			_ = c.sfu.HandlePublisherICE(c.User.ID, cand)
		case "subscriber":
			if c.subscribedFrom != uuid.Nil {
				_ = c.sfu.HandleSubscriberICE(c.subscribedFrom, c.ID, cand)
			}
		}
	default:
		// ignore
	}
}

func (c *Client) leave(ctx context.Context) {
	if !c.joined {
		return
	}
	c.joined = false
	if err := c.sessions.Leave(ctx, c.SessionID, c.User.ID); err != nil {
		c.logger.Debug("leave on socket", zap.String("session_id", c.SessionID.String()), zap.Error(err))
	}
}

func (c *Client) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	c.leave(ctx)
	if c.sfu != nil && c.subscribedFrom != uuid.Nil {
		c.sfu.UnregisterClient(c.subscribedFrom, c.ID)
	}
	if c.inSession() {
		c.hub.Unregister(c)
	}
	_ = c.conn.Close()
}

func decodeSDP(data json.RawMessage, t webrtc.SDPType) (webrtc.SessionDescription, bool) {
	var payload struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.SDP == "" {
		return webrtc.SessionDescription{}, false
	}
	return webrtc.SessionDescription{Type: t, SDP: payload.SDP}, true
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
