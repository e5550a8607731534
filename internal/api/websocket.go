package api

import (
	"encoding/json"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
)

// WebSocket message types
const (
	EventInterpret      = "interpret"
	EventPrint          = "print"
	EventJobUpdated     = "job_updated"
	EventPrinterAdded   = "printer_added"
	EventPrinterRemoved = "printer_removed"
	EventResponse       = "response"
	EventError          = "error"
)

// WSMessage is a message sent to clients. ID echoes the request it answers.
type WSMessage struct {
	Event string      `json:"event"`
	ID    string      `json:"id,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// wsRequest is a message received from a client
type wsRequest struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server
}

// hub tracks connected clients for broadcasts
type hub struct {
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

func newHub() *hub {
	return &hub{clients: make(map[*WSClient]struct{})}
}

func (h *hub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// remove unregisters c and closes its send channel, ending its write pump
func (h *hub) remove(c *WSClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg WSMessage) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		select {
		case client.send <- msg:
			sent++
		default:
			// Client send buffer full, skip
		}
	}
	return sent
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, 256),
		server: s,
	}
	s.hub.add(client)
	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

	go client.readPump()
	go client.writePump()
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.server.logger.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.hub.remove(c)
		c.conn.Close()
		c.server.logger.Info().Msg("websocket client disconnected")
	}()

	for {
		var msg wsRequest
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *wsRequest) {
	switch msg.Event {
	case EventInterpret:
		req, ok := c.decode(msg)
		if !ok {
			return
		}
		_, cmds, err := c.server.interpret(req)
		if err != nil {
			c.reply(msg.ID, EventError, errorBody(err))
			return
		}
		c.reply(msg.ID, EventResponse, map[string]interface{}{
			"success":  true,
			"commands": cmds,
			"count":    len(cmds),
		})

	case EventPrint:
		req, ok := c.decode(msg)
		if !ok {
			return
		}
		jobID, err := c.server.print(req)
		if err != nil {
			c.reply(msg.ID, EventError, errorBody(err))
			return
		}
		c.reply(msg.ID, EventResponse, map[string]interface{}{
			"success": true,
			"job_id":  jobID,
		})

	default:
		c.reply(msg.ID, EventError, map[string]interface{}{"error": "unknown event: " + msg.Event})
	}
}

func (c *WSClient) decode(msg *wsRequest) (*receiptRequest, bool) {
	var req receiptRequest
	if len(msg.Data) == 0 {
		c.reply(msg.ID, EventError, map[string]interface{}{"error": "data is required"})
		return nil, false
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.reply(msg.ID, EventError, map[string]interface{}{"error": "invalid data: " + err.Error()})
		return nil, false
	}
	return &req, true
}

// reply is only called from the read pump, which outlives every send
func (c *WSClient) reply(id, event string, data interface{}) {
	c.send <- WSMessage{Event: event, ID: id, Data: data}
}

// BroadcastPrinterAdded broadcasts a printer added event to all connected clients
func (s *Server) BroadcastPrinterAdded(p *printer.Printer) {
	if p == nil {
		return
	}
	n := s.hub.broadcast(WSMessage{Event: EventPrinterAdded, Data: p})
	s.logger.Debug().Str("printer", p.ID).Int("clients", n).Msg("broadcast printer added")
}

// BroadcastPrinterRemoved broadcasts a printer removed event to all connected clients
func (s *Server) BroadcastPrinterRemoved(p *printer.Printer) {
	if p == nil {
		return
	}
	n := s.hub.broadcast(WSMessage{Event: EventPrinterRemoved, Data: map[string]interface{}{"id": p.ID}})
	s.logger.Debug().Str("printer", p.ID).Int("clients", n).Msg("broadcast printer removed")
}

// BroadcastJobUpdate sends a job status change to all connected clients
func (s *Server) BroadcastJobUpdate(job printer.PrintJob) {
	s.hub.broadcast(WSMessage{Event: EventJobUpdated, Data: job})
}
