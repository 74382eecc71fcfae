package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/comfy-pilot/bridge/internal/pty"
	"github.com/comfy-pilot/bridge/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local trusted transport
	},
}

// frame is the client→server message envelope.
type frame struct {
	Type string `json:"type"`
	D    string `json:"d"`
	Data string `json:"data"`
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// Handler manages terminal websocket connections.
type Handler struct {
	registry       *session.Registry
	defaultCommand func() string
	log            *logging.Logger

	// ReadBufferSize sets the PTY read chunk size per session; zero keeps
	// the session default.
	ReadBufferSize int
}

// NewHandler creates a websocket terminal handler. defaultCommand supplies
// the command to run when the client does not pass ?cmd=; it may return an
// empty string to start a bare shell.
func NewHandler(registry *session.Registry, defaultCommand func() string, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	if defaultCommand == nil {
		defaultCommand = func() string { return "" }
	}
	return &Handler{
		registry:       registry,
		defaultCommand: defaultCommand,
		log:            log,
	}
}

// HandleTerminal upgrades the connection and runs the duplex bridge until
// either side goes away. Teardown always deregisters the session, closes the
// PTY, and reaps the child.
func (h *Handler) HandleTerminal(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	term := pty.NewSessionSize(h.log, h.ReadBufferSize)
	h.registry.Add(connID, term)

	command := c.Query("cmd")
	if command == "" {
		command = h.defaultCommand()
	}

	h.log.Info("terminal connected", zap.String("conn", connID))

	started := false
	pumpStop := make(chan struct{})
	outputDone := make(chan struct{})

	defer func() {
		// Unconditional teardown. The pump must be fully stopped before the
		// registry Close releases the descriptor; a read racing the close
		// could otherwise land on a reused fd number.
		close(pumpStop)
		if started {
			<-outputDone
		}
		h.registry.Remove(connID)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
		h.log.Info("terminal disconnected", zap.String("conn", connID))
	}()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			// Malformed frames are dropped; the connection lives on.
			h.log.Debug("malformed frame ignored", zap.String("conn", connID))
			continue
		}

		switch f.Type {
		case "i":
			term.Write([]byte(f.D))
		case "input":
			term.Write([]byte(f.Data))
		case "resize":
			rows, cols := f.Rows, f.Cols
			if rows == 0 {
				rows = 24
			}
			if cols == 0 {
				cols = 80
			}
			if !started {
				// First resize carries the client's real geometry; spawn now
				// so the child never paints at the wrong size.
				if err := term.Spawn(command, rows, cols); err != nil {
					h.log.Error("terminal spawn failed", zap.String("conn", connID), zap.Error(err))
					conn.WriteMessage(websocket.TextMessage,
						[]byte("ofailed to start terminal: "+err.Error()+"\r\n"))
					return
				}
				started = true
				go h.pumpOutput(conn, term, pumpStop, outputDone)
				h.log.Info("terminal started",
					zap.String("conn", connID),
					zap.Uint16("rows", rows),
					zap.Uint16("cols", cols),
				)
			} else if err := term.Resize(rows, cols); err != nil {
				h.log.Warn("resize failed", zap.String("conn", connID), zap.Error(err))
			}
		}
	}
}

// pumpOutput waits for descriptor readability, drains everything available,
// and forwards it as "o"-tagged frames in read order. It exits on stop, when
// the session stops, or when the socket write fails, closing the socket so
// the read loop unblocks. The readability wait is bounded, so a stop is
// observed within one tick.
func (h *Handler) pumpOutput(conn *websocket.Conn, term *pty.Session, stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer conn.Close()

	for {
		select {
		case <-stop:
			return
		default:
		}

		ready, err := term.WaitReadable(500 * time.Millisecond)
		if err != nil {
			return
		}
		if !ready {
			continue
		}

		for {
			select {
			case <-stop:
				// A flooding child keeps the drain loop busy indefinitely;
				// stop must win here too.
				return
			default:
			}

			text, ok, err := term.ReadNonblocking()
			if ok {
				if werr := conn.WriteMessage(websocket.TextMessage, append([]byte("o"), text...)); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
			if !ok {
				break
			}
		}
	}
}
