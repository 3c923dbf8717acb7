package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zanzhit/packing_dashboard/internal/broadcast"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// dashboard is served from the same host
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New upgrades dashboard viewers to a websocket and relays hub events to
// them. The read loop only services control frames; viewers never send
// commands over this socket.
func New(log *slog.Logger, hub *broadcast.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ws.New"

		log := log.With(
			slog.String("op", op),
			slog.String("remote", r.RemoteAddr),
		)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("failed to upgrade connection", sl.Err(err))

			return
		}

		events, cancel := hub.Subscribe()

		go writePump(log, conn, events, cancel)
		go readPump(conn, cancel)

		log.Info("viewer connected")
	}
}

func writePump(log *slog.Logger, conn *websocket.Conn, events <-chan broadcast.Event, cancel func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := conn.WriteJSON(ev); err != nil {
				log.Debug("viewer write failed", sl.Err(err))

				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn, cancel func()) {
	defer func() {
		cancel()
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))

		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
