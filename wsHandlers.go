package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mdobak/go-xerrors"

	"noise-lab/models"
	"noise-lab/stream"
	"noise-lab/utils"
)

const (
	wsTransport    = "websocket"
	wsMaxMessage   = 1 << 20
	wsWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 16 << 10,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newAudioStreamHandler serves /ws/audio. Binary messages are frames of
// packed little-endian float32 samples and get a metrics message back; text
// messages are JSON control messages and get no reply unless they fail.
func newAudioStreamHandler(streams *stream.Manager) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already answered the request
			logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
			return
		}
		defer conn.Close()
		conn.SetReadLimit(wsMaxMessage)

		session := streams.Open("", wsTransport)
		defer streams.Close(session.ID)

		write := func(v any) error {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			return conn.WriteJSON(v)
		}

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					err := xerrors.New(err)
					logger.WarnContext(r.Context(), "websocket read failed",
						slog.String("sessionID", session.ID),
						slog.Any("error", err),
					)
				}
				return
			}

			var reply any
			switch msgType {
			case websocket.BinaryMessage:
				res, err := session.HandleFrame(data)
				if err != nil {
					reply = models.NewErrorMessage(err.Error())
				} else {
					reply = models.NewMetricsMessage(res)
				}
			case websocket.TextMessage:
				if err := session.HandleConfig(data); err != nil {
					reply = models.NewErrorMessage(err.Error())
				}
			}
			if reply == nil {
				continue
			}

			if err := write(reply); err != nil {
				err := xerrors.New(err)
				logger.WarnContext(r.Context(), "websocket write failed",
					slog.String("sessionID", session.ID),
					slog.Any("error", err),
				)
				return
			}
		}
	}
}
