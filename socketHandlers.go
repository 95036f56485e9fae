package main

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"

	"noise-lab/models"
	"noise-lab/stream"
	"noise-lab/utils"
)

const socketTransport = "socketio"

// socketController bridges socket.io connections to stream sessions. The
// session id is the socket id.
type socketController struct {
	streams *stream.Manager
	logger  *slog.Logger
}

func newSocketController(streams *stream.Manager) *socketController {
	return &socketController{streams: streams, logger: utils.GetLogger()}
}

func (c *socketController) emitError(socket socketio.Conn, message string) {
	socket.Emit("analysisError", models.NewErrorMessage(message))
}

func (c *socketController) emitStatus(socket socketio.Conn) {
	socket.Emit("status", c.streams.Model().Snapshot())
}

func (c *socketController) session(socket socketio.Conn) *stream.Session {
	if s, ok := c.streams.Get(socket.ID()); ok {
		return s
	}
	// event raced ahead of OnConnect, or the session was replaced
	return c.streams.Open(socket.ID(), socketTransport)
}

func (c *socketController) handleConnect(socket socketio.Conn) {
	c.logger.Info("socket connected",
		slog.String("socketID", socket.ID()),
		slog.String("remoteAddr", socket.RemoteAddr().String()),
	)
	c.streams.Open(socket.ID(), socketTransport)
	c.emitStatus(socket)
}

// handleFrame runs one base64 encoded frame through the session. Frames are
// handled in arrival order on the connection's goroutine.
func (c *socketController) handleFrame(socket socketio.Conn, msg string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while handling frame",
				slog.String("socketID", socket.ID()),
				slog.Any("panic", r),
			)
			c.emitError(socket, "internal server error during processing")
		}
	}()

	if msg == "" {
		c.emitError(socket, "no audio data received")
		return
	}

	var frameMsg models.FrameMessage
	if err := json.Unmarshal([]byte(msg), &frameMsg); err != nil {
		err := xerrors.New(err)
		c.logger.Warn("failed to parse frame payload", slog.String("socketID", socket.ID()), slog.Any("error", err))
		c.emitError(socket, "invalid frame payload")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(frameMsg.Audio)
	if err != nil {
		err := xerrors.New(err)
		c.logger.Warn("failed to decode frame audio", slog.String("socketID", socket.ID()), slog.Any("error", err))
		c.emitError(socket, "audio must be base64 encoded float32 samples")
		return
	}

	res, err := c.session(socket).HandleFrame(raw)
	if err != nil {
		c.logger.Warn("frame rejected", slog.String("socketID", socket.ID()), slog.Any("error", err))
		c.emitError(socket, err.Error())
		return
	}
	socket.Emit("metrics", models.NewMetricsMessage(res))
}

func (c *socketController) handleConfig(socket socketio.Conn, msg string) {
	if err := c.session(socket).HandleConfig([]byte(msg)); err != nil {
		c.logger.Warn("invalid control message", slog.String("socketID", socket.ID()), slog.Any("error", err))
		c.emitError(socket, err.Error())
	}
}

func (c *socketController) handleRequestStatus(socket socketio.Conn) {
	c.emitStatus(socket)
}

func (c *socketController) handleError(socket socketio.Conn, e error) {
	err := xerrors.New(e)
	if socket == nil {
		c.logger.Error("socket error", slog.Any("error", err))
		return
	}
	c.logger.Error("socket error", slog.String("socketID", socket.ID()), slog.Any("error", err))
}

func (c *socketController) handleDisconnect(socket socketio.Conn, reason string) {
	c.logger.Info("socket disconnected",
		slog.String("socketID", socket.ID()),
		slog.String("reason", reason),
	)
	c.streams.Close(socket.ID())
}
