package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"

	"noise-lab/chat"
	"noise-lab/config"
	"noise-lab/db"
	"noise-lab/identity"
	"noise-lab/metrics"
	"noise-lab/models"
	"noise-lab/stream"
	"noise-lab/utils"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 1000
	describeTimeout    = 30 * time.Second
)

type apiError struct {
	Message string `json:"message"`
}

// eventJournal is the read side of the lifecycle journal.
type eventJournal interface {
	RecentEvents(ctx context.Context, limit int) ([]db.Entry, error)
	EventsForIdentity(ctx context.Context, id string) ([]db.Entry, error)
}

type identityDescriber interface {
	DescribeIdentity(ctx context.Context, p identity.Profile) (string, error)
}

// app holds what the HTTP handlers share. journal and describer are nil when
// disabled.
type app struct {
	model     *identity.Model
	streams   *stream.Manager
	metrics   *metrics.Metrics
	journal   eventJournal
	describer identityDescriber
	startedAt time.Time
	logger    *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		utils.GetLogger().Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// allowMethods writes the CORS headers and answers preflight requests. It
// reports whether the handler should continue.
func allowMethods(w http.ResponseWriter, r *http.Request, method string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", method+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Credentials", "true")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	if r.Method != method {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// refreshGauges publishes population sizes after an admin change.
func (a *app) refreshGauges() {
	a.metrics.RecordModelState(a.model.Snapshot())
}

func (a *app) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"streams": []string{"/ws/audio", "/socket.io/"},
		"admin":   "/admin/status",
	})
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	status := a.model.Snapshot()
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(a.startedAt).Seconds(),
		Streams:       a.streams.Count(),
		Active:        len(status.Active),
		Pending:       len(status.Pending),
		Learning:      status.LearningEnabled,
		Journal:       a.journal != nil,
		Assistant:     a.describer != nil,
	})
}

func (a *app) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, a.model.Snapshot())
}

func (a *app) handleApprove(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	pendingID := r.PathValue("id")
	newID, ok := a.model.Approve(pendingID)
	if !ok {
		writeJSON(w, http.StatusNotFound, models.ApproveResponse{Status: "not_found"})
		return
	}
	a.refreshGauges()

	a.logger.InfoContext(r.Context(), "identity approved",
		slog.String("pendingID", pendingID),
		slog.String("identityID", newID),
	)
	writeJSON(w, http.StatusOK, models.ApproveResponse{Status: "approved", NewID: &newID})
}

func (a *app) handleReject(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	pendingID := r.PathValue("id")
	if !a.model.Reject(pendingID) {
		writeJSON(w, http.StatusNotFound, models.StatusResponse{Status: "not_found"})
		return
	}
	a.refreshGauges()

	a.logger.InfoContext(r.Context(), "identity rejected", slog.String("pendingID", pendingID))
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "rejected"})
}

func (a *app) handleReset(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	a.model.Reset()
	a.refreshGauges()

	a.logger.InfoContext(r.Context(), "model reset")
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "reset"})
}

func (a *app) handleLearning(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		writeJSON(w, http.StatusOK, models.LearningResponse{LearningEnabled: a.model.Learning()})
		return
	}
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req models.LearningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeJSONError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	a.model.SetLearning(*req.Enabled)
	a.logger.InfoContext(r.Context(), "learning toggled", slog.Bool("enabled", *req.Enabled))
	writeJSON(w, http.StatusOK, models.LearningResponse{LearningEnabled: *req.Enabled})
}

func (a *app) handleStreams(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, a.streams.Sessions())
}

func (a *app) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if a.journal == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "event journal is disabled")
		return
	}

	limit := defaultEventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventsLimit)
	}

	entries, err := a.journal.RecentEvents(r.Context(), limit)
	if err != nil {
		err := xerrors.New(err)
		a.logger.ErrorContext(r.Context(), "failed to load events", slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *app) handleIdentityEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if a.journal == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "event journal is disabled")
		return
	}

	entries, err := a.journal.EventsForIdentity(r.Context(), r.PathValue("id"))
	if err != nil {
		err := xerrors.New(err)
		a.logger.ErrorContext(r.Context(), "failed to load identity events", slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	if len(entries) == 0 {
		writeJSONError(w, http.StatusNotFound, "no events for identity")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *app) handleDescribe(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if a.describer == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "assistant is disabled (GEMINI_API_KEY is not set)")
		return
	}

	profile, ok := a.model.Lookup(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "identity not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), describeTimeout)
	defer cancel()

	description, err := a.describer.DescribeIdentity(ctx, profile)
	if err != nil {
		err := xerrors.New(err)
		a.logger.ErrorContext(ctx, "failed to describe identity",
			slog.String("identityID", profile.ID),
			slog.Any("error", err),
		)
		writeJSONError(w, http.StatusBadGateway, "assistant request failed")
		return
	}
	writeJSON(w, http.StatusOK, models.DescribeResponse{Identity: profile, Description: description})
}

// routes registers every HTTP endpoint. socketServer may be nil.
func (a *app) routes(socketServer http.Handler) http.Handler {
	mux := http.NewServeMux()
	if socketServer != nil {
		mux.Handle("/socket.io/", socketServer)
	}
	mux.Handle("/ws/audio", newAudioStreamHandler(a.streams))
	mux.Handle("/metrics", a.metrics.Handler())

	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, a.withMetrics(endpoint, h))
	}
	handle("/", "/", a.handleIndex)
	handle("/health", "/health", a.handleHealth)
	handle("/admin/status", "/admin/status", a.handleStatus)
	handle("/admin/approve/{id}", "/admin/approve", a.handleApprove)
	handle("/admin/reject/{id}", "/admin/reject", a.handleReject)
	handle("/admin/reset", "/admin/reset", a.handleReset)
	handle("/admin/learning", "/admin/learning", a.handleLearning)
	handle("/admin/streams", "/admin/streams", a.handleStreams)
	handle("/admin/events", "/admin/events", a.handleEvents)
	handle("/admin/identities/{id}/events", "/admin/identities/events", a.handleIdentityEvents)
	handle("/admin/identities/{id}/describe", "/admin/identities/describe", a.handleDescribe)
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// withMetrics records request count and latency under a fixed endpoint label
// so path parameters do not explode label cardinality.
func (a *app) withMetrics(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		code := strconv.Itoa(rw.statusCode)
		a.metrics.RecordHTTPRequest(r.Method, endpoint, code, time.Since(started).Seconds())
		if rw.statusCode >= http.StatusBadRequest {
			a.metrics.RecordHTTPError(r.Method, endpoint, http.StatusText(rw.statusCode))
		}
	})
}

func newSocketServer(controller *socketController) *socketio.Server {
	allowOriginFunc := func(r *http.Request) bool {
		return true
	}

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		controller.handleConnect(socket)
		return nil
	})
	server.OnEvent("/", "frame", controller.handleFrame)
	server.OnEvent("/", "config", controller.handleConfig)
	server.OnEvent("/", "requestStatus", controller.handleRequestStatus)
	server.OnError("/", controller.handleError)
	server.OnDisconnect("/", controller.handleDisconnect)
	return server
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := utils.GetLogger()

	m := metrics.NewMetrics(nil)
	model := identity.New(identity.Config{
		MatchThreshold: cfg.Engine.MatchThreshold,
		MinEnergy:      cfg.Engine.MinEnergy,
		DecayRate:      cfg.Engine.DecayRate,
		SampleRate:     cfg.Audio.SampleRate,
		PendingTTL:     cfg.Engine.PendingTTL(),
	},
		identity.WithLearning(cfg.Engine.LearningEnabled),
		identity.WithObserver(identity.ObserverFunc(m.Observe)),
	)

	a := &app{
		model:     model,
		streams:   stream.NewManager(model, cfg.Audio.FrameSize, m),
		metrics:   m,
		startedAt: time.Now(),
		logger:    logger,
	}

	if cfg.Journal.Path != "" {
		client, err := db.NewSQLiteClient(cfg.Journal.Path)
		if err != nil {
			return xerrors.New(err)
		}
		defer client.Close()

		recorder := db.NewRecorder(client, cfg.Journal.Buffer, m)
		defer recorder.Close()

		model.AddObserver(recorder)
		a.journal = client
		logger.Info("event journal enabled", slog.String("path", cfg.Journal.Path))
	}

	if cfg.Assistant.APIKey != "" {
		describer, err := chat.NewGeminiClient(ctx, cfg.Assistant.APIKey, cfg.Assistant.Model)
		if err != nil {
			err := xerrors.New(err)
			logger.Warn("assistant disabled", slog.Any("error", err))
		} else {
			a.describer = describer
		}
	}

	socketServer := newSocketServer(newSocketController(a.streams))
	go func() {
		if err := socketServer.Serve(); err != nil {
			err := xerrors.New(err)
			logger.Error("socketio listen error", slog.Any("error", err))
		}
	}()
	defer socketServer.Close()

	a.refreshGauges()
	logger.Info("engine ready",
		slog.Float64("matchThreshold", model.Config().MatchThreshold),
		slog.Int("sampleRate", cfg.Audio.SampleRate),
		slog.Int("frameSize", cfg.Audio.FrameSize),
		slog.Bool("learning", model.Learning()),
	)

	return serveHTTP(ctx, cfg.Server, a.routes(socketServer))
}

// serveHTTP runs until the listener fails or ctx is cancelled.
func serveHTTP(ctx context.Context, cfg config.ServerConfig, handler http.Handler) error {
	logger := utils.GetLogger()
	serveHTTPS := strings.EqualFold(cfg.Protocol, "https")

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if serveHTTPS {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if serveHTTPS {
			logger.Info("starting HTTPS server", slog.String("addr", server.Addr))
			err = server.ListenAndServeTLS(cfg.CertFile, cfg.CertKey)
		} else {
			logger.Info("starting HTTP server", slog.String("addr", server.Addr))
			err = server.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return xerrors.New(err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return xerrors.New(err)
	}
	return nil
}
