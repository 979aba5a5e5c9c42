package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	gwebsocket "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"obd-go-gateway/internal/auth"
	"obd-go-gateway/internal/connection"
	"obd-go-gateway/internal/storage"
	"obd-go-gateway/internal/telemetry"
	"obd-go-gateway/internal/websocket"
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards connect from arbitrary origins (file://, local dev hosts).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler wires the HTTP surface to the pipeline.
type Handler struct {
	hub     *websocket.Hub
	store   *telemetry.Store
	history *storage.FrameStore
	mgr     *connection.Manager
	auth    *auth.Manager
	log     *logrus.Logger
}

func NewHandler(hub *websocket.Hub, store *telemetry.Store, history *storage.FrameStore, mgr *connection.Manager, authMgr *auth.Manager, log *logrus.Logger) *Handler {
	return &Handler{
		hub:     hub,
		store:   store,
		history: history,
		mgr:     mgr,
		auth:    authMgr,
		log:     log,
	}
}

// HandleWebSocket upgrades a connection and registers it as a subscriber.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	websocket.NewClient(h.hub, conn, h.log).Start()
}

// HandleHealth reports connection state and subscriber count.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"connection_state": h.mgr.State().String(),
		"subscribers":      h.hub.SubscriberCount(),
	})
}

// HandleCurrentFrame returns the current frame snapshot.
func (h *Handler) HandleCurrentFrame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Current())
}

// HandleHistory returns up to ?count recent frames, oldest first.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	count := 0
	if s := r.URL.Query().Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "Bad Request: count must be an integer", http.StatusBadRequest)
			return
		}
		count = n
	}
	writeJSON(w, http.StatusOK, h.history.Recent(count))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin authenticates a configured user and issues a JWT.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: cannot parse JSON", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	role, err := h.auth.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.auth.GenerateJWT(req.Username, role)
	if err != nil {
		h.log.WithError(err).Error("token generation failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
