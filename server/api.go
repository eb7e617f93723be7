package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/coordinator"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/session"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher/sos"
)

// apiError is the JSON body of every failed request.
type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type watcherInfo struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Status watcher.Status `json:"status"`
}

// ServeHTTP handles HTTP requests for the plugin.
// The root URL is currently <siteUrl>/plugins/com.mattermost.plugin-sosconsole/api/v1/.
func (p *Plugin) ServeHTTP(c *plugin.Context, w http.ResponseWriter, r *http.Request) {
	p.router().ServeHTTP(w, r)
}

func (p *Plugin) router() *mux.Router {
	router := mux.NewRouter()

	// Middleware to require that the user is logged in
	router.Use(p.MattermostAuthorizationRequired)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	apiRouter.HandleFunc("/watchers", p.handleListWatchers).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watchers/{id}/restart", p.handleRestartWatcher).Methods(http.MethodPost)
	apiRouter.HandleFunc("/watchers/{id}/alerts", p.handleListAlerts).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watchers/{id}/alerts/{alertID}/acknowledge", p.handleAcknowledge).Methods(http.MethodPost)
	apiRouter.HandleFunc("/watchers/{id}/alerts/{alertID}/resolve", p.handleResolve).Methods(http.MethodPost)
	apiRouter.HandleFunc("/watchers/{id}/simulate", p.handleSimulate).Methods(http.MethodPost)
	apiRouter.HandleFunc("/watchers/{id}/documents", p.handleDocuments).Methods(http.MethodGet)
	apiRouter.HandleFunc("/tone.wav", p.handleTone).Methods(http.MethodGet)
	apiRouter.Handle("/metrics", p.SystemAdminRequired(p.metrics.Handler())).Methods(http.MethodGet)

	return router
}

func (p *Plugin) MattermostAuthorizationRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("Mattermost-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "Not authorized", "")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (p *Plugin) SystemAdminRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("Mattermost-User-ID")
		if !p.API.HasPermissionTo(userID, model.PermissionManageSystem) {
			writeError(w, http.StatusForbidden, "Forbidden", "system admin permission required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (p *Plugin) handleListWatchers(w http.ResponseWriter, r *http.Request) {
	watchers := p.registry.List()

	out := make([]watcherInfo, 0, len(watchers))
	for _, wt := range watchers {
		out = append(out, watcherInfo{
			ID:     wt.GetID(),
			Name:   wt.GetName(),
			Type:   wt.GetType(),
			Status: wt.GetStatus(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (p *Plugin) handleRestartWatcher(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := p.restartWatcher(id); err != nil {
		writeError(w, http.StatusNotFound, "Restart failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// alertSession resolves the watcher in the path to an AlertSession, writing
// the error response when it cannot.
func (p *Plugin) alertSession(w http.ResponseWriter, r *http.Request) (watcher.AlertSession, bool) {
	wt := p.registry.Get(mux.Vars(r)["id"])
	if wt == nil {
		writeError(w, http.StatusNotFound, "Watcher not found", "")
		return nil, false
	}

	s, ok := wt.(watcher.AlertSession)
	if !ok {
		writeError(w, http.StatusBadRequest, "Not an alert watcher", wt.GetType())
		return nil, false
	}
	return s, true
}

func (p *Plugin) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	s, ok := p.alertSession(w, r)
	if !ok {
		return
	}

	view, ok := watcher.ParseView(r.URL.Query().Get("view"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid view", r.URL.Query().Get("view"))
		return
	}

	alerts, err := s.Alerts(view, r.URL.Query().Get("q"))
	if err != nil {
		p.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (p *Plugin) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s, ok := p.alertSession(w, r)
	if !ok {
		return
	}

	userID := r.Header.Get("Mattermost-User-ID")
	if err := s.Acknowledge(r.Context(), mux.Vars(r)["alertID"], p.identity(userID)); err != nil {
		p.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleResolve(w http.ResponseWriter, r *http.Request) {
	s, ok := p.alertSession(w, r)
	if !ok {
		return
	}

	res, err := s.Resolve(mux.Vars(r)["alertID"])
	if err != nil {
		p.writeActionError(w, err)
		return
	}

	status := http.StatusAccepted
	if res.State != session.ResolvePending {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (p *Plugin) handleSimulate(w http.ResponseWriter, r *http.Request) {
	s, ok := p.alertSession(w, r)
	if !ok {
		return
	}

	id, err := s.Simulate(r.Context())
	if err != nil {
		p.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (p *Plugin) handleDocuments(w http.ResponseWriter, r *http.Request) {
	wt := p.registry.Get(mux.Vars(r)["id"])
	if wt == nil {
		writeError(w, http.StatusNotFound, "Watcher not found", "")
		return
	}

	lister, ok := wt.(watcher.DocumentLister)
	if !ok {
		writeError(w, http.StatusBadRequest, "Not a document watcher", wt.GetType())
		return
	}
	writeJSON(w, http.StatusOK, lister.Documents())
}

func (p *Plugin) handleTone(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(p.toneWAV)
}

// identity is the name recorded as the acknowledger.
func (p *Plugin) identity(userID string) string {
	user, err := p.API.GetUser(userID)
	if err != nil || user == nil {
		return userID
	}
	return user.Username
}

// writeActionError maps session and mutation errors to HTTP statuses.
func (p *Plugin) writeActionError(w http.ResponseWriter, err error) {
	var mErr *coordinator.MutationError
	switch {
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusConflict, "Session has ended", err.Error())
	case errors.Is(err, session.ErrUnknownAlert):
		writeError(w, http.StatusNotFound, "Alert not found", err.Error())
	case errors.Is(err, sos.ErrNoStore), errors.Is(err, sos.ErrNoResolver):
		writeError(w, http.StatusServiceUnavailable, "Not configured", err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "Request cancelled", err.Error())
	case errors.As(err, &mErr):
		writeError(w, mutationStatus(mErr.Kind), mErr.Detail, string(mErr.Kind))
	default:
		p.API.LogError("Request failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "Request failed", err.Error())
	}
}

func mutationStatus(kind coordinator.Kind) int {
	switch kind {
	case coordinator.KindNotFound:
		return http.StatusNotFound
	case coordinator.KindRejected:
		return http.StatusUnprocessableEntity
	case coordinator.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, apiError{Error: msg, Detail: detail})
}
