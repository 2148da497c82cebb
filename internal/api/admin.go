package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
	"github.com/nerrad567/webmixer/internal/mixer"
)

// configView is the configuration as shown to the admin page. Broker and
// database credentials are left out.
type configView struct {
	Debug       bool                    `json:"debug"`
	Server      serverView              `json:"server"`
	OSC         portView                `json:"osc"`
	Desk        deskView                `json:"desk"`
	External    []config.EndpointConfig `json:"external"`
	Channels    []config.ChannelConfig  `json:"channels"`
	Auxiliaries []config.AuxConfig      `json:"auxiliaries"`
	FirstRun    bool                    `json:"first_run"`
}

type serverView struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

type portView struct {
	Port int `json:"port"`
}

type deskView struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (s *Server) viewConfig(cfg *config.Config) configView {
	return configView{
		Debug:       cfg.Debug,
		Server:      serverView{IP: s.serverIP, Port: cfg.Server.Port},
		OSC:         portView{Port: cfg.OSC.Port},
		Desk:        deskView{Host: cfg.Desk.Host, Port: cfg.Desk.Port},
		External:    nonNil(cfg.External),
		Channels:    nonNil(cfg.Channels),
		Auxiliaries: nonNil(cfg.Auxiliaries),
		FirstRun:    cfg.FirstRun,
	}
}

// adminRequest is the body of POST /admin. Omitted sections keep their
// current value. Names are indexed from zero for aux or channel 1.
type adminRequest struct {
	Debug        *bool                    `json:"debug"`
	ServerPort   *int                     `json:"server_port"`
	OSCPort      *int                     `json:"osc_port"`
	Desk         *deskView                `json:"desk"`
	External     *[]config.EndpointConfig `json:"external"`
	Auxiliaries  []config.AuxConfig       `json:"auxiliaries"`
	Channels     []config.ChannelConfig   `json:"channels"`
	AuxNames     []string                 `json:"aux_names"`
	ChannelNames []string                 `json:"channel_names"`
}

// adminResponse reports the applied configuration. RestartRequired is set
// when a listening port changed; ports are bound once at startup.
type adminResponse struct {
	Config          configView `json:"config"`
	RestartRequired bool       `json:"restart_required"`
}

// handleGetConfig returns the configuration for the admin page.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.viewConfig(s.config()))
}

// handleAdmin applies an admin edit: the new settings go live in the
// engine, the file is rewritten, renamed buses and channels are pushed to
// the desk and clients, and every client is closed so it reloads.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	next, restart := applyAdmin(s.cfg, req)
	if err := next.Validate(); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	settings, err := mixer.SettingsFromConfig(next)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if s.configPath != "" {
		if err := config.Save(s.configPath, next); err != nil {
			s.logger.Error("saving configuration failed", "error", err, "path", s.configPath)
			writeInternalError(w, "saving configuration failed")
			return
		}
	}
	next.FirstRun = false

	if err := s.engine.Reconfigure(r.Context(), settings,
		indexNames(req.AuxNames), indexNames(req.ChannelNames)); err != nil {
		s.logger.Error("applying configuration failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "mixer engine not running")
		return
	}
	s.logger.SetDebug(next.Debug)
	s.cfg = next

	if restart {
		s.logger.Warn("listening port changed, restart required",
			"server_port", next.Server.Port,
			"osc_port", next.OSC.Port,
		)
	}
	s.logger.Info("configuration updated from admin page",
		"desk", next.Desk.Host,
		"endpoints", len(next.External),
		"debug", next.Debug,
	)
	writeJSON(w, http.StatusOK, adminResponse{
		Config:          s.viewConfig(next),
		RestartRequired: restart,
	})
}

// applyAdmin returns a copy of cur with req applied. The current config is
// never modified, so a rejected edit leaves it untouched.
func applyAdmin(cur *config.Config, req adminRequest) (*config.Config, bool) {
	next := *cur
	restart := false

	if req.Debug != nil {
		next.Debug = *req.Debug
	}
	if req.ServerPort != nil && *req.ServerPort != cur.Server.Port {
		next.Server.Port = *req.ServerPort
		restart = true
	}
	if req.OSCPort != nil && *req.OSCPort != cur.OSC.Port {
		next.OSC.Port = *req.OSCPort
		restart = true
	}
	if req.Desk != nil {
		next.Desk = config.DeskConfig{Host: req.Desk.Host, Port: req.Desk.Port}
	}
	if req.External != nil {
		next.External = append([]config.EndpointConfig(nil), (*req.External)...)
	}
	if req.Auxiliaries != nil {
		next.Auxiliaries = append([]config.AuxConfig(nil), req.Auxiliaries...)
	}
	if req.Channels != nil {
		next.Channels = append([]config.ChannelConfig(nil), req.Channels...)
	}
	return &next, restart
}

// indexNames keys names by 1-based position.
func indexNames(names []string) map[int]string {
	if len(names) == 0 {
		return nil
	}
	out := make(map[int]string, len(names))
	for i, n := range names {
		out[i+1] = n
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
