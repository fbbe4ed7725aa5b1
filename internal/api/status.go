package api

import (
	"net/http"
	"time"
)

// Status is what /status reports. Probes are optional.
type Status struct {
	Game      string
	Mode      string
	Started   time.Time
	Running   func() bool
	Connected func() bool
	Listeners func() int
}

type statusResponse struct {
	Game          string `json:"game"`
	Mode          string `json:"mode"`
	Running       bool   `json:"running"`
	RCONConnected bool   `json:"rcon_connected"`
	Listeners     int    `json:"listeners"`
	Uptime        string `json:"uptime"`
}

func (s Status) Handle(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Game:   s.Game,
		Mode:   s.Mode,
		Uptime: time.Since(s.Started).Round(time.Second).String(),
	}
	if s.Running != nil {
		resp.Running = s.Running()
	}
	if s.Connected != nil {
		resp.RCONConnected = s.Connected()
	}
	if s.Listeners != nil {
		resp.Listeners = s.Listeners()
	}
	writeJSON(w, http.StatusOK, resp)
}
