package sim

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fisaks/mbconsole/internal/api"
	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/version"
)

// NewHandler serves the service API and the /ws push endpoint.
func NewHandler(svc *Service, hub *Hub) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/config", func(w http.ResponseWriter, r *http.Request) {
		cfg := svc.Config()
		writeJSON(w, http.StatusOK, api.ConfigResponse{Config: cfg, Invocation: cfg.Invocation()})
	})
	mux.HandleFunc("POST /api/config", func(w http.ResponseWriter, r *http.Request) {
		var cfg config.Remote
		if err := readJSON(r, &cfg); err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := cfg.Validate(); err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		if cfg.RequireToken && cfg.Token == "" {
			cfg.Token = svc.Config().Token
		}
		svc.UpdateConfig(cfg)
		writeJSON(w, http.StatusOK, api.ConfigResponse{Config: cfg, Invocation: cfg.Invocation()})
	})

	mux.HandleFunc("POST /api/connect", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Connect(); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, svc.Status())
	})
	mux.HandleFunc("POST /api/disconnect", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Disconnect(); err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, svc.Status())
	})

	mux.HandleFunc("POST /api/read", func(w http.ResponseWriter, r *http.Request) {
		var req mbc.ReadRequest
		if err := readJSON(r, &req); err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := svc.Read(req)
		if err != nil {
			// the body still carries the result so the console can show errorMessage
			writeJSON(w, http.StatusBadRequest, result)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Stats())
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})
	mux.HandleFunc("GET /api/logs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Logs())
	})
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.VersionResponse{Version: version.Version})
	})
	mux.HandleFunc("GET /api/serial-devices", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.SerialDevicesResponse{Devices: serialDeviceOptions()})
	})

	mux.Handle("GET /ws", hub)

	return requireToken(svc, mux)
}

// requireToken rejects API and push requests that do not carry the
// configured token in the header or the token query parameter.
func requireToken(svc *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := svc.Config()
		if !cfg.RequireToken || cfg.Token == "" || !isProtectedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get(api.TokenHeader) == cfg.Token || r.URL.Query().Get("token") == cfg.Token {
			next.ServeHTTP(w, r)
			return
		}
		logging.Debug("rejected request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		fail(w, http.StatusUnauthorized, "missing or invalid token")
	})
}

func isProtectedPath(p string) bool {
	return strings.HasPrefix(p, "/api/") || p == "/ws"
}

/* ------------------------ helpers: json & errors ------------------------ */

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

/* ------------------------ serial device candidates ------------------------ */

func serialDeviceOptions() []string {
	switch runtime.GOOS {
	case "darwin":
		return globDevices("/dev/tty.*")
	case "linux":
		return globDevices("/dev/serial/by-id/*", "/dev/ttyUSB*", "/dev/ttyACM*")
	case "windows":
		return windowsComPorts(32)
	}
	return []string{}
}

func globDevices(patterns ...string) []string {
	devices := []string{}
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		devices = append(devices, matches...)
	}
	return devices
}

func windowsComPorts(n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("COM%d", i))
	}
	return out
}
