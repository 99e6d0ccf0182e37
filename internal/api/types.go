package api

import "github.com/fisaks/mbconsole/internal/config"

// ConfigResponse is returned by both GET and POST /api/config.
type ConfigResponse struct {
	Config     config.Remote `json:"config"`
	Invocation string        `json:"invocation"`
}

type SerialDevicesResponse struct {
	Devices []string `json:"devices"`
}

type VersionResponse struct {
	Version string `json:"version"`
}

// ErrorResponse is the body of every non-2xx answer except failed reads.
type ErrorResponse struct {
	Error string `json:"error"`
}
