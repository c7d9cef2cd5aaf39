package models

import (
	"time"
)

// Health check models
type HealthData struct {
	Status   string `json:"status" example:"ok" doc:"Service status"`
	Message  string `json:"message" example:"API is healthy" doc:"Status message"`
	Sessions int    `json:"sessions" example:"1" doc:"Number of running capture sessions"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go version used to build"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"darwin/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Stream models
type StreamInput struct {
	UDID    string  `query:"udid" required:"true" example:"6A1F6F0B-9C1E-4D8B-9A57-4E3E4C9B1D2A" doc:"Simulator UDID"`
	FPS     int     `query:"fps" example:"30" doc:"Frames per second, clamped to 1-60. Omit for the server default"`
	Quality float64 `query:"quality" example:"0.6" doc:"JPEG quality, clamped to 0.1-1.0. Omit for the server default"`
}

// Session models
type SessionData struct {
	ID        string    `json:"id" example:"0b5e3c2e-4a1f-4f7a-9b3e-2f1d8c7a6b5e" doc:"Session identifier"`
	UDID      string    `json:"udid" example:"6A1F6F0B-9C1E-4D8B-9A57-4E3E4C9B1D2A" doc:"Simulator UDID"`
	Mode      string    `json:"mode" example:"native-surface" doc:"Active capture mode"`
	State     string    `json:"state" example:"active(0)" doc:"Fallback state"`
	FPS       int       `json:"fps" example:"30" doc:"Frame rate the session was created with"`
	Quality   float64   `json:"quality" example:"0.6" doc:"JPEG quality the session was created with"`
	Frames    uint64    `json:"frames" example:"1800" doc:"Frames captured"`
	Dropped   uint64    `json:"dropped" example:"12" doc:"Frames replaced before a viewer read them"`
	Attached  bool      `json:"attached" example:"true" doc:"Whether a viewer is connected"`
	CreatedAt time.Time `json:"created_at" doc:"When the session started"`
}

type SessionListData struct {
	Sessions []SessionData `json:"sessions" doc:"Running capture sessions"`
	Count    int           `json:"count" example:"1" doc:"Number of sessions"`
}

type SessionListResponse struct {
	Body SessionListData
}

type SessionRequest struct {
	UDID string `path:"udid" example:"6A1F6F0B-9C1E-4D8B-9A57-4E3E4C9B1D2A" doc:"Simulator UDID"`
}

type SessionDeleteResponse struct {
	Body struct {
		Message string `json:"message" example:"Session removed" doc:"Result message"`
	}
}

// Simulator models
type SimulatorData struct {
	UDID    string `json:"udid" example:"6A1F6F0B-9C1E-4D8B-9A57-4E3E4C9B1D2A" doc:"Simulator UDID"`
	Name    string `json:"name" example:"iPhone 15 Pro" doc:"Device name"`
	State   string `json:"state" example:"Booted" doc:"Simulator state"`
	Runtime string `json:"runtime" example:"iOS 17.2" doc:"Simulator runtime"`
}

type SimulatorListData struct {
	Simulators []SimulatorData `json:"simulators" doc:"Known simulators, booted first"`
	Count      int             `json:"count" example:"3" doc:"Number of simulators"`
}

type SimulatorListResponse struct {
	Body SimulatorListData
}

type LaunchRequest struct {
	UDID string `path:"udid" example:"6A1F6F0B-9C1E-4D8B-9A57-4E3E4C9B1D2A" doc:"Simulator UDID"`
	Body struct {
		AppPath  string `json:"app_path" minLength:"1" example:"/tmp/Build/MyApp.app" doc:"Path to the .app bundle"`
		BundleID string `json:"bundle_id,omitempty" example:"com.example.MyApp" doc:"Bundle identifier. Read from the bundle when omitted"`
	}
}

type LaunchData struct {
	UDID     string `json:"udid" doc:"Simulator UDID"`
	BundleID string `json:"bundle_id" example:"com.example.MyApp" doc:"Launched bundle identifier"`
	Message  string `json:"message" example:"App launched" doc:"Result message"`
}

type LaunchResponse struct {
	Body LaunchData
}
