// Package responses defines API response types used by gundeck HTTP handlers.
package responses

import (
	"time"

	"git.home.luguber.info/inful/gundeck/internal/backup"
	"git.home.luguber.info/inful/gundeck/internal/profile"
	"git.home.luguber.info/inful/gundeck/internal/settings"
	"git.home.luguber.info/inful/gundeck/internal/task"
	"git.home.luguber.info/inful/gundeck/internal/taskstore"
)

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
}

// ConfigResponse carries the split settings view of a live file or profile.
type ConfigResponse struct {
	OK            bool              `json:"ok"`
	Platform      string            `json:"platform"`
	Path          string            `json:"path"`
	Source        string            `json:"source"`
	Profile       string            `json:"profile"`
	Player1       []settings.Entry  `json:"player1"`
	Player2       []settings.Entry  `json:"player2"`
	Player1Groups []settings.Group  `json:"player1Groups"`
	Player2Groups []settings.Group  `json:"player2Groups"`
	Actions       []settings.Action `json:"actions,omitempty"`
}

// SaveResponse reports a strict-preserve save.
type SaveResponse struct {
	OK       bool   `json:"ok"`
	Platform string `json:"platform"`
	Path     string `json:"path"`
	Backup   string `json:"backup"`
}

// ProfilesResponse lists saved profiles for a platform.
type ProfilesResponse struct {
	OK       bool             `json:"ok"`
	Platform string           `json:"platform"`
	Profiles []profile.Record `json:"profiles"`
}

// ProfileOpResponse reports a profile save/load/delete.
type ProfileOpResponse struct {
	OK       bool   `json:"ok"`
	Platform string `json:"platform"`
	Profile  string `json:"profile"`
	Path     string `json:"path,omitempty"`
	Backup   string `json:"backup,omitempty"`
}

// BackupsResponse lists backups for a platform.
type BackupsResponse struct {
	OK       bool            `json:"ok"`
	Platform string          `json:"platform"`
	Backups  []backup.Record `json:"backups"`
}

// RestoreResponse reports a backup restore.
type RestoreResponse struct {
	OK       bool   `json:"ok"`
	Platform string `json:"platform"`
	Restored string `json:"restored"`
	Backup   string `json:"backup"`
}

// ServiceActionResponse reports a unit lifecycle action.
type ServiceActionResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// LogsResponse carries raw log text.
type LogsResponse struct {
	Logs string `json:"logs"`
}

// PowerResponse acknowledges a power action.
type PowerResponse struct {
	OK bool `json:"ok"`
}

// ApplyResponse returns the task ID of a started update.
type ApplyResponse struct {
	OK     bool   `json:"ok"`
	TaskID string `json:"task_id"`
}

// TaskStatusResponse wraps one task record.
type TaskStatusResponse struct {
	OK   bool        `json:"ok"`
	Task task.Record `json:"task"`
}

// TasksResponse combines active registry records with the archived history.
type TasksResponse struct {
	OK      bool                 `json:"ok"`
	Active  []task.Record        `json:"active"`
	History []taskstore.Archived `json:"history"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	OK       bool `json:"ok"`
	Canceled bool `json:"canceled"`
}

// VersionResponse reports build and installed driver versions.
type VersionResponse struct {
	OK        bool   `json:"ok"`
	Version   string `json:"version"`
	Installed string `json:"installed"`
}
