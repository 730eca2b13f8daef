package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTaskID     = "task_id"
	KeyStep       = "step"
	KeyPlatform   = "platform"
	KeyProfile    = "profile"
	KeyBackup     = "backup"
	KeyUnit       = "unit"
	KeyChannel    = "channel"
	KeyPath       = "path"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func TaskID(id string) slog.Attr      { return slog.String(KeyTaskID, id) }
func Step(name string) slog.Attr      { return slog.String(KeyStep, name) }
func Platform(p string) slog.Attr     { return slog.String(KeyPlatform, p) }
func Profile(name string) slog.Attr   { return slog.String(KeyProfile, name) }
func Backup(name string) slog.Attr    { return slog.String(KeyBackup, name) }
func Unit(name string) slog.Attr      { return slog.String(KeyUnit, name) }
func Channel(name string) slog.Attr   { return slog.String(KeyChannel, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
