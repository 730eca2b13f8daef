package handlers

import (
	"log/slog"
	"net/http"
	"os"

	"git.home.luguber.info/inful/gundeck/internal/backup"
	"git.home.luguber.info/inful/gundeck/internal/config"
	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/logfields"
	"git.home.luguber.info/inful/gundeck/internal/metrics"
	"git.home.luguber.info/inful/gundeck/internal/profile"
	"git.home.luguber.info/inful/gundeck/internal/server/responses"
	"git.home.luguber.info/inful/gundeck/internal/settings"
)

// ConfigHandlers serves the settings read model and the write operations
// around it (save, profiles, backups).
type ConfigHandlers struct {
	cfg          *config.Config
	patcher      *settings.Patcher
	profiles     *profile.Store
	ledger       *backup.Ledger
	rec          metrics.Recorder
	errorAdapter *errors.HTTPErrorAdapter
}

// NewConfigHandlers creates a new config handlers instance.
func NewConfigHandlers(cfg *config.Config, patcher *settings.Patcher, profiles *profile.Store, ledger *backup.Ledger, rec metrics.Recorder) *ConfigHandlers {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &ConfigHandlers{
		cfg:          cfg,
		patcher:      patcher,
		profiles:     profiles,
		ledger:       ledger,
		rec:          rec,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

func (h *ConfigHandlers) livePath(platform string) (string, string) {
	resolved := h.cfg.ResolvePlatform(platform)
	return resolved, h.cfg.Platforms[resolved].ConfigPath
}

// HandleConfigGet serves GET /api/config. With ?profile= it reads a stored
// profile instead of the live file.
func (h *ConfigHandlers) HandleConfigGet(w http.ResponseWriter, r *http.Request) {
	platform, path := h.livePath(r.URL.Query().Get("platform"))
	profileName := r.URL.Query().Get("profile")
	source := "live"

	if profileName != "" {
		profPath, err := h.profiles.Path(path, profileName)
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, err)
			return
		}
		if _, err := os.Stat(profPath); os.IsNotExist(err) {
			h.errorAdapter.WriteErrorResponse(w, errors.NotFoundError("profile not found"))
			return
		}
		path = profPath
		source = "profile"
	}

	doc, err := settings.Load(path)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	p1, p2 := doc.SplitPlayers()

	_ = writeJSON(w, http.StatusOK, responses.ConfigResponse{
		OK:            true,
		Platform:      platform,
		Path:          path,
		Source:        source,
		Profile:       profileName,
		Player1:       p1,
		Player2:       p2,
		Player1Groups: settings.GroupByCategory(p1),
		Player2Groups: settings.GroupByCategory(p2),
		Actions:       doc.AssignableActions(),
	})
}

type saveRequest struct {
	Platform string        `json:"platform"`
	Player1  []settings.KV `json:"player1"`
	Player2  []settings.KV `json:"player2"`
}

// HandleConfigSave serves POST /api/config/save: byte-exact backup of the
// live file, then a layout-preserving patch.
func (h *ConfigHandlers) HandleConfigSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, errors.ValidationError("invalid JSON body"))
		return
	}
	platform, path := h.livePath(req.Platform)

	if err := settings.EnsureStub(path); err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	backupPath, err := h.ledger.Snapshot(path, backup.PurposeSave)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	h.rec.IncBackup(string(backup.PurposeSave))

	if err := h.patcher.Patch(path, req.Player1, req.Player2); err != nil {
		h.rec.IncPatchResult(false)
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	h.rec.IncPatchResult(true)

	slog.Info("settings saved", logfields.Platform(platform), logfields.Path(path), logfields.Backup(backupPath))
	_ = writeJSON(w, http.StatusOK, responses.SaveResponse{
		OK:       true,
		Platform: platform,
		Path:     path,
		Backup:   backupPath,
	})
}

// HandleProfiles serves GET /api/config/profiles.
func (h *ConfigHandlers) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	platform, path := h.livePath(r.URL.Query().Get("platform"))
	records, err := h.profiles.List(path)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, responses.ProfilesResponse{
		OK:       true,
		Platform: platform,
		Profiles: records,
	})
}

type profileRequest struct {
	Platform  string `json:"platform"`
	Name      string `json:"name"`
	Overwrite bool   `json:"overwrite"`
}

// HandleProfileSave serves POST /api/config/profile/save.
func (h *ConfigHandlers) HandleProfileSave(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, errors.ValidationError("invalid JSON body"))
		return
	}
	platform, path := h.livePath(req.Platform)

	dst, err := h.profiles.Save(path, req.Name, req.Overwrite)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, responses.ProfileOpResponse{
		OK:       true,
		Platform: platform,
		Profile:  req.Name,
		Path:     dst,
	})
}

// HandleProfileLoad serves POST /api/config/profile/load.
func (h *ConfigHandlers) HandleProfileLoad(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, errors.ValidationError("invalid JSON body"))
		return
	}
	platform, path := h.livePath(req.Platform)

	backupPath, err := h.profiles.Load(path, req.Name)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	h.rec.IncBackup(string(backup.PurposeQuickRestore))
	_ = writeJSON(w, http.StatusOK, responses.ProfileOpResponse{
		OK:       true,
		Platform: platform,
		Profile:  req.Name,
		Path:     path,
		Backup:   backupPath,
	})
}

// HandleProfileDelete serves POST /api/config/profile/delete.
func (h *ConfigHandlers) HandleProfileDelete(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, errors.ValidationError("invalid JSON body"))
		return
	}
	platform, path := h.livePath(req.Platform)

	if err := h.profiles.Delete(path, req.Name); err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, responses.ProfileOpResponse{
		OK:       true,
		Platform: platform,
		Profile:  req.Name,
	})
}

// HandleBackups serves GET /api/config/backups.
func (h *ConfigHandlers) HandleBackups(w http.ResponseWriter, r *http.Request) {
	platform, path := h.livePath(r.URL.Query().Get("platform"))
	records, err := h.ledger.List(path)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, responses.BackupsResponse{
		OK:       true,
		Platform: platform,
		Backups:  records,
	})
}

type restoreRequest struct {
	Platform string `json:"platform"`
	Filename string `json:"filename"`
}

// HandleBackupRestore serves POST /api/config/backup/restore. The live file
// gets one more safety snapshot before being overwritten.
func (h *ConfigHandlers) HandleBackupRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, errors.ValidationError("invalid JSON body"))
		return
	}
	platform, path := h.livePath(req.Platform)

	safety, err := h.ledger.Restore(path, req.Filename)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, err)
		return
	}
	h.rec.IncBackup(string(backup.PurposeRestore))
	_ = writeJSON(w, http.StatusOK, responses.RestoreResponse{
		OK:       true,
		Platform: platform,
		Restored: req.Filename,
		Backup:   safety,
	})
}
