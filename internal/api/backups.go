package api

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/reedfamily/craftbridge/internal/backup"
)

type BackupHandler struct {
	backups *backup.Service
	running func() bool
}

// NewBackupHandler takes a func reporting whether the server process is
// up; restores are refused while it is.
func NewBackupHandler(backupSvc *backup.Service, running func() bool) *BackupHandler {
	return &BackupHandler{backups: backupSvc, running: running}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backups.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	b, err := h.backups.Create(r.Context(), "api")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create backup: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Download sends a backup file to the client.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	path, err := h.backups.FilePath(r.Context(), chi.URLParam(r, "backupId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(path))
	w.Header().Set("Content-Type", "application/gzip")
	http.ServeFile(w, r, path)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.backups.Delete(r.Context(), chi.URLParam(r, "backupId")); err != nil {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "backup deleted"})
}

// Restore replaces the world. The server must be stopped first.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if h.running != nil && h.running() {
		writeError(w, http.StatusConflict, "stop the server before restoring a backup")
		return
	}
	if err := h.backups.Restore(r.Context(), chi.URLParam(r, "backupId")); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to restore backup: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "backup restored"})
}
