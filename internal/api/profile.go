package api

import (
	"errors"
	"net/http"

	"github.com/reyadatime/reyadatime/internal/catalog"
	"github.com/reyadatime/reyadatime/internal/config"
	"github.com/reyadatime/reyadatime/internal/storage"
)

func handleGetProfile(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok || !requireCatalog(deps, w, r) {
		return
	}
	profile, err := deps.Catalog.GetProfile(r.Context(), userID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func handleUpdateProfile(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok || !requireCatalog(deps, w, r) {
		return
	}
	var update catalog.ProfileUpdate
	if !decodeJSON(w, r, &update) {
		return
	}
	profile, err := deps.Catalog.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleUploadAvatar stores the multipart "file" field as the caller's avatar
// and points the profile at its public URL.
func handleUploadAvatar(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok || !requireCatalog(deps, w, r) {
		return
	}
	if deps.Storage == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "STORAGE_NOT_CONFIGURED", "storage dependency is not configured", false, nil)
		return
	}

	limit := int64(cfg.HTTP.MaxUploadBytes)
	tooLarge := func() {
		writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "avatar exceeds the upload limit", false, map[string]any{"limit_bytes": limit})
	}
	if r.ContentLength > limit {
		tooLarge()
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			tooLarge()
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	path, err := storage.BuildAvatarPath(userID, header.Filename)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILENAME", err.Error(), false, nil)
		return
	}
	uploaded, err := deps.Storage.From(AvatarBucket).Upload(r.Context(), path, storage.File{
		Body:        file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	avatarURL := uploaded.PublicURL
	profile, err := deps.Catalog.UpdateProfile(r.Context(), userID, catalog.ProfileUpdate{AvatarURL: &avatarURL})
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": profile,
		"upload":  uploaded,
	})
}
