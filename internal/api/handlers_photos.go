// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/storage"
)

// maxMultipartMemory bounds the in-memory part of a multipart upload; the
// photo store enforces the real size limit.
const maxMultipartMemory = 1 << 20

// PhotoUploadResponse identifies a stored photo.
type PhotoUploadResponse struct {
	PhotoRef string `json:"photoRef"`
	URL      string `json:"url"`
	Backend  string `json:"backend"`
}

// UploadPhoto stores a photo of a physical spread. The body is either the
// raw image or a multipart form with a "photo" file field.
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.photos == nil {
		rw.ServiceUnavailable("Photo uploads are not configured")
		return
	}
	uid, ok := userID(r)
	if !ok {
		rw.InternalError("Missing user")
		return
	}

	body, closeBody, err := uploadBody(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	defer closeBody()

	ref, err := h.photos.Put(r.Context(), uid, body)
	switch {
	case errors.Is(err, storage.ErrPhotoTooLarge):
		rw.Error(http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Photo exceeds the size limit")
		return
	case errors.Is(err, storage.ErrUnsupportedType):
		rw.Error(http.StatusUnsupportedMediaType, ErrCodeUnsupportedMediaType, "Photo must be JPEG, PNG or WebP")
		return
	case errors.Is(err, storage.ErrEmptyPhoto):
		rw.BadRequest("Photo is empty")
		return
	case err != nil:
		rw.StorageError(err)
		return
	}

	url, err := h.photos.SignedURL(r.Context(), ref)
	if err != nil {
		rw.StorageError(err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("photo_ref", ref).Str("backend", h.photos.Backend()).Msg("Photo uploaded")
	rw.Created(PhotoUploadResponse{PhotoRef: ref, URL: url, Backend: h.photos.Backend()})
}

func uploadBody(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil, errors.New("multipart upload has no photo field")
		}
		if err != nil {
			return nil, nil, err
		}
		if part.FormName() == "photo" {
			return part, func() { _ = part.Close() }, nil
		}
		_ = part.Close()
	}
}

// ServePhoto serves a locally stored photo to the holder of a signed URL.
// The inference service fetches photos through this route.
func (h *Handler) ServePhoto(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	verifier, ok := h.photoVerifier()
	if !ok {
		rw.NotFound("Photo not found")
		return
	}

	ref := chi.URLParam(r, "ref")
	if err := storage.ValidateRef(ref); err != nil {
		rw.NotFound("Photo not found")
		return
	}
	if err := verifier.VerifyToken(ref, r.URL.Query().Get("token")); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Str("photo_ref", ref).Msg("Photo token refused")
		rw.Forbidden("Invalid or expired photo token")
		return
	}

	photo, err := h.photos.Get(r.Context(), ref)
	if errors.Is(err, storage.ErrPhotoNotFound) {
		rw.NotFound("Photo not found")
		return
	}
	if err != nil {
		rw.StorageError(err)
		return
	}

	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(photo.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(photo.Data)
}
