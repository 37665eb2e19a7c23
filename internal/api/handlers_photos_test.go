// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/arcanum/internal/storage"
)

var pngPhoto = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR spread of the day")

func (e *testEnv) upload(t *testing.T, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) uploadAs(t *testing.T, header http.Header, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", bytes.NewReader(body))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Authorization", header.Get("Authorization"))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func servePath(t *testing.T, signed string) string {
	t.Helper()
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url %q: %v", signed, err)
	}
	return u.RequestURI()
}

func TestUploadAndServePhoto(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "image/png", pngPhoto)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope[PhotoUploadResponse](t, rec).Data
	if _, err := uuid.Parse(resp.PhotoRef); err != nil {
		t.Errorf("photoRef %q is not a uuid", resp.PhotoRef)
	}
	if resp.Backend != storage.BackendLocal || !strings.HasPrefix(resp.URL, testBaseURL+"/photos/"+resp.PhotoRef+"?token=") {
		t.Errorf("response = %+v", resp)
	}

	rec = env.do(t, http.MethodGet, servePath(t, resp.URL), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("serve status = %d body %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(rec.Body.Bytes(), pngPhoto) {
		t.Error("served bytes differ from the upload")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "private, max-age=300" {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestServePhotoRefusals(t *testing.T) {
	env := newTestEnv(t)
	rec := env.upload(t, "image/png", pngPhoto)
	ref := decodeEnvelope[PhotoUploadResponse](t, rec).Data.PhotoRef

	otherRef := uuid.NewString()
	foreignToken, err := env.signer.Sign(otherRef)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"missing token", "/photos/" + ref, http.StatusForbidden, ErrCodeForbidden},
		{"garbage token", "/photos/" + ref + "?token=abc", http.StatusForbidden, ErrCodeForbidden},
		{"token for another photo", "/photos/" + ref + "?token=" + foreignToken, http.StatusForbidden, ErrCodeForbidden},
		{"unknown photo", "/photos/" + otherRef + "?token=" + foreignToken, http.StatusNotFound, ErrCodeNotFound},
		{"malformed ref", "/photos/not-a-uuid?token=x", http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, env.do(t, http.MethodGet, tt.path, "", nil), tt.status, tt.code)
		})
	}
}

func TestUploadPhotoRejects(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name        string
		contentType string
		body        []byte
		status      int
		code        string
	}{
		{"text body", "text/plain", []byte("not a picture at all"), http.StatusUnsupportedMediaType, ErrCodeUnsupportedMediaType},
		{"empty body", "image/png", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"too large", "image/png", append(append([]byte{}, pngPhoto...), make([]byte, testMaxPhoto)...), http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, env.upload(t, tt.contentType, tt.body), tt.status, tt.code)
		})
	}
}

func multipartBody(t *testing.T, field string, data []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "morning spread")
	fw, err := mw.CreateFormFile(field, "spread.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return mw.FormDataContentType(), buf.Bytes()
}

func TestUploadPhotoMultipart(t *testing.T) {
	env := newTestEnv(t)

	ct, body := multipartBody(t, "photo", pngPhoto)
	rec := env.upload(t, ct, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	ref := decodeEnvelope[PhotoUploadResponse](t, rec).Data.PhotoRef
	photo, err := env.badger.Get(t.Context(), ref)
	if err != nil || !bytes.Equal(photo.Data, pngPhoto) {
		t.Errorf("stored photo = %v, %v", photo.Data, err)
	}

	ct, body = multipartBody(t, "image", pngPhoto)
	expectError(t, env.upload(t, ct, body), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestPhotosDisabled(t *testing.T) {
	env := newTestEnv(t, withoutPhotos())
	expectError(t, env.upload(t, "image/png", pngPhoto), http.StatusServiceUnavailable, ErrCodeServiceUnavailable)
	expectError(t, env.do(t, http.MethodGet, "/photos/"+uuid.NewString()+"?token=x", "", nil), http.StatusNotFound, ErrCodeNotFound)
}
