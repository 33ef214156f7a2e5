package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/skillswap/backend/internal/auth"
	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/media"
)

// envelope is the body shape of every API response: success and message plus
// any operation specific fields.
type envelope map[string]any

func respondSuccess(ctx context.Context, w http.ResponseWriter, status int, message string, data envelope) {
	body := envelope{"success": true, "message": message}
	for k, v := range data {
		body[k] = v
	}
	respondJSON(ctx, w, status, body)
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, envelope{"success": false, "message": message})
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
}

// requirePrincipal answers 401 when the request carries no authenticated member.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(r.Context(), w, http.StatusUnauthorized, "unauthorized")
		return auth.Principal{}, false
	}
	return p, true
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

// parseList accepts a JSON array or a comma separated list.
func parseList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var out []string
	if strings.HasPrefix(value, "[") && json.Unmarshal([]byte(value), &out) == nil {
		return out
	}
	for _, part := range strings.Split(value, ",") {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

// formFile returns the named upload or nil when the part is absent or empty.
func formFile(r *http.Request, name string) (*multipart.FileHeader, error) {
	_, header, err := r.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	if header.Size == 0 {
		return nil, nil
	}
	return header, nil
}

func storeUpload(ctx context.Context, uploader MediaUploader, kind media.Kind, header *multipart.FileHeader) (media.Asset, error) {
	if uploader == nil {
		return media.Asset{}, media.ErrBackendUnavailable
	}
	file, err := header.Open()
	if err != nil {
		return media.Asset{}, err
	}
	defer file.Close()

	return uploader.Upload(ctx, media.Upload{
		Kind:        kind,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
}

// uploadStatus maps media errors onto a status and a client message.
func uploadStatus(err error) (int, string) {
	switch {
	case errors.Is(err, media.ErrUnsupportedType):
		return http.StatusBadRequest, "unsupported file type"
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "file is too large"
	case errors.Is(err, media.ErrEmpty):
		return http.StatusBadRequest, "file is empty"
	default:
		return http.StatusBadGateway, "failed to store file"
	}
}

// parseFormStatus distinguishes oversized request bodies from malformed ones.
func parseFormStatus(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, "request body is too large"
	}
	return http.StatusBadRequest, "invalid form data"
}
