package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"

	"github.com/vidfriends/accounts/internal/apperr"
	"github.com/vidfriends/accounts/internal/logging"
	"github.com/vidfriends/accounts/internal/middleware"
	"github.com/vidfriends/accounts/internal/respond"
	"github.com/vidfriends/accounts/internal/storage"
)

// multipartMemory is the part of a multipart body kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// handle adapts an error-returning handler, writing any error as a failure envelope.
func handle(fn func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			respond.Error(r.Context(), w, err)
		}
	}
}

// currentAccountID returns the id stored by middleware.RequireAuth.
func currentAccountID(r *http.Request) (string, error) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		return "", apperr.Unauthorized("unauthorized request")
	}
	return account.ID, nil
}

// decode reads a JSON body into dst, or calls fromForm for urlencoded and multipart bodies.
func decode(r *http.Request, dst any, fromForm func(url.Values)) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return bodyError(r, err)
		}
		fromForm(r.PostForm)
		return nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return bodyError(r, err)
		}
		fromForm(r.MultipartForm.Value)
		return nil
	}

	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return bodyError(r, err)
	}
	return nil
}

func bodyError(r *http.Request, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logging.FromContext(r.Context()).Warn("request body too large", "limit", tooLarge.Limit)
		return apperr.Validation("request body too large")
	}
	logging.FromContext(r.Context()).Warn("invalid request body", "error", err)
	return apperr.Validation("invalid request body")
}

// upload is a multipart request whose files were staged to local disk.
type upload struct {
	form   url.Values
	staged map[string]string
}

// Value returns the first value of a text field.
func (u upload) Value(name string) string {
	if vs := u.form[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// File returns the staged path of a file field, or "" when it was not sent.
func (u upload) File(name string) string { return u.staged[name] }

// paths lists every staged file.
func (u upload) paths() []string {
	out := make([]string, 0, len(u.staged))
	for _, p := range u.staged {
		out = append(out, p)
	}
	return out
}

// stageMultipart parses a multipart body and stages the named file fields into dir. Callers
// must defer storage.Discard on the returned paths so files never outlive the request.
func stageMultipart(r *http.Request, dir string, fields ...string) (upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return upload{}, bodyError(r, err)
	}
	defer r.MultipartForm.RemoveAll()

	u := upload{form: r.MultipartForm.Value, staged: make(map[string]string, len(fields))}
	for _, field := range fields {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}
		path, err := storage.StageUpload(dir, headers[0])
		if err != nil {
			storage.Discard(r.Context(), u.paths()...)
			return upload{}, apperr.Internal("failed to receive upload", err)
		}
		u.staged[field] = path
	}
	return u, nil
}
