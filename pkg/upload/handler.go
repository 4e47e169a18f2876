package upload

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
)

// Response is the JSON body returned by the upload handler.
type Response struct {
	TempID      string `json:"temp_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Handler returns an http.Handler for file uploads with DefaultConfig.
// Mount it on a router: r.Post("/v1/uploads", upload.Handler(store))
//
// The handler expects a multipart form with a "file" field.
func Handler(store Store) http.Handler {
	return HandlerWithConfig(store, DefaultConfig(), nil)
}

// HandlerWithConfig returns an upload handler with custom limits.
func HandlerWithConfig(store Store, config *Config, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "upload")
	maxSize := config.maxSize()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, apperrors.New(apperrors.CodeInvalidInput).WithMessage("Method not allowed"))
			return
		}

		// Limit request body size before parsing; leave room for form overhead.
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, apperrors.New(apperrors.CodeFileTooLarge))
				return
			}
			writeError(w, http.StatusBadRequest, apperrors.New(apperrors.CodeInvalidInput).WithMessage("Failed to parse form"))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, apperrors.New(apperrors.CodeMissingArgument).WithMessage("No file provided"))
			return
		}
		defer file.Close()

		// Client-provided part headers are not trusted for the type check.
		contentType, body, err := Sniff(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, apperrors.New(apperrors.CodeInvalidInput).Wrap(err))
			return
		}
		if err := Validate(config, header.Filename, contentType, header.Size); err != nil {
			status := http.StatusUnsupportedMediaType
			if errors.Is(err, ErrTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			writeError(w, status, apperrors.FromError(err, apperrors.CodeInvalidInput))
			return
		}

		tempID, err := store.Save(r.Context(), header.Filename, contentType, header.Size, body)
		if err != nil {
			if errors.Is(err, ErrTooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, apperrors.New(apperrors.CodeFileTooLarge))
				return
			}
			logger.Error("save failed", "filename", header.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, apperrors.New(apperrors.CodeRemoteFailed))
			return
		}

		logger.Info("stored upload", "temp_id", tempID, "type", contentType, "size", header.Size)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Response{
			TempID:      tempID,
			Filename:    header.Filename,
			ContentType: contentType,
			Size:        header.Size,
		})
	})
}

func writeError(w http.ResponseWriter, status int, err *apperrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    err.Code,
			"message": err.Message,
		},
	})
}
