package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/okian/textguard/pkg/logger"
)

// Multipart field names of POST /compare-files.
const (
	fileField1 = "file1"
	fileField2 = "file2"
)

// FilesHandler handles file-pair comparisons.
type FilesHandler struct {
	deps     PlagiarismDependencies
	maxBytes int64
	logger   logger.Logger
}

// NewFilesHandler creates a new file comparison handler. Bodies above
// maxBytes are rejected.
func NewFilesHandler(deps PlagiarismDependencies, maxBytes int64, l logger.Logger) *FilesHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &FilesHandler{deps: deps, maxBytes: maxBytes, logger: l}
}

// HandleCompareFiles handles POST /compare-files multipart requests.
func (h *FilesHandler) HandleCompareFiles(w http.ResponseWriter, r *http.Request) {
	const op = "api.compare_files"
	if r.Method != http.MethodPost {
		fail(w, r, h.logger, NewKind(op, ErrMethodNotAllowed))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, r, h.logger, WrapKind(op, ErrPayloadTooLarge, err))
			return
		}
		fail(w, r, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	a, err := readPart(r, fileField1)
	if err != nil {
		fail(w, r, h.logger, fmt.Errorf("%s: %w", op, err))
		return
	}
	b, err := readPart(r, fileField2)
	if err != nil {
		fail(w, r, h.logger, fmt.Errorf("%s: %w", op, err))
		return
	}

	res, err := h.deps.CompareFiles(r.Context(), a, b)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// readPart returns the content of the named file part. It must be UTF-8.
func readPart(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, field)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrFileDecode, field, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFileDecode, field, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrFileDecode, field)
	}
	return data, nil
}
