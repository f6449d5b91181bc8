package selector

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// File is a candidate video picked by the user
type File struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Path string `json:"-"`
}

// ValidationError reports why a file cannot be selected
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation failures
var (
	ErrUnsupportedFormat = &ValidationError{
		Code:    "ERR_UNSUPPORTED_FORMAT",
		Message: "Unsupported format. Please choose an MP4, MOV or AVI video.",
	}
	ErrFileTooLarge = &ValidationError{
		Code:    "ERR_FILE_TOO_LARGE",
		Message: "File too large. Maximum size is 100 MB.",
	}
)

var allowedTypes = []string{types.MimeMP4, types.MimeQuickTime, types.MimeAVI}

// Validate checks the file type and size. Type is checked first.
func Validate(f File) error {
	if !IsAllowedType(f.Type) {
		return ErrUnsupportedFormat
	}
	if f.Size > types.MaxUploadBytes {
		return ErrFileTooLarge
	}
	return nil
}

// IsAllowedType reports whether mimeType is an accepted video type
func IsAllowedType(mimeType string) bool {
	for _, t := range allowedTypes {
		if mimeType == t {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err came from Validate
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with binary units and one decimal
func FormatFileSize(n int64) string {
	size := float64(n)
	unit := 0
	for size >= 1024 && unit < len(sizeUnits)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", size, sizeUnits[unit])
}

// Describe returns the metadata line shown for a selected file
func Describe(f File) string {
	return fmt.Sprintf("%s • %s • %s", f.Name, f.Type, FormatFileSize(f.Size))
}

// FromPath builds a File from a file on disk, sniffing its content type
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to detect type of %s: %w", path, err)
	}

	return File{
		Name: filepath.Base(path),
		Type: BaseType(mtype.String()),
		Size: info.Size(),
		Path: path,
	}, nil
}

// Stage copies an incoming selection into dir under a unique name.
// The declared content type is kept when present, otherwise it is sniffed.
func Stage(r io.Reader, name, declaredType, dir string) (File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return File{}, fmt.Errorf("failed to create staging directory: %w", err)
	}

	path := filepath.Join(dir, uuid.New().String()+strings.ToLower(filepath.Ext(name)))
	out, err := os.Create(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to create staged file: %w", err)
	}

	size, err := io.Copy(out, r)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return File{}, fmt.Errorf("failed to write staged file: %w", err)
	}

	mimeType := BaseType(declaredType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			os.Remove(path)
			return File{}, fmt.Errorf("failed to detect type of %s: %w", name, err)
		}
		mimeType = BaseType(mtype.String())
	}

	return File{
		Name: filepath.Base(name),
		Type: mimeType,
		Size: size,
		Path: path,
	}, nil
}

// BaseType strips MIME parameters such as "; charset=..."
func BaseType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// Unstage removes a file written by Stage. Files outside dir are left alone.
func Unstage(f File, dir string) error {
	if f.Path == "" || filepath.Dir(f.Path) != filepath.Clean(dir) {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged file: %w", err)
	}
	return nil
}
