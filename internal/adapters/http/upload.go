package httpadapter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

const uploadFieldName = "image"

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
}

var allowedImageContentTypes = map[string]bool{
	"image/jpeg":     true,
	"image/png":      true,
	"image/webp":     true,
	"image/bmp":      true,
	"image/x-ms-bmp": true,
	// browsers send this for files they do not recognize; the magic
	// number check below still applies.
	"application/octet-stream": true,
}

var (
	pngSignature  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	jpegSignature = []byte{0xFF, 0xD8, 0xFF}
)

// readImageUpload extracts and validates the multipart image field.
// Every rejection is an ErrInvalidInput so it maps to 400.
func readImageUpload(r *http.Request, maxBytes int64) (domain.ImageUpload, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ImageUpload{}, invalidUpload(fmt.Errorf("image exceeds %d bytes", tooLarge.Limit))
		}
		return domain.ImageUpload{}, invalidUpload(fmt.Errorf("parse multipart form: %w", err))
	}

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		return domain.ImageUpload{}, invalidUpload(errors.New("multipart field 'image' is required"))
	}
	defer file.Close()

	if err := validateUploadFilename(header.Filename); err != nil {
		return domain.ImageUpload{}, invalidUpload(err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !allowedImageContentTypes[strings.ToLower(contentType)] {
		return domain.ImageUpload{}, invalidUpload(fmt.Errorf("unsupported content type %q", contentType))
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.ImageUpload{}, invalidUpload(fmt.Errorf("read upload: %w", err))
	}
	if len(data) == 0 {
		return domain.ImageUpload{}, invalidUpload(errors.New("empty image upload"))
	}
	if !looksLikeImage(data) {
		return domain.ImageUpload{}, invalidUpload(errors.New("file content is not a supported image"))
	}

	return domain.ImageUpload{
		Filename:    filepath.Base(header.Filename),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func validateUploadFilename(name string) error {
	if name == "" {
		return errors.New("filename is required")
	}
	if strings.ContainsRune(name, 0) {
		return errors.New("filename contains a null byte")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return errors.New("filename must not contain path separators")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedImageExtensions[ext] {
		return fmt.Errorf("unsupported file extension %q", ext)
	}
	return nil
}

// looksLikeImage checks the magic numbers of the supported formats.
func looksLikeImage(data []byte) bool {
	switch {
	case bytes.HasPrefix(data, jpegSignature):
		return true
	case bytes.HasPrefix(data, pngSignature):
		return true
	case bytes.HasPrefix(data, []byte("BM")):
		return true
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return true
	default:
		return false
	}
}

func invalidUpload(err error) error {
	return domain.WrapError(domain.ErrInvalidInput, "image upload", err)
}
