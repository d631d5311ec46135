package constants

import "strings"

// Format is the coarse input classification used by the pipeline.
type Format string

const (
	IMAGE Format = "IMAGE"
	PDF   Format = "PDF"
)

// MediaTypes maps the media types we accept to their format class.
// HEIC/HEIF are listed because phone uploads commonly arrive as them.
var MediaTypes = map[string]Format{
	"image/jpeg":      IMAGE,
	"image/jpg":       IMAGE,
	"image/png":       IMAGE,
	"image/gif":       IMAGE,
	"image/heic":      IMAGE,
	"image/heif":      IMAGE,
	"application/pdf": PDF,
}

// AllowedExtensions holds the default allowed file extensions for receipt uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"heic": {},
	"heif": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapMediaType classifies a declared media type, tolerating parameters
// such as "image/jpeg; charset=binary". Returns "" when unsupported.
func MapMediaType(mediaType string) Format {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return MediaTypes[mt]
}

// MapExtToFormat classifies a filename extension. Returns "" when unsupported.
func MapExtToFormat(ext string) Format {
	switch NormalizeExt(ext) {
	case "jpg", "jpeg", "png", "gif", "heic", "heif":
		return IMAGE
	case "pdf":
		return PDF
	}
	return ""
}
