package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind tells the pipeline how an input has to be turned into page images.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindImage       Kind = "image"
	KindOffice      Kind = "office"
	KindUnsupported Kind = "unsupported"
)

// Info contains detected file type information
type Info struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*Info, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	mimeType := mtype.String()
	extension := mtype.Extension()

	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", filePath).Msg("detected file type")

	// ZIP and OLE containers are office documents only when the extension says so.
	ext := strings.ToLower(filepath.Ext(filePath))
	switch {
	case mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip"):
		if m, ok := zipOffice[ext]; ok {
			mimeType, extension = m, ext
		}
	case mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb":
		if m, ok := oleOffice[ext]; ok {
			mimeType, extension = m, ext
		}
	}

	info := &Info{MIMEType: mimeType, Extension: extension}
	classify(info)
	return info, nil
}

var zipOffice = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
}

var oleOffice = map[string]string{
	".doc": "application/msword",
	".xls": "application/vnd.ms-excel",
	".ppt": "application/vnd.ms-powerpoint",
}

// rasterImages are the formats the image opener can decode.
var rasterImages = map[string]string{
	"image/png":  "PNG image",
	"image/jpeg": "JPEG image",
	"image/gif":  "GIF image",
	"image/tiff": "TIFF image",
	"image/bmp":  "BMP image",
	"image/webp": "WebP image",
}

func classify(info *Info) {
	mimeType := info.MIMEType

	if desc, ok := rasterImages[mimeType]; ok {
		info.Kind = KindImage
		info.Description = desc
		return
	}

	switch {
	case mimeType == "application/pdf":
		info.Kind = KindPDF
		info.Description = "PDF document"

	case strings.HasPrefix(mimeType, "application/vnd.openxmlformats-officedocument."),
		strings.HasPrefix(mimeType, "application/vnd.oasis.opendocument."),
		mimeType == "application/msword",
		mimeType == "application/vnd.ms-excel",
		mimeType == "application/vnd.ms-powerpoint",
		mimeType == "application/rtf":
		info.Kind = KindOffice
		info.Description = "Office document"

	default:
		info.Kind = KindUnsupported
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}
