package filetype

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/document"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        document.Kind
	Supported   bool
	Description string
}

// DjVu files start with "AT&TFORM"; some writers omit the "AT&T" prefix.
var djvuMagic = []byte("AT&TFORM")

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	mimeType := mtype.String()
	extension := mtype.Extension()
	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", filePath).Msg("detected file type")

	// Generic binary with a DjVu extension: check the IFF header ourselves
	if mtype.Is("application/octet-stream") {
		ext := strings.ToLower(filepath.Ext(filePath))
		if (ext == ".djvu" || ext == ".djv") && hasPrefix(filePath, djvuMagic) {
			log.Debug().Str("original", mimeType).Str("override", "image/vnd.djvu").Msg("overriding detection based on IFF header")
			mimeType, extension = "image/vnd.djvu", ".djvu"
		}
	}

	info := &FileTypeInfo{
		MIMEType:  mimeType,
		Extension: extension,
	}
	d.classify(info)
	return info, nil
}

// Kind implements document.Detector.
func (d *Detector) Kind(filePath string) (document.Kind, error) {
	info, err := d.Detect(filePath)
	if err != nil {
		return document.KindUnknown, err
	}
	if !info.Supported {
		return document.KindUnknown, fmt.Errorf("%s: %s: %w", filepath.Base(filePath), info.Description, document.ErrUnsupportedFormat)
	}
	return info.Kind, nil
}

// classify maps a MIME type onto a document kind
func (d *Detector) classify(info *FileTypeInfo) {
	switch info.MIMEType {
	case "application/pdf":
		info.Kind = document.KindPDF
		info.Supported = true
		info.Description = "PDF document"

	case "image/vnd.djvu":
		info.Kind = document.KindDjVu
		info.Supported = true
		info.Description = "DjVu document"

	default:
		info.Kind = document.KindUnknown
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

func hasPrefix(path string, magic []byte) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, len(magic))
	if _, err := f.Read(buf); err != nil {
		return false
	}
	return bytes.Equal(buf, magic)
}
