package draft

import (
	"path"
	"strings"
)

// DefaultMIMEType is used when the extension is unknown or missing.
const DefaultMIMEType = "application/octet-stream"

var mimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"mkv":  "video/x-matroska",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"zip":  "application/zip",
}

// InferMIMEType maps a file name to a MIME type by its extension.
func InferMIMEType(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	return DefaultMIMEType
}
