package storekit

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// Common MIME types
const (
	MIMETypeOctetStream     = "application/octet-stream"
	MIMETypeTextPlain       = "text/plain"
	MIMETypeApplicationJSON = "application/json"
	MIMETypeApplicationXML  = "application/xml"
)

// Extensions whose registered type differs between platforms, or is
// missing from minimal mime.types files.
var extensionToMIME = map[string]string{
	".txt":  MIMETypeTextPlain,
	".json": MIMETypeApplicationJSON,
	".xml":  MIMETypeApplicationXML,
	".js":   "text/javascript",
	".csv":  "text/csv",
	".md":   "text/markdown",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".toml": "application/toml",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".zip":  "application/zip",
	".log":  MIMETypeTextPlain,
}

// GuessContentType determines a content type from the extension of p,
// falling back to sniffing data and finally to application/octet-stream.
func GuessContentType(p string, data []byte) string {
	ext := strings.ToLower(path.Ext(p))
	if contentType, ok := extensionToMIME[ext]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); ext != "" && contentType != "" {
		return contentType
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return MIMETypeOctetStream
}
