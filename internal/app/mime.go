package app

import (
	"log"
	"mime"
)

// Slim container images ship without a mime.types database; upload type
// detection relies on these.
func init() {
	ensureMimeType(".pdf", "application/pdf")
	ensureMimeType(".png", "image/png")
	ensureMimeType(".jpg", "image/jpeg")
	ensureMimeType(".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ensureMimeType(".csv", "text/csv; charset=utf-8")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
