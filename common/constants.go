package common

const (
	// AppName is the name of the application
	AppName = "empathy-crawler-service"

	// BatchContentType is the MIME type of mirrored batch archives
	BatchContentType = "application/gzip"
)
