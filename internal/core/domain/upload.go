package domain

// ImageUpload is a validated artwork image as received from the client.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}
