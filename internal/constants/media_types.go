package constants

// Default allowed file extensions per WeCom temporary-media category
var (
	DefaultImageTypes = []string{"jpg", "jpeg", "png", "gif", "bmp", "webp"}
	DefaultVoiceTypes = []string{"mp3", "wav", "amr", "ogg", "m4a"}
	DefaultVideoTypes = []string{"mp4", "avi", "mov", "wmv", "flv", "mkv"}
)

// MimeTypes maps file extensions to their corresponding MIME types
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",

	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".amr": "audio/amr",
	".ogg": "audio/ogg",
	".m4a": "audio/mp4",

	".mp4": "video/mp4",
	".avi": "video/x-msvideo",
	".mov": "video/quicktime",
	".mkv": "video/x-matroska",

	".pdf": "application/pdf",
	".txt": "text/plain",
}

// DefaultMimeType is the fallback MIME type for unknown file extensions
const DefaultMimeType = "application/octet-stream"
