package media

import (
	"path/filepath"
	"strings"

	"github.com/toboto/moltbot-wecom-channel/internal/models"
)

// WeCom temporary-media categories
const (
	TypeImage = "image"
	TypeVoice = "voice"
	TypeVideo = "video"
	TypeFile  = "file"
)

// Router provides centralized media type detection and validation
type Router interface {
	// GetMediaType returns the WeCom media category (image, voice, video, file) for a path or URL
	GetMediaType(path string) string
	// IsImageAttachment checks if the file is an image based on extension
	IsImageAttachment(path string) bool
	// IsVoiceAttachment checks if the file is a voice/audio file based on extension
	IsVoiceAttachment(path string) bool
	// IsVideoAttachment checks if the file is a video based on extension
	IsVideoAttachment(path string) bool
	// GetMaxSizeForMediaType returns the maximum allowed size in bytes for a media category
	GetMaxSizeForMediaType(mediaType string) int64
	// Filename derives an upload filename from a path or URL
	Filename(path string) string
}

type router struct {
	config models.MediaConfig
}

// NewRouter creates a new Router instance
func NewRouter(config models.MediaConfig) Router {
	return &router{
		config: config,
	}
}

func (r *router) GetMediaType(path string) string {
	switch {
	case r.IsImageAttachment(path):
		return TypeImage
	case r.IsVoiceAttachment(path):
		return TypeVoice
	case r.IsVideoAttachment(path):
		return TypeVideo
	default:
		return TypeFile // Everything else uploads as a generic file
	}
}

func (r *router) IsImageAttachment(path string) bool {
	return r.hasAllowedExtension(path, r.config.AllowedTypes.Image)
}

func (r *router) IsVoiceAttachment(path string) bool {
	return r.hasAllowedExtension(path, r.config.AllowedTypes.Voice)
}

func (r *router) IsVideoAttachment(path string) bool {
	return r.hasAllowedExtension(path, r.config.AllowedTypes.Video)
}

func (r *router) GetMaxSizeForMediaType(mediaType string) int64 {
	const bytesPerMB = 1024 * 1024
	switch mediaType {
	case TypeImage:
		return int64(r.config.MaxSizeMB.Image) * bytesPerMB
	case TypeVoice:
		return int64(r.config.MaxSizeMB.Voice) * bytesPerMB
	case TypeVideo:
		return int64(r.config.MaxSizeMB.Video) * bytesPerMB
	default:
		return int64(r.config.MaxSizeMB.File) * bytesPerMB
	}
}

func (r *router) Filename(path string) string {
	name := path
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = "file" + filepath.Ext(path)
	}
	return name
}

func (r *router) hasAllowedExtension(path string, allowedTypes []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(r.Filename(path)), "."))
	if ext == "" {
		return false
	}

	for _, allowed := range allowedTypes {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
