package upload

import (
	"fmt"

	"github.com/nguyentantai21042004/meeting-recorder/internal/config"
)

// ParseBackend resolves the configured backend name.
func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case "", BackendNone:
		return BackendNone, nil
	case BackendLocal, BackendS3:
		return Backend(name), nil
	default:
		return "", fmt.Errorf("unknown upload backend %q", name)
	}
}

// NewFactory returns the Factory for the configured backend, or nil when
// uploads are disabled.
func NewFactory(cfg config.UploadConfig) (Factory, error) {
	backend, err := ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendS3:
		return NewS3Factory(S3Options{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		}), nil
	case BackendLocal:
		return NewLocalFactory(cfg.LocalDir), nil
	default:
		return nil, nil
	}
}

// CacheOptionsFrom maps upload config onto cache options.
func CacheOptionsFrom(cfg config.UploadConfig, onEvent func(string)) CacheOptions {
	return CacheOptions{
		RefreshInterval: cfg.RefreshInterval,
		ErrorThreshold:  cfg.ErrorThreshold,
		QuotaCooldown:   cfg.QuotaCooldown,
		OnEvent:         onEvent,
	}
}
