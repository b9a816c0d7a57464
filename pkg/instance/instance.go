package instance

import "os"

// EnvWorkerID overrides the identity a worker replica reports in logs.
const EnvWorkerID = "STOREFRONT_WORKER_ID"

// GetID returns the configured worker id, then the hostname, then a fixed fallback.
func GetID() string {
	if id := os.Getenv(EnvWorkerID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
