package config

var (
	AppVersion             = "v1.2.0"
	AppPort                = "3900"
	AppDebug               = false
	AppBasePath            = ""
	AppBasicAuthCredential []string

	// Valkey backing store. When unreachable at startup the service falls
	// back to the in-memory store (data is lost on restart).
	ValkeyAddress   = "localhost:6379"
	ValkeyPassword  = ""
	ValkeyDB        = 0
	ValkeyKeyPrefix = "bsi"

	// Deferred worker pool (background revalidations and hit persists).
	DeferredWorkers   = 4
	DeferredQueueSize = 256

	// ServerID identifies this instance in stats and default provenance labels.
	ServerID = ""
)
