package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Service
	FieldService = "service"

	// Search session
	FieldSessionID  = "session_id"
	FieldQuery      = "query"
	FieldCacheKey   = "cache_key"
	FieldGeneration = "generation"
	FieldBackend    = "backend"
)
