package metrics

// Event names.
const (
	EventSessionStart   = "session_start"
	EventSessionEnd     = "session_end"
	EventCredentialMiss = "credential_missing"

	EventTurnFinal       = "turn_final"
	EventTurnRouted      = "turn_routed"
	EventReplyFirstChunk = "reply_first_chunk"
	EventReplyComplete   = "reply_complete"
	EventTTSFirstAudio   = "tts_first_audio"
	EventTTSChunk        = "tts_chunk"
	EventTTSComplete     = "tts_complete"
	EventTurnDone        = "turn_done"

	EventUpstreamError = "upstream_error"
	EventRateLimit     = "rate_limit"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"
)

// Tag keys.
const (
	TagSessionID = "session_id"
	TagRoute     = "route"
	TagOutcome   = "outcome"
	TagReason    = "reason"
	TagProvider  = "provider"
	TagComponent = "component"
)
