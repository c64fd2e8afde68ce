package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonCredentialMissing ReasonCode = "credential_missing"

	ReasonSTTConnect  ReasonCode = "stt_connect"
	ReasonSTTSend     ReasonCode = "stt_send"
	ReasonSTTProtocol ReasonCode = "stt_protocol"

	ReasonTTSConnect ReasonCode = "tts_connect"
	ReasonTTSSend    ReasonCode = "tts_send"
	ReasonTTSRecv    ReasonCode = "tts_recv"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMStream    ReasonCode = "llm_stream"
	ReasonLLMRateLimit ReasonCode = "llm_rate_limit"

	ReasonLookup    ReasonCode = "lookup"
	ReasonSkillEval ReasonCode = "skill_eval"

	ReasonTransportSend ReasonCode = "transport_send"
)
