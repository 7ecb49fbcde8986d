package model

// ReasonCode is the operator-visible cause attached to a Failed or Rejected lead.
type ReasonCode string

const (
	ReasonNone              ReasonCode = ""
	ReasonBelowThreshold    ReasonCode = "below_threshold"
	ReasonOperatorRejected  ReasonCode = "operator_rejected"
	ReasonFetchFailed       ReasonCode = "fetch_failed"
	ReasonOracleUnavailable ReasonCode = "oracle_unavailable"
	ReasonMalformedOutput   ReasonCode = "malformed_output"
	ReasonAuthFailed        ReasonCode = "auth_failed"
	ReasonInvalidConfig     ReasonCode = "invalid_config"
	ReasonDraftFailed       ReasonCode = "draft_failed"
	ReasonNoRecipient       ReasonCode = "no_recipient"
	ReasonSendFailed        ReasonCode = "send_failed"
	ReasonQuotaExhausted    ReasonCode = "quota_exhausted"
	ReasonApprovalTimeout   ReasonCode = "approval_timeout"
	ReasonCancelled         ReasonCode = "cancelled"
	ReasonInternal          ReasonCode = "internal"
)

// Failure describes why a lead reached Failed.
type Failure struct {
	Reason    ReasonCode `json:"reason"`
	Retryable bool       `json:"retryable"`
	Stage     State      `json:"stage"`
	Detail    string     `json:"detail,omitempty"`
}
