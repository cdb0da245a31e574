// Package video is a video publishing pipeline built on the durable engine:
// transcode at several bit rates, extract a thumbnail, prepend an intro,
// then wait for a human approval before publishing or rejecting.
//
// It also carries a cron-driven periodic task that reschedules itself with
// ContinueAsNew.
package video

import "time"

// Orchestrator names.
const (
	ProcessVideoOrchestrator   = "O_ProcessVideo"
	TranscodeVideoOrchestrator = "O_TranscodeVideo"
	PeriodicTaskOrchestrator   = "O_PeriodicTask"
)

// Activity names.
const (
	TranscodeVideoActivity           = "A_TranscodeVideo"
	ExtractThumbnailActivity         = "A_ExtractThumbnail"
	PrependIntroActivity             = "A_PrependIntro"
	CleanupActivity                  = "A_Cleanup"
	SendApprovalRequestEmailActivity = "A_SendApprovalRequestEmail"
	PublishVideoActivity             = "A_PublishVideo"
	RejectVideoActivity              = "A_RejectVideo"
	GetTranscodeBitRatesActivity     = "A_GetTranscodeBitRates"
	PeriodicWorkActivity             = "A_PeriodicWork"
)

// ApprovalEvent is the external event carrying the reviewer's decision.
const ApprovalEvent = "ApprovalResult"

// Approval decisions. TimedOut is recorded when nobody answered in time.
const (
	Approved = "Approved"
	Rejected = "Rejected"
	TimedOut = "Timed out"
)

// VideoFileInfo describes one rendition of a video.
type VideoFileInfo struct {
	Location string `json:"location"`
	BitRate  int    `json:"bitRate"`
}

// ApprovalInfo is sent to reviewers so they can answer the right instance.
type ApprovalInfo struct {
	OrchestrationID string `json:"orchestrationId"`
	VideoLocation   string `json:"videoLocation"`
}

// Approval is the record a reviewer front end keeps for a pending request.
type Approval struct {
	OrchestrationID string    `json:"orchestrationId"`
	VideoLocation   string    `json:"videoLocation"`
	RequestedAt     time.Time `json:"requestedAt"`
}

// Result is the output of a successful O_ProcessVideo run.
type Result struct {
	Transcoded     string `json:"transcoded,omitempty"`
	Thumbnail      string `json:"thumbnail,omitempty"`
	WithIntro      string `json:"withIntro,omitempty"`
	ApprovalResult string `json:"approvalResult,omitempty"`
}

// ErrorResult is the output of an O_ProcessVideo run that failed and was
// cleaned up.
type ErrorResult struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Outcome is the output of O_ProcessVideo. Exactly one of the embedded
// results is populated.
type Outcome struct {
	Result
	ErrorResult
}

// Failed reports whether the run ended in the cleanup path.
func (o Outcome) Failed() bool {
	return o.Error != ""
}

// PeriodicInput is the state O_PeriodicTask carries across generations.
type PeriodicInput struct {
	// Schedule is a cron expression ("*/5 * * * *", "@hourly"). When empty
	// Interval is used instead.
	Schedule string        `json:"schedule,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`

	Iteration int `json:"iteration"`

	// MaxIterations stops the loop after that many runs. Zero means run
	// forever.
	MaxIterations int `json:"maxIterations,omitempty"`
}
