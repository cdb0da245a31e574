package video

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petrijr/durable/pkg/api"
)

// DefaultApprovalTimeout bounds the wait for a reviewer.
const DefaultApprovalTimeout = 24 * time.Hour

// DefaultThumbnailRetry retries transient thumbnail failures twice.
var DefaultThumbnailRetry = api.RetryOptions{
	FirstRetryInterval:  time.Second,
	MaxNumberOfAttempts: 3,
	Backoff:             api.BackoffExponential,
	MaxRetryInterval:    10 * time.Second,
	Handle:              api.HandleKinds(api.ErrorKindTransient),
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Orchestrators holds the pipeline settings shared by every run.
type Orchestrators struct {
	ApprovalTimeout time.Duration
	ThumbnailRetry  *api.RetryOptions
	Logger          *slog.Logger
}

func (o *Orchestrators) approvalTimeout() time.Duration {
	if o.ApprovalTimeout <= 0 {
		return DefaultApprovalTimeout
	}
	return o.ApprovalTimeout
}

// log returns the logger for the current point of ctx. Replay state
// changes as the orchestrator advances, so it is resolved per message.
func (o *Orchestrators) log(ctx api.OrchestrationContext) *slog.Logger {
	return api.ReplaySafeLogger(o.Logger, ctx.IsReplaying()).With(
		slog.String("instance_id", ctx.InstanceID()),
	)
}

func (o *Orchestrators) thumbnailRetry() api.RetryOptions {
	if o.ThumbnailRetry == nil {
		return DefaultThumbnailRetry
	}
	return *o.ThumbnailRetry
}

// ProcessVideo transcodes the uploaded video, decorates it and waits for a
// reviewer to approve it. Failures in the processing steps are cleaned up
// and reported in the returned Outcome instead of failing the instance.
func (o *Orchestrators) ProcessVideo(ctx api.OrchestrationContext, location string) (Outcome, error) {
	var res Result
	if err := o.process(ctx, location, &res); err != nil {
		o.log(ctx).Warn("video processing failed", slog.String("location", location), slog.Any("error", err))

		files := []string{res.Transcoded, res.Thumbnail, res.WithIntro}
		if cerr := ctx.CallActivity(CleanupActivity, files).Await(nil); cerr != nil {
			o.log(ctx).Error("cleanup failed", slog.Any("error", cerr))
		}
		return Outcome{ErrorResult: ErrorResult{
			Error:   "Failed to process uploaded video",
			Message: err.Error(),
		}}, nil
	}

	if err := ctx.CallActivity(SendApprovalRequestEmailActivity, ApprovalInfo{
		OrchestrationID: ctx.InstanceID(),
		VideoLocation:   res.WithIntro,
	}).Await(nil); err != nil {
		return Outcome{}, err
	}

	decision, err := o.awaitApproval(ctx)
	if err != nil {
		return Outcome{}, err
	}
	res.ApprovalResult = decision
	o.log(ctx).Info("approval decided", slog.String("decision", decision))

	next := RejectVideoActivity
	if decision == Approved {
		next = PublishVideoActivity
	}
	if err := ctx.CallActivity(next, res.WithIntro).Await(nil); err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: res}, nil
}

func (o *Orchestrators) process(ctx api.OrchestrationContext, location string, res *Result) error {
	var transcoded VideoFileInfo
	if err := ctx.CallSubOrchestrator(TranscodeVideoOrchestrator, location).Await(&transcoded); err != nil {
		return err
	}
	res.Transcoded = transcoded.Location

	if err := ctx.CallActivity(ExtractThumbnailActivity, res.Transcoded,
		api.WithRetry(o.thumbnailRetry()),
	).Await(&res.Thumbnail); err != nil {
		return err
	}

	return ctx.CallActivity(PrependIntroActivity, res.Transcoded).Await(&res.WithIntro)
}

// awaitApproval races the approval event against the approval timeout and
// cancels whichever lost.
func (o *Orchestrators) awaitApproval(ctx api.OrchestrationContext) (string, error) {
	approval := ctx.WaitForExternalEvent(ApprovalEvent)
	timeout := ctx.CreateTimer(o.approvalTimeout())

	winner, err := ctx.WhenAny(approval, timeout)
	if err != nil {
		return "", err
	}
	if winner != approval {
		approval.Cancel()
		return TimedOut, nil
	}
	timeout.Cancel()

	var decision string
	if err := approval.Await(&decision); err != nil {
		return "", err
	}
	return decision, nil
}

// TranscodeVideo fans out one transcode per bit rate and keeps the
// rendition with the highest bit rate.
func (o *Orchestrators) TranscodeVideo(ctx api.OrchestrationContext, location string) (VideoFileInfo, error) {
	var bitRates []int
	if err := ctx.CallActivity(GetTranscodeBitRatesActivity, location).Await(&bitRates); err != nil {
		return VideoFileInfo{}, err
	}
	if len(bitRates) == 0 {
		return VideoFileInfo{}, errors.New("no bit rates to transcode to")
	}

	tasks := make([]api.Task, len(bitRates))
	for i, br := range bitRates {
		tasks[i] = ctx.CallActivity(TranscodeVideoActivity, VideoFileInfo{Location: location, BitRate: br})
	}
	if err := ctx.WhenAll(tasks...); err != nil {
		return VideoFileInfo{}, err
	}

	var best VideoFileInfo
	for _, t := range tasks {
		var info VideoFileInfo
		if err := t.Await(&info); err != nil {
			return VideoFileInfo{}, err
		}
		if info.BitRate > best.BitRate {
			best = info
		}
	}
	return best, nil
}

// PeriodicTask runs PeriodicWork once per generation, sleeps on a durable
// timer until the next scheduled time and continues as new.
func (o *Orchestrators) PeriodicTask(ctx api.OrchestrationContext, in PeriodicInput) (string, error) {
	var msg string
	if err := ctx.CallActivity(PeriodicWorkActivity, in.Iteration).Await(&msg); err != nil {
		return "", err
	}
	if in.MaxIterations > 0 && in.Iteration+1 >= in.MaxIterations {
		o.log(ctx).Info("periodic task finished", slog.Int("iterations", in.Iteration+1))
		return msg, nil
	}

	now := ctx.CurrentTime()
	next, err := NextRun(in, now)
	if err != nil {
		return "", err
	}
	if err := ctx.CreateTimer(next.Sub(now)).Await(nil); err != nil {
		return "", err
	}

	in.Iteration++
	ctx.ContinueAsNew(in)
	return msg, nil
}

// NextRun returns the first scheduled time after now.
func NextRun(in PeriodicInput, now time.Time) (time.Time, error) {
	if in.Schedule == "" {
		if in.Interval <= 0 {
			return time.Time{}, errors.New("periodic task needs a schedule or a positive interval")
		}
		return now.Add(in.Interval), nil
	}

	sched, err := cronParser.Parse(in.Schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", in.Schedule, err)
	}
	next := sched.Next(now)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule %q never fires", in.Schedule)
	}
	return next, nil
}

// Register adds the pipeline's orchestrators and activities to eng.
func Register(eng api.Engine, acts *Activities, orch *Orchestrators) error {
	if acts == nil {
		acts = &Activities{}
	}
	if orch == nil {
		orch = &Orchestrators{}
	}

	orchestrators := map[string]api.Orchestrator{
		ProcessVideoOrchestrator:   api.OrchestratorFunc(orch.ProcessVideo),
		TranscodeVideoOrchestrator: api.OrchestratorFunc(orch.TranscodeVideo),
		PeriodicTaskOrchestrator:   api.OrchestratorFunc(orch.PeriodicTask),
	}
	activities := map[string]api.Activity{
		GetTranscodeBitRatesActivity:     api.ActivityFunc(acts.GetTranscodeBitRates),
		TranscodeVideoActivity:           api.ActivityFunc(acts.TranscodeVideo),
		ExtractThumbnailActivity:         api.ActivityFunc(acts.ExtractThumbnail),
		PrependIntroActivity:             api.ActivityFunc(acts.PrependIntro),
		CleanupActivity:                  api.ActionFunc(acts.Cleanup),
		SendApprovalRequestEmailActivity: api.ActionFunc(acts.SendApprovalRequestEmail),
		PublishVideoActivity:             api.ActionFunc(acts.PublishVideo),
		RejectVideoActivity:              api.ActionFunc(acts.RejectVideo),
		PeriodicWorkActivity:             api.ActivityFunc(acts.PeriodicWork),
	}

	for name, fn := range orchestrators {
		if err := eng.RegisterOrchestrator(name, fn); err != nil {
			return fmt.Errorf("register orchestrator %s: %w", name, err)
		}
	}
	for name, fn := range activities {
		if err := eng.RegisterActivity(name, fn); err != nil {
			return fmt.Errorf("register activity %s: %w", name, err)
		}
	}
	return nil
}
