package video

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/petrijr/durable/pkg/api"
)

// DefaultBitRates are the renditions produced when none are configured.
var DefaultBitRates = []int{1000, 2000, 3000, 4000}

// Activities implements the side-effecting steps of the pipeline. The
// transcoding work is simulated; each step takes Delay.
type Activities struct {
	// Delay simulates the time each step takes.
	Delay time.Duration

	// TranscodeDelay, when set, overrides Delay for a transcode at the
	// given bit rate.
	TranscodeDelay func(bitRate int) time.Duration

	BitRates      []int
	IntroLocation string
	Logger        *slog.Logger

	// OnApprovalRequested is called after an approval request was recorded.
	OnApprovalRequested func(ApprovalInfo)

	// Now stamps approval records. Defaults to time.Now.
	Now func() time.Time

	mu        sync.Mutex
	calls     map[string]int
	approvals map[string]Approval
}

func (a *Activities) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *Activities) record(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = make(map[string]int)
	}
	a.calls[name]++
}

// Calls returns how many times the named activity ran.
func (a *Activities) Calls(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

// PendingApprovals returns the approval requests that were sent, oldest
// first.
func (a *Activities) PendingApprovals() []Approval {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Approval, 0, len(a.approvals))
	for _, ap := range a.approvals {
		out = append(out, ap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// ResolveApproval removes the approval record of an instance.
func (a *Activities) ResolveApproval(orchestrationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.approvals, orchestrationID)
}

func (a *Activities) simulate(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetTranscodeBitRates returns the bit rates a video is transcoded to.
func (a *Activities) GetTranscodeBitRates(ctx context.Context, location string) ([]int, error) {
	a.record(GetTranscodeBitRatesActivity)
	if len(a.BitRates) > 0 {
		return append([]int(nil), a.BitRates...), nil
	}
	return append([]int(nil), DefaultBitRates...), nil
}

// TranscodeVideo produces the rendition of the input at its bit rate.
func (a *Activities) TranscodeVideo(ctx context.Context, in VideoFileInfo) (VideoFileInfo, error) {
	a.record(TranscodeVideoActivity)
	a.logger().InfoContext(ctx, "transcoding video",
		slog.String("location", in.Location),
		slog.Int("bit_rate", in.BitRate),
	)

	d := a.Delay
	if a.TranscodeDelay != nil {
		d = a.TranscodeDelay(in.BitRate)
	}
	if err := a.simulate(ctx, d); err != nil {
		return VideoFileInfo{}, api.NewTransientError("transcode interrupted: %v", err)
	}

	base := strings.TrimSuffix(path.Base(in.Location), path.Ext(in.Location))
	return VideoFileInfo{
		Location: fmt.Sprintf("%s-%dkbps.mp4", base, in.BitRate),
		BitRate:  in.BitRate,
	}, nil
}

// ExtractThumbnail renders a thumbnail of the video. Locations containing
// "error" fail with a transient error, which exercises retries and cleanup.
func (a *Activities) ExtractThumbnail(ctx context.Context, location string) (string, error) {
	a.record(ExtractThumbnailActivity)
	a.logger().InfoContext(ctx, "extracting thumbnail", slog.String("location", location))

	if strings.Contains(location, "error") {
		return "", api.NewTransientError("thumbnail extraction failed for %s", location)
	}
	if err := a.simulate(ctx, a.Delay); err != nil {
		return "", api.NewTransientError("thumbnail interrupted: %v", err)
	}
	return "thumbnail.png", nil
}

// PrependIntro prepends the configured intro clip to the video.
func (a *Activities) PrependIntro(ctx context.Context, location string) (string, error) {
	a.record(PrependIntroActivity)
	a.logger().InfoContext(ctx, "prepending intro",
		slog.String("location", location),
		slog.String("intro", a.IntroLocation),
	)

	if err := a.simulate(ctx, a.Delay); err != nil {
		return "", api.NewTransientError("intro interrupted: %v", err)
	}
	return "withIntro.mp4", nil
}

// Cleanup deletes the intermediate files of a failed run.
func (a *Activities) Cleanup(ctx context.Context, locations []string) error {
	a.record(CleanupActivity)
	a.logger().InfoContext(ctx, "cleaning up", slog.Any("locations", locations))
	return a.simulate(ctx, a.Delay)
}

// SendApprovalRequestEmail records the approval request and notifies the
// reviewers.
func (a *Activities) SendApprovalRequestEmail(ctx context.Context, info ApprovalInfo) error {
	a.record(SendApprovalRequestEmailActivity)
	a.logger().InfoContext(ctx, "requesting approval",
		slog.String("instance_id", info.OrchestrationID),
		slog.String("location", info.VideoLocation),
	)

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	a.mu.Lock()
	if a.approvals == nil {
		a.approvals = make(map[string]Approval)
	}
	a.approvals[info.OrchestrationID] = Approval{
		OrchestrationID: info.OrchestrationID,
		VideoLocation:   info.VideoLocation,
		RequestedAt:     now(),
	}
	a.mu.Unlock()

	if err := a.simulate(ctx, a.Delay); err != nil {
		return err
	}
	if a.OnApprovalRequested != nil {
		a.OnApprovalRequested(info)
	}
	return nil
}

// closeApproval drops the approval record of the instance the activity
// runs for. Publish and reject only run once the decision is final.
func (a *Activities) closeApproval(ctx context.Context) {
	if info, ok := api.ActivityInfoFromContext(ctx); ok {
		a.ResolveApproval(info.InstanceID)
	}
}

// PublishVideo makes the video public.
func (a *Activities) PublishVideo(ctx context.Context, location string) error {
	a.record(PublishVideoActivity)
	a.closeApproval(ctx)
	a.logger().InfoContext(ctx, "publishing video", slog.String("location", location))
	return a.simulate(ctx, a.Delay)
}

// RejectVideo archives a video that was not approved.
func (a *Activities) RejectVideo(ctx context.Context, location string) error {
	a.record(RejectVideoActivity)
	a.closeApproval(ctx)
	a.logger().InfoContext(ctx, "rejecting video", slog.String("location", location))
	return a.simulate(ctx, a.Delay)
}

// PeriodicWork is the body of the periodic task.
func (a *Activities) PeriodicWork(ctx context.Context, iteration int) (string, error) {
	a.record(PeriodicWorkActivity)
	info, _ := api.ActivityInfoFromContext(ctx)
	a.logger().InfoContext(ctx, "periodic work",
		slog.String("instance_id", info.InstanceID),
		slog.Int("iteration", iteration),
	)
	if err := a.simulate(ctx, a.Delay); err != nil {
		return "", err
	}
	return fmt.Sprintf("iteration %d done", iteration), nil
}
