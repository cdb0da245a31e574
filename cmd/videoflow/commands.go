package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/durable"
	"github.com/petrijr/durable/sample/video"
)

// DemoCmd processes one video in-process, optionally answering the approval
// request itself.
type DemoCmd struct {
	Location        string        `default:"uploads/movie.mov" help:"Location of the uploaded video."`
	Decision        string        `enum:",Approved,Rejected" default:"Approved" help:"Answer to send to the approval request. Empty lets it time out."`
	ApproveAfter    time.Duration `default:"100ms" help:"How long the simulated reviewer takes."`
	ApprovalTimeout time.Duration `default:"5s" help:"How long to wait for a reviewer."`
	Delay           time.Duration `default:"20ms" help:"Simulated duration of each activity."`
}

func (c *DemoCmd) Run(a *app) error {
	acts := &video.Activities{Delay: c.Delay}
	p, err := a.open(acts, &video.Orchestrators{ApprovalTimeout: c.ApprovalTimeout})
	if err != nil {
		return err
	}
	defer p.Close()

	if c.Decision != "" {
		acts.OnApprovalRequested = func(info video.ApprovalInfo) {
			time.AfterFunc(c.ApproveAfter, func() {
				if err := p.Engine.RaiseEvent(a.ctx, info.OrchestrationID, video.ApprovalEvent, c.Decision); err != nil {
					p.Logger.Error("send approval", slog.Any("error", err))
				}
			})
		}
	}

	stop := p.runInBackground(a.ctx)
	defer stop()

	st, err := durable.RunToCompletion(a.ctx, p.Engine, video.ProcessVideoOrchestrator, c.Location)
	if err != nil {
		return err
	}
	if st.Status != durable.StatusCompleted {
		return fmt.Errorf("instance %s ended %s: %v", st.InstanceID, st.Status, st.Failure)
	}
	out, err := durable.Output[video.Outcome](st)
	if err != nil {
		return err
	}
	return writeJSON(a, out)
}

// ServeCmd hosts the pipeline until interrupted.
type ServeCmd struct {
	ApprovalTimeout time.Duration `default:"24h" help:"How long to wait for a reviewer."`
	Delay           time.Duration `help:"Simulated duration of each activity."`
	HTTP            string        `name:"http" placeholder:"ADDR" help:"Also serve the review API on this address."`
}

func (c *ServeCmd) Run(a *app) error {
	acts := &video.Activities{Delay: c.Delay}
	p, err := a.open(acts, &video.Orchestrators{ApprovalTimeout: c.ApprovalTimeout})
	if err != nil {
		return err
	}
	defer p.Close()

	n, err := p.Engine.RecoverInstances(a.ctx)
	if err != nil {
		return fmt.Errorf("recover instances: %w", err)
	}
	p.Logger.Info("serving", slog.String("backend", p.Config.Backend), slog.Int("recovered", n))

	g, ctx := errgroup.WithContext(a.ctx)
	g.Go(func() error {
		if err := p.Engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if c.HTTP != "" {
		review := &reviewAPI{engine: p.Engine, acts: acts, logger: p.Logger}
		g.Go(func() error {
			return listen(ctx, c.HTTP, review.routes(), p.Logger)
		})
	}
	return g.Wait()
}

// StartCmd starts an instance and prints its ID.
type StartCmd struct {
	Location string `arg:"" optional:"" help:"Location of the uploaded video."`
	ID       string `help:"Instance ID to use instead of a generated one."`

	Periodic      bool          `help:"Start the periodic task instead of the video pipeline."`
	Schedule      string        `help:"Cron schedule of the periodic task."`
	Interval      time.Duration `help:"Interval of the periodic task when no schedule is given."`
	MaxIterations int           `help:"Stop the periodic task after this many runs."`
}

func (c *StartCmd) Validate() error {
	if c.Periodic {
		if c.Schedule == "" && c.Interval <= 0 {
			return errors.New("--periodic needs --schedule or --interval")
		}
		return nil
	}
	if c.Location == "" {
		return errors.New("a video location is required")
	}
	return nil
}

func (c *StartCmd) Run(a *app) error {
	p, err := a.open(nil, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	name, input := video.ProcessVideoOrchestrator, any(c.Location)
	if c.Periodic {
		name = video.PeriodicTaskOrchestrator
		input = video.PeriodicInput{Schedule: c.Schedule, Interval: c.Interval, MaxIterations: c.MaxIterations}
	}

	var opts []durable.StartOption
	if c.ID != "" {
		opts = append(opts, durable.WithInstanceID(c.ID))
	}
	id, err := p.Engine.StartOrchestration(a.ctx, name, input, opts...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, id)
	return err
}

// ApproveCmd answers an approval request.
type ApproveCmd struct {
	ID       string `arg:"" help:"Instance waiting for approval."`
	Decision string `arg:"" optional:"" enum:"Approved,Rejected" default:"Approved" help:"Approved or Rejected."`
}

func (c *ApproveCmd) Run(a *app) error {
	p, err := a.open(nil, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := durable.RaiseEvent(a.ctx, p.Engine, c.ID, video.ApprovalEvent, c.Decision); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s: %s\n", c.ID, c.Decision)
	return err
}

// StatusCmd prints the state of an instance.
type StatusCmd struct {
	ID   string `arg:"" help:"Instance ID."`
	Wait bool   `help:"Block until the instance finishes."`
}

func (c *StatusCmd) Run(a *app) error {
	p, err := a.open(nil, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	var st *durable.OrchestrationState
	if c.Wait {
		stop := p.runInBackground(a.ctx)
		defer stop()
		st, err = p.Engine.WaitForCompletion(a.ctx, c.ID)
	} else {
		st, err = durable.GetStatus(a.ctx, p.Engine, c.ID)
	}
	if err != nil {
		return err
	}
	return writeJSON(a, statusView(st))
}

// ListCmd lists instances.
type ListCmd struct {
	Name   string `help:"Only instances of this orchestrator."`
	Status string `enum:",pending,running,completed,failed,faulted" default:"" help:"Only instances in this status."`
}

func (c *ListCmd) Run(a *app) error {
	p, err := a.open(nil, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	states, err := durable.ListInstances(a.ctx, p.Engine, durable.InstanceListOptions{
		Name:   c.Name,
		Status: durable.Status(strings.ToUpper(c.Status)),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tGENERATION\tUPDATED")
	for _, st := range states {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			st.InstanceID, st.Name, st.Status, st.Generation, st.LastUpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

type stateView struct {
	InstanceID string          `json:"instanceId"`
	Name       string          `json:"name"`
	Status     durable.Status  `json:"status"`
	Generation int             `json:"generation"`
	WaitingFor []string        `json:"waitingFor,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Failure    *failureView    `json:"failure,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type failureView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func statusView(st *durable.OrchestrationState) stateView {
	v := stateView{
		InstanceID: st.InstanceID,
		Name:       st.Name,
		Status:     st.Status,
		Generation: st.Generation,
		WaitingFor: st.WaitingFor,
		CreatedAt:  st.CreatedAt,
		UpdatedAt:  st.LastUpdatedAt,
	}
	if st.Output != nil && !st.Output.IsZero() {
		v.Output = json.RawMessage(st.Output.Data)
	}
	if st.Failure != nil {
		v.Failure = &failureView{Kind: st.Failure.Kind, Message: st.Failure.Message}
	}
	return v
}

func writeJSON(a *app, v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
