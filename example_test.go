package durable_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/petrijr/durable"
)

// Example_localRunner demonstrates running an orchestration with two
// activities on an in-process engine.
func Example_localRunner() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runner := durable.NewLocalRunner(durable.EngineConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if err := durable.Register(runner.Engine,
		map[string]durable.Orchestrator{"Greeting": greeting},
		map[string]durable.Activity{
			"SayHello": sayHello,
			"Decorate": decorate,
		},
	); err != nil {
		log.Fatal(err)
	}

	if err := runner.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer runner.Stop()

	st, err := durable.RunToCompletion(ctx, runner.Engine, "Greeting", "Gopher")
	if err != nil {
		log.Fatal(err)
	}

	out, err := durable.Output[string](st)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(st.Status, out)
	// Output: COMPLETED *** hello, Gopher ***
}

// Example_externalEvent demonstrates waiting for an approval with a timeout.
func Example_externalEvent() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runner := durable.NewLocalRunner(durable.EngineConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := runner.Engine.RegisterOrchestrator("Approval", func(ctx durable.OrchestrationContext) (any, error) {
		var approved bool
		if err := ctx.WaitForExternalEventWithTimeout("Approved", time.Hour).Await(&approved); err != nil {
			return nil, err
		}
		if approved {
			return "published", nil
		}
		return "rejected", nil
	}); err != nil {
		log.Fatal(err)
	}

	if err := runner.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer runner.Stop()

	id, err := durable.Start(ctx, runner.Engine, "Approval", nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := durable.RaiseEvent(ctx, runner.Engine, id, "Approved", true); err != nil {
		log.Fatal(err)
	}

	st, err := runner.Engine.WaitForCompletion(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	out, _ := durable.Output[string](st)
	fmt.Println(out)
	// Output: published
}

func greeting(ctx durable.OrchestrationContext) (any, error) {
	var name, msg string
	if err := ctx.GetInput(&name); err != nil {
		return nil, err
	}
	if err := ctx.CallActivity("SayHello", name).Await(&msg); err != nil {
		return nil, err
	}
	if err := ctx.CallActivity("Decorate", msg).Await(&msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func sayHello(ctx context.Context, in *durable.Payload) (any, error) {
	var name string
	if err := in.Decode(&name); err != nil {
		return nil, err
	}
	return fmt.Sprintf("hello, %s", name), nil
}

func decorate(ctx context.Context, in *durable.Payload) (any, error) {
	var msg string
	if err := in.Decode(&msg); err != nil {
		return nil, err
	}
	return "*** " + strings.TrimSpace(msg) + " ***", nil
}
