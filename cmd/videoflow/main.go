// Command videoflow runs the video publishing pipeline on a durable engine.
//
// A single process can run everything in memory:
//
//	videoflow demo --location uploads/movie.mov --decision Approved
//
// With a shared backend, one process serves while others start and approve:
//
//	videoflow -c videoflow.yaml serve
//	videoflow -c videoflow.yaml start uploads/movie.mov
//	videoflow -c videoflow.yaml approve <instance-id> Approved
//	videoflow -c videoflow.yaml status <instance-id>
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI is the command line of videoflow.
type CLI struct {
	Config   string `short:"c" type:"existingfile" env:"VIDEOFLOW_CONFIG" help:"YAML configuration file."`
	LogLevel string `enum:",debug,info,warn,error" default:"" help:"Override the configured log level."`

	Demo    DemoCmd    `cmd:"" help:"Process one video end to end in this process."`
	Serve   ServeCmd   `cmd:"" help:"Recover outstanding work and process tasks until interrupted."`
	Start   StartCmd   `cmd:"" help:"Start a video pipeline or a periodic task."`
	Approve ApproveCmd `cmd:"" help:"Answer a pending approval request."`
	Status  StatusCmd  `cmd:"" help:"Show the state of an instance."`
	List    ListCmd    `cmd:"" help:"List instances."`
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("videoflow"),
		kong.Description("Durable video publishing pipeline."),
		kong.UsageOnError(),
	}, opts...)
	return kong.New(cli, opts...)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...kong.Option) error {
	var cli CLI
	parser, err := newParser(&cli, append(opts, kong.Writers(stdout, stderr))...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run(&app{ctx: ctx, cli: &cli, out: stdout, logOut: stderr})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		_, _ = io.WriteString(os.Stderr, "videoflow: "+err.Error()+"\n")
		os.Exit(1)
	}
}
