package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdk "github.com/LerianStudio/lib-activation-go"
	"github.com/LerianStudio/lib-activation-go/model"
)

const usage = `usage: activationctl <command> [flags]

commands:
  activate <code>   bind this device to an activation code
  verify            re-check the local activation against the record store
  status            print the local activation and the current verdict
  watch [code]      follow changes to an activation code until interrupted
  device            print this device's identifier and snapshot
  clear [code]      forget the local activation
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 30*time.Second, "deadline for remote calls")

	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := sdk.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := sdk.New(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer client.Close()

	cmd := command{client: client, out: json.NewEncoder(stdout), timeout: *timeout}
	cmd.out.SetIndent("", "  ")

	switch args[0] {
	case "activate":
		return cmd.activate(ctx, fs.Arg(0))
	case "verify":
		return cmd.verify(ctx)
	case "status":
		return cmd.status(ctx)
	case "watch":
		return cmd.watch(ctx, fs.Arg(0))
	case "device":
		return cmd.device(ctx)
	case "clear":
		return cmd.clear(fs.Arg(0))
	}

	fmt.Fprint(stderr, usage)

	return 2
}

type command struct {
	client  *sdk.Client
	out     *json.Encoder
	timeout time.Duration
}

func (c command) print(v any) {
	_ = c.out.Encode(v)
}

func (c command) result(res model.Result, err error) int {
	c.print(res)

	if err != nil {
		return 1
	}

	return 0
}

func (c command) activate(ctx context.Context, code string) int {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.result(c.client.Activate(ctx, code))
}

func (c command) verify(ctx context.Context) int {
	local, err := c.client.CheckLocal()
	if err != nil {
		return c.result(local, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.result(c.client.VerifyOnline(ctx, local.Local.ActivationCode, local.Local.ActivatedByDeviceID))
}

func (c command) status(ctx context.Context) int {
	local, _ := c.client.CheckLocal()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	verdict := c.client.CurrentVerdict(ctx)

	c.print(struct {
		Local     *model.LocalActivationRecord `json:"local,omitempty"`
		Verdict   model.Verdict                `json:"verdict"`
		Remaining string                       `json:"remaining"`
	}{local.Local, verdict, model.RemainingText(verdict.ExpiresAt, time.Now())})

	if !verdict.Valid {
		return 1
	}

	return 0
}

func (c command) watch(ctx context.Context, code string) int {
	if code == "" {
		local, err := c.client.CheckLocal()
		if local.Local == nil {
			return c.result(local, err)
		}

		code = local.Local.ActivationCode
	}

	err := c.client.Watch(ctx, code, func(eval model.Evaluation, _ *model.ActivationCode) {
		c.print(eval)
	})
	if err != nil {
		c.print(map[string]string{"error": err.Error()})
		return 1
	}

	<-ctx.Done()
	c.client.Stop(code)

	return 0
}

func (c command) device(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.print(struct {
		model.DeviceIdentity
		Info model.DeviceInfo `json:"info"`
	}{c.client.DeviceID(), c.client.DeviceInfo(ctx)})

	return 0
}

func (c command) clear(code string) int {
	if code == "" {
		local, _ := c.client.CheckLocal()
		if local.Local == nil {
			c.print(map[string]string{"cleared": ""})
			return 0
		}

		code = local.Local.ActivationCode
	}

	c.client.ClearLocal(code)
	c.print(map[string]string{"cleared": code})

	return 0
}
