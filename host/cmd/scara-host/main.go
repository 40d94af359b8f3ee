package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"scara/config"
	"scara/host/controller"
	"scara/host/serial"
	"scara/journal"
	"scara/logging"
	"scara/motion/kinematics"
	"scara/motion/planner"
	"scara/motion/session"
)

func main() {
	flags := pflag.NewFlagSet("scara-host", pflag.ExitOnError)
	config.RegisterFlags(flags)
	flags.Parse(os.Args[1:])

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *pflag.FlagSet) error {
	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("SCARA Host - two-link arm controller")
	fmt.Println("====================================")

	solver, err := kinematics.NewScara(cfg.Arm.Link1, cfg.Arm.Link2)
	if err != nil {
		return err
	}
	l1, l2 := solver.Links()
	inner, outer := solver.Annulus()
	fmt.Printf("Arm: L1=%gmm L2=%gmm, reach %.1f-%.1fmm\n", l1, l2, inner, outer)

	fmt.Printf("Connecting to controller on %s...\n", cfg.Serial.Device)
	link, err := controller.Open(ctx, cfg.SerialPort(),
		controller.WithSettle(cfg.Serial.Settle),
		controller.WithLogger(logging.Component(log, "link")))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	fmt.Println("Connected successfully!")

	opts := []session.Option{
		session.WithLogger(logging.Component(log, "session")),
		session.WithListener(playbackPrinter{
			LogListener: session.LogListener{Log: logging.Component(log, "arm")},
			out:         os.Stdout,
		}),
		session.WithPlayback(
			planner.WithDelay(cfg.Playback.Delay),
			planner.WithLogger(logging.Component(log, "playback"))),
	}

	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			link.Close()
			return err
		}
		opts = append(opts, session.WithRecorder(jrnl))
	}

	sess := session.New(solver, link, opts...)
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	c := &console{
		ctx:       ctx,
		sess:      sess,
		arm:       solver,
		journal:   jrnl,
		device:    cfg.Serial.Device,
		out:       os.Stdout,
		listPorts: serial.ListPorts,
	}

	// Interactive command loop
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return nil
		case err := <-scanErr:
			if err != nil {
				return fmt.Errorf("error reading input: %w", err)
			}
			return nil
		case line := <-lines:
			err := c.execute(strings.TrimSpace(line))
			if errors.Is(err, errQuit) {
				fmt.Println("Goodbye!")
				return nil
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}
}
