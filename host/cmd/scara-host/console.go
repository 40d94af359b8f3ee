package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/shlex"

	"scara/journal"
	"scara/motion"
	"scara/motion/kinematics"
	"scara/motion/planner"
	"scara/motion/session"
)

var errQuit = errors.New("quit")

// console executes one command line at a time against a session
type console struct {
	ctx       context.Context
	sess      *session.Session
	arm       *kinematics.Scara
	journal   *journal.Journal // nil when the journal is disabled
	device    string
	out       io.Writer
	listPorts func() ([]string, error)
}

// execute runs one line. errQuit ends the loop; other errors are printed.
func (c *console) execute(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("failed to parse command line: %w", err)
	}
	if len(args) == 0 {
		return nil
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		c.printHelp()
		return nil

	case "move":
		if len(args) != 2 {
			return errors.New("usage: move X Y")
		}
		target, err := motion.ParseTarget(args[0], args[1])
		if err != nil {
			return err
		}
		if err := c.sess.MoveTo(c.ctx, target.X, target.Y); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Moved to %s: %s\n", target, c.sess.LastAngles())
		return nil

	case "angles":
		if len(args) != 2 {
			return errors.New("usage: angles THETA1 THETA2")
		}
		angles, err := motion.ParseAngles(args[0], args[1])
		if err != nil {
			return err
		}
		if err := c.sess.SetAnglesDirectly(c.ctx, angles.Theta1, angles.Theta2); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Sent %s\n", angles)
		return nil

	case "add":
		if len(args) != 2 {
			return errors.New("usage: add X Y")
		}
		target, err := motion.ParseTarget(args[0], args[1])
		if err != nil {
			return err
		}
		c.sess.EnqueuePoint(target.X, target.Y)
		fmt.Fprintf(c.out, "Queued %s (%d pending)\n", target, len(c.sess.Points()))
		return nil

	case "points":
		points := c.sess.Points()
		if len(points) == 0 {
			fmt.Fprintln(c.out, "No points queued")
			return nil
		}
		for i, p := range points {
			fmt.Fprintf(c.out, "  %3d  %s\n", i+1, p)
		}
		return nil

	case "run":
		pending := len(c.sess.Points())
		p, err := c.sess.StartPlayback(c.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Playback %s started (%d points, %s between targets)\n",
			p.ID, pending, c.sess.Delay())
		return nil

	case "cancel":
		if err := c.sess.CancelPlayback(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Playback cancelled")
		return nil

	case "reset":
		c.sess.Reset()
		fmt.Fprintln(c.out, "Reset: queue cleared, angles zeroed")
		return nil

	case "load":
		if len(args) != 1 {
			return errors.New("usage: load FILE")
		}
		return c.load(args[0])

	case "history":
		return c.history(args)

	case "ports":
		ports, err := c.listPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(c.out, "No serial ports found")
		}
		for _, p := range ports {
			fmt.Fprintf(c.out, "  %s\n", p)
		}
		return nil

	case "status":
		c.printStatus()
		return nil
	}

	return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
}

func (c *console) load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := c.sess.LoadProgram(f)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	fmt.Fprintf(c.out, "Queued %d points from %s\n", n, path)
	return nil
}

func (c *console) history(args []string) error {
	if c.journal == nil {
		return errors.New("journal disabled (set --journal)")
	}

	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return errors.New("usage: history [N]")
		}
		n = v
	}

	entries, err := c.journal.Recent(c.ctx, n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		what := fmt.Sprintf("θ1=%.2f θ2=%.2f", e.Theta1, e.Theta2)
		if e.HasTarget {
			what = motion.Target{X: e.X, Y: e.Y}.String() + " " + what
		}
		fmt.Fprintf(c.out, "  %s  %-8s %-11s %s", e.Time.Format(time.TimeOnly), e.Source, e.Status, what)
		if e.Error != "" {
			fmt.Fprintf(c.out, "  (%s)", e.Error)
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

func (c *console) printStatus() {
	l1, l2 := c.arm.Links()
	inner, outer := c.arm.Annulus()
	fmt.Fprintf(c.out, "Device:    %s\n", c.device)
	fmt.Fprintf(c.out, "Arm:       L1=%gmm L2=%gmm, reach %.1f-%.1fmm\n", l1, l2, inner, outer)
	fmt.Fprintf(c.out, "Angles:    %s\n", c.sess.LastAngles())
	fmt.Fprintf(c.out, "Queued:    %d\n", len(c.sess.Points()))
	fmt.Fprintf(c.out, "Playback:  %s\n", c.sess.PlaybackState())
	if p, ok := c.sess.Current(); ok {
		fmt.Fprintf(c.out, "  id %s, %d sent, %d skipped, %d failed\n", p.ID, p.Sent, p.Skipped, p.Failed)
	}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, "\nAvailable commands:")
	fmt.Fprintln(c.out, "  move X Y         - Solve and send one target (mm)")
	fmt.Fprintln(c.out, "  angles T1 T2     - Send joint angles directly (degrees)")
	fmt.Fprintln(c.out, "  add X Y          - Queue a target for playback")
	fmt.Fprintln(c.out, "  points           - List queued targets")
	fmt.Fprintln(c.out, "  run              - Play back the queue")
	fmt.Fprintln(c.out, "  cancel           - Stop playback")
	fmt.Fprintln(c.out, "  reset            - Stop playback, clear the queue, zero the angles")
	fmt.Fprintln(c.out, "  load FILE        - Queue the G0/G1 moves of a G-code file")
	fmt.Fprintln(c.out, "  history [N]      - Show the last N journaled commands")
	fmt.Fprintln(c.out, "  ports            - List serial ports")
	fmt.Fprintln(c.out, "  status           - Show link and playback status")
	fmt.Fprintln(c.out, "  quit/exit/q      - Exit the program")
	fmt.Fprintln(c.out)
}

// playbackPrinter reports playback progress on the console
type playbackPrinter struct {
	session.LogListener
	out io.Writer
}

func (p playbackPrinter) PlaybackFinished(pb planner.Playback, reason planner.FinishReason) {
	p.LogListener.PlaybackFinished(pb, reason)
	fmt.Fprintf(p.out, "\nPlayback %s %s: %d sent, %d skipped, %d failed\n> ",
		pb.ID, reason, pb.Sent, pb.Skipped, pb.Failed)
}
