// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/relabs-tech/ring_tracker/internal/config"
	"github.com/relabs-tech/ring_tracker/internal/fusion"
)

// Console prints one line per snapshot.
type Console struct {
	w     io.Writer
	scale float64
}

// NewConsole returns a console renderer writing to w.
func NewConsole(w io.Writer, scale float64) *Console {
	return &Console{w: w, scale: scale}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Render(s fusion.Snapshot) error {
	if !s.Initialized {
		_, err := fmt.Fprintln(c.w, "[POSE]  waiting for frames...")
		return err
	}
	sc := SceneFrom(s, c.scale)
	_, err := fmt.Fprintf(c.w,
		"[POSE]  ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f  |  POS x=%6.2f y=%6.2f z=%6.2f  |  VEL vx=%6.2f vy=%6.2f vz=%6.2f\n",
		sc.Pose.Roll, sc.Pose.Pitch, sc.Pose.Yaw,
		sc.X, sc.Y, sc.Z,
		s.VX, s.VY, s.VZ,
	)
	return err
}

// WatchKeys reads control lines from r until quit or end of input:
// "r" resets the position, "q" quits. Empty lines are ignored.
func WatchKeys(r io.Reader, c Controls) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
		case "r", "reset":
			c.Reset()
		case "q", "quit", "exit":
			log.Println("console: quit requested")
			c.Quit()
			return
		default:
			log.Printf("console: unknown key %q (r=reset, q=quit)", scanner.Text())
		}
	}
}

// RunMockConsole runs the whole pipeline against the emulated ring and
// prints the fused state, with reset/quit keys on stdin.
func RunMockConsole() error {
	cfg := config.Default()
	cfg.FrameSource = config.SourceMock
	cfg.ConsoleLogInterval = 100
	cfg.ConsoleKeys = true
	return RunTracker(cfg)
}
