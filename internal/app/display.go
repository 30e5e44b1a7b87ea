// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"io"
	"log"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ring_tracker/internal/fusion"
)

// panel is the part of *ssd1306.Dev the renderer drives.
type panel interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

// Display renders the pose and scaled position on an SSD1306 OLED.
type Display struct {
	bus   io.Closer
	dev   panel
	scale float64
}

func NewDisplay(scale float64) (*Display, error) {
	// Initialize periph
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: initialized")

	d := &Display{bus: bus, dev: dev, scale: scale}
	if err := d.draw([]string{"", "Ring Tracker", "Waiting..."}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}
	return d, nil
}

func (d *Display) Name() string { return "display" }

func (d *Display) Render(s fusion.Snapshot) error {
	return d.draw(displayLines(s, d.scale))
}

// Close blanks the panel, then releases the bus.
func (d *Display) Close() error {
	haltErr := d.dev.Halt()
	busErr := d.bus.Close()
	if haltErr != nil {
		return fmt.Errorf("display halt: %w", haltErr)
	}
	return busErr
}

// displayLines lays out a snapshot as at most four 13px rows.
func displayLines(s fusion.Snapshot, scale float64) []string {
	if !s.Initialized {
		return []string{"", "Orientation", "Waiting..."}
	}
	sc := SceneFrom(s, scale)
	return []string{
		fmt.Sprintf("R: %6.1f", sc.Pose.Roll),
		fmt.Sprintf("P: %6.1f", sc.Pose.Pitch),
		fmt.Sprintf("Y: %6.1f", sc.Pose.Yaw),
		fmt.Sprintf("%.2f %.2f %.2f", sc.X, sc.Y, sc.Z),
	}
}

func (d *Display) draw(lines []string) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(line))
	}

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}
