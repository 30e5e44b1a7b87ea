// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/ring_tracker/internal/fusion"
)

type fakePanel struct {
	calls   *[]string
	draws   int
	haltErr error
}

func (p *fakePanel) Bounds() image.Rectangle { return image.Rect(0, 0, 128, 64) }

func (p *fakePanel) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	p.draws++
	return nil
}

func (p *fakePanel) Halt() error {
	*p.calls = append(*p.calls, "halt")
	return p.haltErr
}

type fakeBus struct {
	calls *[]string
}

func (b fakeBus) Close() error {
	*b.calls = append(*b.calls, "bus close")
	return nil
}

func TestDisplayCloseHaltsBeforeReleasingBus(t *testing.T) {
	var calls []string
	panel := &fakePanel{calls: &calls}
	d := &Display{bus: fakeBus{calls: &calls}, dev: panel, scale: 0.1}

	require.NoError(t, d.Render(fusion.Snapshot{Initialized: true}))
	assert.Equal(t, 1, panel.draws)

	require.NoError(t, d.Close())
	assert.Equal(t, []string{"halt", "bus close"}, calls)
}

func TestDisplayCloseReleasesBusWhenHaltFails(t *testing.T) {
	var calls []string
	d := &Display{bus: fakeBus{calls: &calls}, dev: &fakePanel{calls: &calls, haltErr: errors.New("nack")}}

	err := d.Close()
	assert.ErrorContains(t, err, "nack")
	assert.Equal(t, []string{"halt", "bus close"}, calls)
}
