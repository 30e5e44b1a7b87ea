// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// TypePIMU is the proprietary sentence carrying one frame:
//
//	$PIMU,ax,ay,az,gx,gy,gz*hh
const TypePIMU = "IMU"

// PIMU is a decoded $PIMU sentence. Fields are kept as text so that the
// regular frame parser decides what is acceptable.
type PIMU struct {
	nmea.BaseSentence
}

func parsePIMU(s nmea.BaseSentence) (nmea.Sentence, error) {
	return PIMU{BaseSentence: s}, nil
}

// Proprietary prefix handling differs between go-nmea releases, so the parser
// is registered under both the bare and the "P"-prefixed type.
var sentenceParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		TypePIMU:       parsePIMU,
		"P" + TypePIMU: parsePIMU,
	},
}

// Text returns the frame text carried by the sentence.
func (p PIMU) Text() string {
	return strings.Join(p.Fields, FrameDelimiter)
}

// UnwrapFrame returns the bare frame text for a line that may be wrapped as a
// $PIMU sentence. Lines not starting with '$' are returned unchanged. Other
// NMEA traffic (GNSS talkers sharing the link) and sentences with a bad
// checksum are rejected.
func UnwrapFrame(line string) (string, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return line, nil
	}

	sentence, err := sentenceParser.Parse(line)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFrameRejected, err)
	}
	p, ok := sentence.(PIMU)
	if !ok {
		return "", fmt.Errorf("%w: unexpected sentence %s", ErrFrameRejected, sentence.DataType())
	}
	return p.Text(), nil
}
