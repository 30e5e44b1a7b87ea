// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/ring_tracker/internal/imu"
)

const mqttFrameBuffer = 256

var errConnectionLost = errors.New("connection lost")

// MQTTSource receives frames published by a BLE→MQTT bridge, one frame per
// message.
type MQTTSource struct {
	client mqtt.Client
	topic  string

	frames  chan imu.Frame
	lost    chan error
	lostErr error // set by NextFrame once lost fires

	closeOnce sync.Once
	done      chan struct{}
}

// NewMQTTSource connects to broker and subscribes to topic. Auto-reconnect
// is off; a lost connection is reported by NextFrame.
func NewMQTTSource(broker, clientID, topic string) (*MQTTSource, error) {
	s := &MQTTSource{
		topic:  topic,
		frames: make(chan imu.Frame, mqttFrameBuffer),
		lost:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case s.lost <- err:
			default:
			}
		})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Printf("transport: connected to MQTT broker at %s", broker)

	token := s.client.Subscribe(topic, 0, s.onMessage)
	token.Wait()
	if token.Error() != nil {
		s.client.Disconnect(250)
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	log.Printf("transport: subscribed to %s", topic)

	return s, nil
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	f := imu.Frame{Text: string(msg.Payload()), At: time.Now()}
	select {
	case s.frames <- f:
	case <-s.done:
	}
}

// NextFrame blocks until a message arrives or the connection is lost.
// Frames already buffered are delivered before the loss is reported.
func (s *MQTTSource) NextFrame() (imu.Frame, error) {
	for {
		select {
		case <-s.done:
			return imu.Frame{}, imu.ErrSourceClosed
		default:
		}
		select {
		case f := <-s.frames:
			return f, nil
		default:
		}
		if s.lostErr != nil {
			return imu.Frame{}, fmt.Errorf("mqtt: connection lost: %w", s.lostErr)
		}

		select {
		case f := <-s.frames:
			return f, nil
		case err := <-s.lost:
			if err == nil {
				err = errConnectionLost
			}
			s.lostErr = err
		case <-s.done:
			return imu.Frame{}, imu.ErrSourceClosed
		}
	}
}

func (s *MQTTSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.client.Unsubscribe(s.topic).Wait()
		s.client.Disconnect(250)
	})
	return nil
}
