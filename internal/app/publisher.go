// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/ring_tracker/internal/fusion"
)

// StatePublisher publishes snapshots as retained JSON and turns any message
// on the reset topic into a reset control event.
type StatePublisher struct {
	client     mqtt.Client
	topicState string
	topicReset string
}

// NewStatePublisher connects to broker and subscribes to topicReset.
func NewStatePublisher(broker, clientID, topicState, topicReset string, controls Controls) (*StatePublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Printf("publisher: connected to MQTT broker at %s", broker)

	if topicReset != "" {
		token := client.Subscribe(topicReset, 0, func(_ mqtt.Client, _ mqtt.Message) {
			log.Printf("publisher: reset requested on %s", topicReset)
			controls.Reset()
		})
		token.Wait()
		if token.Error() != nil {
			client.Disconnect(250)
			return nil, fmt.Errorf("mqtt subscribe %s: %w", topicReset, token.Error())
		}
		log.Printf("publisher: subscribed to %s", topicReset)
	}

	return &StatePublisher{client: client, topicState: topicState, topicReset: topicReset}, nil
}

func (p *StatePublisher) Name() string { return "publisher" }

func (p *StatePublisher) Render(s fusion.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("json marshal error (state): %w", err)
	}
	if token := p.client.Publish(p.topicState, 0, true, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT publish error (%s): %w", p.topicState, token.Error())
	}
	return nil
}

func (p *StatePublisher) Close() error {
	if p.topicReset != "" {
		p.client.Unsubscribe(p.topicReset).Wait()
	}
	p.client.Disconnect(250)
	return nil
}
