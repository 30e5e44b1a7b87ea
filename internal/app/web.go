// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/ring_tracker/internal/fusion"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is a control message sent by a websocket client.
type WSMessage struct {
	Action string `json:"action"` // reset, quit
}

// Web serves the motion state over HTTP and streams it over websockets.
type Web struct {
	state    *fusion.State
	engine   *fusion.Engine
	controls Controls
	scale    float64
	interval time.Duration
}

// NewWeb returns the web consumer. interval is the websocket push cadence.
func NewWeb(state *fusion.State, engine *fusion.Engine, controls Controls, scale float64, interval time.Duration) *Web {
	return &Web{
		state:    state,
		engine:   engine,
		controls: controls,
		scale:    scale,
		interval: interval,
	}
}

// Handler returns the HTTP routes.
//
//	GET  /api/state   full snapshot
//	GET  /api/scene   scaled position + orientation in degrees
//	GET  /api/stats   frame counters
//	POST /api/reset   reset position and velocity
//	GET  /ws/state    websocket stream of snapshots, accepts WSMessage
func (w *Web) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, w.state.Snapshot())
	})

	mux.HandleFunc("GET /api/scene", func(rw http.ResponseWriter, r *http.Request) {
		s := w.state.Snapshot()
		if !s.Initialized {
			http.Error(rw, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(rw, SceneFrom(s, w.scale))
	})

	mux.HandleFunc("GET /api/stats", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, w.engine.Stats())
	})

	mux.HandleFunc("POST /api/reset", func(rw http.ResponseWriter, r *http.Request) {
		w.controls.Reset()
		rw.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /ws/state", w.handleStateWS)

	return mux
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// wsRenderer pushes snapshots down one websocket connection.
type wsRenderer struct {
	conn *websocket.Conn
}

func (r wsRenderer) Name() string { return "web: websocket " + r.conn.RemoteAddr().String() }

func (r wsRenderer) Render(s fusion.Snapshot) error {
	return r.conn.WriteJSON(s)
}

// handleStateWS runs one consumer context per connection. The read side
// handles control messages and ends the stream when the client goes away.
func (w *Web) handleStateWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		defer cancel()
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("web: websocket read error: %v", err)
				}
				return
			}
			switch msg.Action {
			case "reset":
				w.controls.Reset()
			case "quit":
				w.controls.Quit()
				return
			default:
				log.Printf("web: unknown websocket action %q", msg.Action)
			}
		}
	}()

	runConsumer(ctx, w.state, Consumer{Renderer: wsRenderer{conn: conn}, Interval: w.interval})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Serve returns a service running the HTTP server on addr until ctx ends.
func (w *Web) Serve(addr string) Service {
	return func(ctx context.Context) error {
		srv := &http.Server{Addr: addr, Handler: w.Handler()}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		log.Printf("web: server listening on %s", addr)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("web server: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
