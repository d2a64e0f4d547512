// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/mdplink/pkg/bridge"
	"github.com/Thermoquad/mdplink/pkg/link"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
)

// wsBridge answers PING with PONG over a WebSocket, after first sending a
// text frame that clients must ignore.
func wsBridge(t *testing.T, wantAuth string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" && r.Header.Get("Authorization") != wantAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("hello"))

		decoder := bridge.NewDecoder()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, b := range data {
				msg, err := decoder.DecodeByte(b)
				if err != nil || msg == nil || msg.Type() != bridge.MsgPing {
					continue
				}
				conn.WriteMessage(websocket.BinaryMessage, bridge.MustEncodeMessage(bridge.NewPong(90061000)))
			}
		}
	}))
}

func wsURLFor(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketPing(t *testing.T) {
	srv := wsBridge(t, "Basic dXNlcjpzZWNyZXQ=")
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ep := bridgeEndpoint{URL: wsURLFor(srv), Username: "user", Password: "secret"}
	conn, err := ep.dial(ctx)
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}

	logger, _ := test.NewNullLogger()
	entry := logger.WithField("test", t.Name())
	driver := link.NewBridgeDriver(conn, link.NewEvents(entry), link.WithLogger(entry))
	driver.Start(ctx)
	defer driver.Close()

	uptime, err := driver.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if got := formatUptime(uptime); got != "1 day, 1 hour, 1 minute, and 1 second" {
		t.Errorf("uptime = %q", got)
	}
}

func TestWebSocketStreamSplitsMessages(t *testing.T) {
	wire := bridge.MustEncodeMessage(bridge.NewPong(4200))
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.BinaryMessage, wire[:3])
		conn.WriteMessage(websocket.TextMessage, []byte("status"))
		conn.WriteMessage(websocket.BinaryMessage, wire[3:])
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.ReadMessage()
	}))
	defer srv.Close()

	conn, err := bridgeEndpoint{URL: wsURLFor(srv)}.dial(context.Background())
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	defer conn.Close()

	// A small buffer forces reads that stop mid-message.
	var got []byte
	buf := make([]byte, 2)
	for {
		n, err := conn.Read(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	if !bytes.Equal(got, wire) {
		t.Errorf("stream = % X, want % X", got, wire)
	}
}

func TestWebSocketCancelUnblocksDriver(t *testing.T) {
	srv := wsBridge(t, "")
	defer srv.Close()

	conn, err := bridgeEndpoint{URL: wsURLFor(srv)}.dial(context.Background())
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}

	logger, _ := test.NewNullLogger()
	entry := logger.WithField("test", t.Name())
	driver := link.NewBridgeDriver(conn, link.NewEvents(entry), link.WithLogger(entry))
	ctx, cancel := context.WithCancel(context.Background())
	driver.Start(ctx)
	cancel()

	select {
	case <-driver.Done():
	case <-time.After(time.Second):
		t.Fatal("driver still running after cancel")
	}
	if _, err := conn.Write([]byte{bridge.StartByte}); err == nil {
		t.Error("Write() on transport succeeded after cancel")
	}
}

func TestWebSocketUnauthorized(t *testing.T) {
	srv := wsBridge(t, "Basic dXNlcjpzZWNyZXQ=")
	defer srv.Close()

	ep := bridgeEndpoint{URL: wsURLFor(srv), Username: "user", Password: "wrong"}
	_, err := ep.dial(context.Background())
	if err == nil || !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("dial() error = %v, want HTTP 401", err)
	}
}

func TestBridgeEndpointValidate(t *testing.T) {
	tests := []struct {
		name    string
		ep      bridgeEndpoint
		wantErr bool
	}{
		{name: "serial", ep: bridgeEndpoint{Port: "/dev/ttyACM0", Baud: 115200}},
		{name: "websocket", ep: bridgeEndpoint{URL: "wss://relay.local/bridge"}},
		{name: "url wins over port", ep: bridgeEndpoint{Port: "/dev/ttyACM0", URL: "ws://relay.local/bridge"}},
		{name: "nothing", ep: bridgeEndpoint{}, wantErr: true},
		{name: "bad scheme", ep: bridgeEndpoint{URL: "http://localhost/bridge"}, wantErr: true},
		{name: "bad baud", ep: bridgeEndpoint{Port: "/dev/ttyACM0"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ep.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBridgeEndpointString(t *testing.T) {
	serialEp := bridgeEndpoint{Port: "/dev/ttyACM0", Baud: 115200}
	if got := serialEp.String(); got != "Serial: /dev/ttyACM0 @ 115200 baud" {
		t.Errorf("String() = %q", got)
	}
	wsEp := bridgeEndpoint{URL: "ws://relay.local/bridge"}
	if got := wsEp.String(); got != "WebSocket: ws://relay.local/bridge" {
		t.Errorf("String() = %q", got)
	}
}
