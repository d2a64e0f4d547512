// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// passwordEnv holds the WebSocket password when set
const passwordEnv = "MDPLINK_PASSWORD"

const (
	wsHandshakeTimeout = 10 * time.Second
	wsDialTimeout      = 15 * time.Second
)

// bridgeEndpoint says where the bridge dongle is attached: a local serial
// port, or a WebSocket relay in front of one.
type bridgeEndpoint struct {
	Port string
	Baud int

	URL      string
	Username string
	Password string
	Insecure bool
}

// endpointFromFlags builds the endpoint selected by the root flags. A
// WebSocket URL wins over a serial port.
func endpointFromFlags() (bridgeEndpoint, error) {
	ep := bridgeEndpoint{
		Port:     portName,
		Baud:     baudRate,
		URL:      wsURL,
		Username: wsUsername,
		Insecure: wsNoSSLVerify,
	}
	if err := ep.validate(); err != nil {
		return ep, err
	}
	if ep.URL != "" && ep.Username != "" {
		password, err := readPassword()
		if err != nil {
			return ep, err
		}
		ep.Password = password
	}
	return ep, nil
}

func (e bridgeEndpoint) validate() error {
	if e.URL != "" {
		u, err := url.Parse(e.URL)
		if err != nil {
			return fmt.Errorf("invalid URL: %v", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
		}
		return nil
	}
	if e.Port == "" {
		return fmt.Errorf("either --port or --url must be specified")
	}
	if e.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", e.Baud)
	}
	return nil
}

func (e bridgeEndpoint) String() string {
	if e.URL != "" {
		return fmt.Sprintf("WebSocket: %s", e.URL)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", e.Port, e.Baud)
}

// dial opens the byte stream to the bridge. The caller owns the result;
// handing it to a link.BridgeDriver passes ownership to the driver.
func (e bridgeEndpoint) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if e.URL != "" {
		return e.dialWebSocket(ctx)
	}

	port, err := serial.Open(e.Port, &serial.Mode{
		BaudRate: e.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", e.Port, err)
	}
	return port, nil
}

func (e bridgeEndpoint) dialWebSocket(ctx context.Context) (io.ReadWriteCloser, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	if strings.HasPrefix(e.URL, "wss:") {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: e.Insecure}
	}

	headers := http.Header{}
	if e.Username != "" && e.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(e.Username + ":" + e.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, e.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}
	return &wsStream{conn: conn}, nil
}

// wsStream presents the binary messages of a WebSocket as one byte stream.
// Bridge messages may be split across WebSocket messages, so message
// boundaries are not preserved.
type wsStream struct {
	conn *websocket.Conn
	cur  io.Reader

	writeMu sync.Mutex
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.cur != nil {
			n, err := s.cur.Read(p)
			if errors.Is(err, io.EOF) {
				s.cur = nil
				err = nil
			}
			if n > 0 || err != nil {
				return n, err
			}
			continue
		}

		messageType, r, err := s.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		// Relays send status text; only binary messages carry bridge bytes.
		if messageType == websocket.BinaryMessage {
			s.cur = r
		}
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and drops the connection. WriteControl may
// run concurrently with Write.
func (s *wsStream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// readPassword returns the password from the environment or prompts for it.
func readPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
