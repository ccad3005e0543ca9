// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

func TestParseWebSocketURL(t *testing.T) {
	for _, raw := range []string{"ws://bridge.local/link", "wss://bridge.local:8443/link"} {
		_, err := parseWebSocketURL(raw)
		assert.NoError(t, err, raw)
	}

	_, err := parseWebSocketURL("http://bridge.local/link")
	assert.ErrorContains(t, err, "unsupported URL scheme")

	_, err = parseWebSocketURL("ws://[::1")
	assert.ErrorContains(t, err, "invalid URL")
}

func TestBasicAuthHeader(t *testing.T) {
	h := basicAuthHeader("admin", "secret")
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	assert.Equal(t, want, h.Get("Authorization"))

	assert.Empty(t, basicAuthHeader("admin", "").Get("Authorization"))
}

// bridge is a WebSocket server standing in for a serial bridge. It sends
// script as separate messages, echoes binary messages back and closes.
func bridge(t *testing.T, script [][]byte) (string, <-chan string) {
	t.Helper()
	auth := make(chan string, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, msg := range script {
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, data)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), auth
}

func TestWebSocketConnection_SplitFrames(t *testing.T) {
	frame := sdlink.MustEncodeFrame(sdlink.CmdStopData, nil)
	url, auth := bridge(t, [][]byte{frame[:3], frame[3:]})

	conn, err := OpenWebSocketConnection(url, "admin", "secret", false)
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, strings.HasPrefix(<-auth, "Basic "))

	// A small buffer splits messages across reads
	got := make([]byte, 0, len(frame))
	buf := make([]byte, 2)
	for len(got) < len(frame) {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, frame, got)

	// Echo, then a normal close
	_, err = conn.Write([]byte{0xDD})
	require.NoError(t, err)
	n, err := io.ReadFull(conn, buf[:1])
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDD}, buf[:n])

	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestWebSocketConnection_Session(t *testing.T) {
	d := sdlink.DefaultDescriptor()
	info, err := d.ToStore()
	require.NoError(t, err)
	reply, err := sdlink.EncodeStoreFrame(sdlink.CmdSendInfo, info)
	require.NoError(t, err)

	url, _ := bridge(t, [][]byte{reply})
	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)

	s := newSession(conn, "bridge")
	defer s.Close()

	f, err := s.await(sdlink.CmdSendInfo, 2*time.Second)
	require.NoError(t, err)
	s2, err := f.Store()
	require.NoError(t, err)
	got, err := sdlink.DescriptorFromStore(s2)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestOpenWebSocketConnection_Refused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := OpenWebSocketConnection("ws"+strings.TrimPrefix(srv.URL, "http"), "admin", "wrong", false)
	assert.ErrorContains(t, err, "HTTP 401")
}

func TestOpenConnection_NoTarget(t *testing.T) {
	savedURL, savedPort := wsURL, portName
	wsURL, portName = "", ""
	t.Cleanup(func() { wsURL, portName = savedURL, savedPort })

	_, _, err := OpenConnection()
	assert.ErrorIs(t, err, errNoConnection)
}
