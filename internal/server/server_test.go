/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_switch/internal/playlist"
	"github.com/friendsincode/grimnir_switch/internal/telemetry"
)

type stubController struct {
	switches int
	status   playlist.Status
}

func (c *stubController) Switch()                 { c.switches++ }
func (c *stubController) Status() playlist.Status { return c.status }

func newTestServer(ctrl Controller) *Server {
	return New("127.0.0.1", 0, ctrl, telemetry.New(), zerolog.Nop())
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&stubController{})

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != `{"status":"ok"}` {
		t.Fatalf("body = %q", got)
	}
}

func TestSwitchAccepted(t *testing.T) {
	ctrl := &stubController{}
	s := newTestServer(ctrl)

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/switch", nil))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if ctrl.switches != 1 {
		t.Fatalf("switches = %d, want 1", ctrl.switches)
	}
}

func TestSwitchRejectsGet(t *testing.T) {
	ctrl := &stubController{}
	s := newTestServer(ctrl)

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/switch", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
	if ctrl.switches != 0 {
		t.Fatal("GET must not trigger a switch")
	}
}

func TestStatusJSON(t *testing.T) {
	ctrl := &stubController{status: playlist.Status{
		Playing: 2,
		Items:   5,
		Current: &playlist.SlotStatus{Index: 2, Source: "ts_file(a.ts)", Ready: true},
		Next:    &playlist.SlotStatus{Index: 3, Source: "srt(listener :9000)"},
	}}
	s := newTestServer(ctrl)

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var got playlist.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Playing != 2 || got.Items != 5 {
		t.Fatalf("got %+v", got)
	}
	if got.Current == nil || !got.Current.Ready || got.Current.Index != 2 {
		t.Fatalf("current = %+v", got.Current)
	}
	if got.Prev != nil {
		t.Fatalf("prev = %+v, want omitted", got.Prev)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&stubController{})

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}
