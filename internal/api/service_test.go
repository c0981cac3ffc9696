package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slassabe/iot2mqtt/internal/access"
	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/directory"
	"github.com/slassabe/iot2mqtt/internal/encode"
	"github.com/slassabe/iot2mqtt/internal/health"
	"github.com/slassabe/iot2mqtt/internal/mqttx"
	"github.com/slassabe/iot2mqtt/internal/timer"
	"github.com/slassabe/iot2mqtt/internal/topic"
)

func newTestService(t *testing.T) (*Service, *mqttx.FakeClient) {
	t.Helper()
	dir := directory.New()
	dir.UpdateDevices([]dev.Device{{Name: "plug1", Protocol: dev.ProtocolZ2M, Model: dev.ModelSnMini}})

	cmdRegistry, err := topic.NewDefaultCommandRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client := mqttx.NewFakeClient()
	accessor := access.New(client, cmdRegistry, encode.NewDefaultRegistry(nil), timer.NewManager(nil), dir, nil)
	checker := health.NewChecker()

	jwt := JWTConfig{SecretKey: "test-secret"}
	svc := NewService(dir, accessor, checker, NewHub(), jwt, nil)
	return svc, client
}

func TestListDevicesReturnsDiscoveredDevices(t *testing.T) {
	svc, _ := newTestService(t)
	req := httptest.NewRequest("GET", "/devices", nil)
	resp, err := svc.App().Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGetUnknownDeviceReturns404(t *testing.T) {
	svc, _ := newTestService(t)
	req := httptest.NewRequest("GET", "/devices/ghost", nil)
	resp, err := svc.App().Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMutatingRouteRejectsMissingToken(t *testing.T) {
	svc, client := newTestService(t)
	req := httptest.NewRequest("POST", "/devices/plug1/get-state", nil)
	resp, err := svc.App().Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if len(client.Published()) != 0 {
		t.Fatalf("expected no MQTT publish without a valid token")
	}
}

func TestMutatingRouteAcceptsValidToken(t *testing.T) {
	svc, client := newTestService(t)
	token, err := GenerateToken("operator", JWTConfig{SecretKey: "test-secret", Expiration: time.Hour, Issuer: "iot2mqtt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest("POST", "/devices/plug1/get-state", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := svc.App().Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(client.Published()) != 1 {
		t.Fatalf("expected one MQTT publish, got %+v", client.Published())
	}
}

func TestSetStateRouteForwardsBodyToAccessor(t *testing.T) {
	svc, client := newTestService(t)
	token, err := GenerateToken("operator", JWTConfig{SecretKey: "test-secret", Expiration: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, _ := json.Marshal(setStateRequest{State: map[string]interface{}{"state": "ON"}})
	req := httptest.NewRequest("POST", "/devices/plug1/set-state", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.App().Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(client.Published()) != 1 {
		t.Fatalf("expected one MQTT publish, got %+v", client.Published())
	}
}

func TestHealthzReturns200WhenNoChecksRegistered(t *testing.T) {
	svc, _ := newTestService(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := svc.App().Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
