package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yaroslav/microdc/models"
)

// newTestClient returns a client pointed at handler with fast retries.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:      server.URL,
		TokenID:      "microdc@pve!test",
		TokenSecret:  "s3cret",
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		OverlayZone:  "evpn1",
	}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, server
}

func writeData(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"data":`+data+`}`)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  ClientConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: ClientConfig{
				BaseURL:     "https://pve1.example.com:8006",
				TokenID:     "id",
				TokenSecret: "secret",
			},
		},
		{
			name: "valid config with throttle",
			config: ClientConfig{
				BaseURL:           "https://pve1.example.com:8006",
				TokenID:           "id",
				TokenSecret:       "secret",
				RequestsPerSecond: 0.5,
			},
		},
		{
			name:    "invalid config - missing URL",
			config:  ClientConfig{TokenID: "id", TokenSecret: "secret"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config, nil)

			if tt.wantErr {
				if err == nil {
					t.Errorf("NewClient() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient() unexpected error = %v", err)
			}
			if client == nil {
				t.Fatal("NewClient() returned nil client")
			}
			if tt.config.RequestsPerSecond > 0 && client.limiter == nil {
				t.Error("NewClient() did not create a limiter")
			}
		})
	}
}

func TestClient_AuthenticationHeader(t *testing.T) {
	var got string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(HeaderAuthorization)
		writeData(w, `[]`)
	})

	if _, err := client.GetClusterStatus(context.Background()); err != nil {
		t.Fatalf("GetClusterStatus() error = %v", err)
	}

	want := "PVEAPIToken=microdc@pve!test=s3cret"
	if got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestClient_GetClusterStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api2/json/cluster/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeData(w, `[
			{"type":"cluster","name":"lab","quorate":1,"nodes":2,"version":4},
			{"type":"node","name":"pve1","id":"node/pve1","online":1,"ip":"10.0.0.1"},
			{"type":"node","name":"pve2","id":"node/pve2","online":0}
		]`)
	})

	status, err := client.GetClusterStatus(context.Background())
	if err != nil {
		t.Fatalf("GetClusterStatus() error = %v", err)
	}

	if status.Name != "lab" || !status.Quorate {
		t.Errorf("status = %+v, want quorate cluster lab", status)
	}
	if len(status.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(status.Nodes))
	}
	online := status.OnlineNodes()
	if len(online) != 1 || online[0] != "pve1" {
		t.Errorf("OnlineNodes() = %v, want [pve1]", online)
	}
}

func TestClient_GetClusterStatus_Standalone(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `[{"type":"node","name":"pve1","online":true}]`)
	})

	status, err := client.GetClusterStatus(context.Background())
	if err != nil {
		t.Fatalf("GetClusterStatus() error = %v", err)
	}
	if !status.Quorate {
		t.Error("standalone online node should be quorate")
	}
}

func TestClient_GetClusterResources(t *testing.T) {
	tests := []struct {
		name          string
		data          string
		wantErr       error
		wantResources int
	}{
		{
			name: "valid resources with unknown fields",
			data: `[
				{"id":"qemu/100","type":"qemu","node":"pve1","status":"running","vmid":100,"cpu":0.12,"maxcpu":4,"mem":1024,"maxmem":4096,"disk":0,"maxdisk":32768,"template":0},
				{"id":"node/pve1","type":"node","node":"pve1","status":"online","maxcpu":"16"}
			]`,
			wantResources: 2,
		},
		{
			name:    "missing node",
			data:    `[{"id":"qemu/100","type":"qemu","status":"running"}]`,
			wantErr: models.ErrMalformedResponse,
		},
		{
			name:    "missing status",
			data:    `[{"id":"qemu/100","type":"qemu","node":"pve1"}]`,
			wantErr: models.ErrMalformedResponse,
		},
		{
			name:    "missing id",
			data:    `[{"type":"qemu","node":"pve1","status":"running"}]`,
			wantErr: models.ErrMalformedResponse,
		},
		{
			name:    "data is not a list",
			data:    `{"id":"qemu/100"}`,
			wantErr: models.ErrMalformedResponse,
		},
		{
			name:    "null data",
			data:    `null`,
			wantErr: models.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeData(w, tt.data)
			})

			resources, err := client.GetClusterResources(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GetClusterResources() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetClusterResources() unexpected error = %v", err)
			}
			if len(resources) != tt.wantResources {
				t.Errorf("resources = %d, want %d", len(resources), tt.wantResources)
			}
			if resources[0].VMID != 100 || resources[1].MaxCPU != 16 {
				t.Errorf("resources = %+v", resources)
			}
		})
	}
}

func TestClient_MalformedEnvelope(t *testing.T) {
	long := strings.Repeat("x", 1000)

	tests := []struct {
		name string
		body string
	}{
		{name: "not JSON", body: "<html>" + long + "</html>"},
		{name: "missing data member", body: `{"errors":"` + long + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.GetClusterStatus(context.Background())
			if !errors.Is(err, models.ErrMalformedResponse) {
				t.Fatalf("error = %v, want ErrMalformedResponse", err)
			}
			if !strings.Contains(err.Error(), "truncated") {
				t.Errorf("error should carry a truncated payload: %v", err)
			}
			if len(err.Error()) > 2*maxSnippet {
				t.Errorf("error message too long: %d bytes", len(err.Error()))
			}
		})
	}
}

func TestClient_RetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeData(w, `[]`)
	})

	if _, err := client.GetClusterResources(context.Background()); err != nil {
		t.Fatalf("GetClusterResources() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_Unreachable(t *testing.T) {
	t.Run("persistent 5xx", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := client.GetClusterStatus(context.Background())
		if !errors.Is(err, models.ErrClusterUnreachable) {
			t.Fatalf("error = %v, want ErrClusterUnreachable", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3 attempts", calls.Load())
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		server.Close()

		_, err := client.GetClusterStatus(context.Background())
		if !errors.Is(err, models.ErrClusterUnreachable) {
			t.Fatalf("error = %v, want ErrClusterUnreachable", err)
		}
	})
}

func TestClient_RejectedNotRetried(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(code)
				_, _ = io.WriteString(w, `{"data":null,"message":"permission check failed"}`)
			})

			_, err := client.GetClusterStatus(context.Background())
			if !errors.Is(err, models.ErrClusterRejected) {
				t.Fatalf("error = %v, want ErrClusterRejected", err)
			}
			if calls.Load() != 1 {
				t.Errorf("calls = %d, want exactly 1", calls.Load())
			}
		})
	}
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:      server.URL,
		TokenID:      "id",
		TokenSecret:  "secret",
		RetryWaitMin: time.Minute,
		RetryWaitMax: time.Minute,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.GetClusterStatus(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context deadline", err)
	}
	if !errors.Is(err, models.ErrClusterUnreachable) {
		t.Errorf("error = %v, want ErrClusterUnreachable", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff wait was not aborted by the context")
	}
}

func TestClient_CalculateBackoff(t *testing.T) {
	client := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: time.Second}

	tests := []struct {
		attempt int
		max     time.Duration
	}{
		{attempt: 0, max: 100 * time.Millisecond},
		{attempt: 1, max: 200 * time.Millisecond},
		{attempt: 2, max: 400 * time.Millisecond},
		{attempt: 10, max: time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := client.calculateBackoff(tt.attempt)
			if got < tt.max/2 || got > tt.max {
				t.Errorf("calculateBackoff(%d) = %v, want within [%v, %v]", tt.attempt, got, tt.max/2, tt.max)
			}
		}
	}
}

func TestClient_ListNetworkConfigs(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api2/json/nodes/pve1/network" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("type") != "vlan" {
			t.Errorf("type filter = %q, want vlan", r.URL.Query().Get("type"))
		}
		writeData(w, `[
			{"iface":"vmbr0.100","type":"vlan","vlan-id":"100","vlan-raw-device":"vmbr0","active":1},
			{"iface":"vmbr0.101","type":"vlan"},
			{"iface":"vmbr0","type":"bridge"}
		]`)
	})

	configs, err := client.ListNetworkConfigs(context.Background(), "pve1")
	if err != nil {
		t.Fatalf("ListNetworkConfigs() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("configs = %d, want 2 vlans", len(configs))
	}
	if configs[0].Tag != 100 || !configs[0].Active || configs[0].RawDevice != "vmbr0" {
		t.Errorf("configs[0] = %+v", configs[0])
	}
	if configs[1].Tag != 101 {
		t.Errorf("tag from iface name = %d, want 101", configs[1].Tag)
	}
}

func TestClient_ListNetworkConfigs_BridgeAndOwner(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `[
			{"iface":"vmbr0.120","type":"vlan","vlan-id":120,"vlan-raw-device":"vmbr0","comments":"microdc:dc-1\n"},
			{"iface":"vmbr0.121","type":"vlan","vlan-id":121,"vlan-raw-device":"vmbr0","comments":"uplink to rack 4"},
			{"iface":"vmbr1.150","type":"vlan","vlan-id":150,"vlan-raw-device":"vmbr1","comments":"microdc:dc-1"},
			{"iface":"vmbr1.151","type":"vlan"},
			{"iface":"bond0.160","type":"vlan","vlan-id":160}
		]`)
	})

	configs, err := client.ListNetworkConfigs(context.Background(), "pve1")
	if err != nil {
		t.Fatalf("ListNetworkConfigs() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("configs = %+v, want only the vmbr0 vlans", configs)
	}
	if configs[0].Tag != 120 || configs[0].Owner != "dc-1" {
		t.Errorf("configs[0] = %+v, want tag 120 owned by dc-1", configs[0])
	}
	if configs[1].Tag != 121 || configs[1].Owner != "" {
		t.Errorf("configs[1] = %+v, want tag 121 without owner", configs[1])
	}
}

func TestClient_ApplyNetworkConfig(t *testing.T) {
	type request struct {
		method string
		path   string
		body   map[string]any
	}

	tests := []struct {
		name   string
		action NetworkAction
		want   []request
	}{
		{
			name:   "provision",
			action: ActionProvision,
			want: []request{
				{method: http.MethodPost, path: "/api2/json/nodes/pve1/network"},
				{method: http.MethodPut, path: "/api2/json/nodes/pve1/network"},
			},
		},
		{
			name:   "remove",
			action: ActionRemove,
			want: []request{
				{method: http.MethodDelete, path: "/api2/json/nodes/pve1/network/vmbr0.120"},
				{method: http.MethodPut, path: "/api2/json/nodes/pve1/network"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu  sync.Mutex
				got []request
			)
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				req := request{method: r.Method, path: r.URL.Path}
				if r.Body != nil {
					_ = json.NewDecoder(r.Body).Decode(&req.body)
				}
				mu.Lock()
				got = append(got, req)
				mu.Unlock()

				if r.Method == http.MethodPut {
					writeData(w, `"UPID:pve1:0001:srvreload"`)
					return
				}
				writeData(w, `null`)
			})

			ack, err := client.ApplyNetworkConfig(context.Background(), "pve1", 120, "dc-1", tt.action)
			if err != nil {
				t.Fatalf("ApplyNetworkConfig() error = %v", err)
			}
			if ack.Iface != "vmbr0.120" || ack.Task != "UPID:pve1:0001:srvreload" || ack.Action != tt.action {
				t.Errorf("ack = %+v", ack)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("requests = %+v, want %d", got, len(tt.want))
			}
			for i, w := range tt.want {
				if got[i].method != w.method || got[i].path != w.path {
					t.Errorf("request %d = %s %s, want %s %s", i, got[i].method, got[i].path, w.method, w.path)
				}
			}
			if tt.action == ActionProvision {
				body := got[0].body
				if body["iface"] != "vmbr0.120" || body["type"] != "vlan" || body["vlan-id"] != float64(120) {
					t.Errorf("provision body = %v", body)
				}
				if body["comments"] != "microdc:dc-1" {
					t.Errorf("provision comments = %v, want owner mark", body["comments"])
				}
			}
		})
	}
}

func TestClient_ApplyNetworkConfig_InvalidInput(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	if _, err := client.ApplyNetworkConfig(context.Background(), "pve1", 1, "dc-1", ActionProvision); !errors.Is(err, models.ErrValidationFailed) {
		t.Errorf("tag 1: error = %v, want ErrValidationFailed", err)
	}
	if _, err := client.ApplyNetworkConfig(context.Background(), "pve1", 100, "dc-1", "flush"); !errors.Is(err, models.ErrValidationFailed) {
		t.Errorf("unknown action: error = %v, want ErrValidationFailed", err)
	}
	if _, err := client.ApplyNetworkConfig(context.Background(), "pve1", 100, "", ActionProvision); !errors.Is(err, models.ErrValidationFailed) {
		t.Errorf("no owner: error = %v, want ErrValidationFailed", err)
	}
	if _, err := client.ApplyNetworkConfig(context.Background(), "../cluster", 100, "dc-1", ActionProvision); !errors.Is(err, models.ErrValidationFailed) {
		t.Errorf("bad node: error = %v, want ErrValidationFailed", err)
	}
	if _, err := client.ListNetworkConfigs(context.Background(), "pve1/x"); !errors.Is(err, models.ErrValidationFailed) {
		t.Errorf("bad node list: error = %v, want ErrValidationFailed", err)
	}
	if calls.Load() != 0 {
		t.Errorf("invalid input reached the cluster %d times", calls.Load())
	}
}

func TestClient_CreateOverlayNetwork(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()

		if r.URL.Path == "/api2/json/cluster/sdn/vnets" {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["zone"] != "evpn1" || body["vnet"] != "mdc120" {
				t.Errorf("vnet body = %v", body)
			}
		}
		writeData(w, `null`)
	})

	if !client.OverlayEnabled() {
		t.Fatal("OverlayEnabled() = false with a zone configured")
	}

	id, err := client.CreateOverlayNetwork(context.Background(), "mdc120", 120)
	if err != nil {
		t.Fatalf("CreateOverlayNetwork() error = %v", err)
	}
	if id != "mdc120" {
		t.Errorf("id = %q, want mdc120", id)
	}

	want := []string{"POST /api2/json/cluster/sdn/vnets", "PUT /api2/json/cluster/sdn"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("requests = %v, want %v", paths, want)
	}
}

func TestClient_CreateOverlayNetwork_Disabled(t *testing.T) {
	client, err := NewClient(ClientConfig{BaseURL: "https://pve", TokenID: "a", TokenSecret: "b"}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.OverlayEnabled() {
		t.Fatal("OverlayEnabled() = true without a zone")
	}
	if _, err := client.CreateOverlayNetwork(context.Background(), "x", 100); !errors.Is(err, models.ErrValidationFailed) {
		t.Errorf("error = %v, want ErrValidationFailed", err)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{rejected("x", 400, nil), "rejected"},
		{malformed("x", "bad", nil), "malformed"},
		{models.ErrClusterUnreachable, "unreachable"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
