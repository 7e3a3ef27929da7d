package shelly

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"
)

const identifyReply = `{"id":"shellyplus1pm-a8032ab12345","name":"porch","mac":"A8032AB12345","model":"SNSW-001P16EU","gen":2,"fw_id":"20231107-164738/1.0.8-g","ver":"1.0.8","app":"Plus1PM","auth_en":false}`

func TestNewClient(t *testing.T) {
	tests := []struct {
		name string
		port uint16
		want string
	}{
		{name: "default port", port: 80, want: "http://192.168.1.20"},
		{name: "zero port", port: 0, want: "http://192.168.1.20"},
		{name: "custom port", port: 8080, want: "http://192.168.1.20:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(netip.MustParseAddr("192.168.1.20"), tt.port)
			if client.BaseURL != tt.want {
				t.Errorf("BaseURL = %s, want %s", client.BaseURL, tt.want)
			}
			if client.Username != DefaultUsername {
				t.Errorf("Username = %s, want %s", client.Username, DefaultUsername)
			}
			if client.HTTPClient.Timeout != DefaultTimeout {
				t.Errorf("Timeout = %v, want %v", client.HTTPClient.Timeout, DefaultTimeout)
			}
		})
	}
}

func TestSetTimeoutAndAuth(t *testing.T) {
	client := NewClientWithURL("http://192.168.1.20/")
	client.SetTimeout(5 * time.Second)
	client.SetAuth("admin", "secret")

	if client.BaseURL != "http://192.168.1.20" {
		t.Errorf("BaseURL = %s, trailing slash should be trimmed", client.BaseURL)
	}
	if client.HTTPClient.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.HTTPClient.Timeout)
	}
	if client.Password != "secret" {
		t.Errorf("Password = %s, want secret", client.Password)
	}
}

func TestMethodFor(t *testing.T) {
	tests := []struct {
		component  string
		wantMethod string
		wantID     any
		wantErr    bool
	}{
		{component: "shelly", wantMethod: "Shelly.GetStatus"},
		{component: "SWITCH", wantMethod: "Switch.GetStatus"},
		{component: "switch:0", wantMethod: "Switch.GetStatus", wantID: 0},
		{component: "cover:1", wantMethod: "Cover.GetStatus", wantID: 1},
		{component: "switch:x", wantErr: true},
		{component: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			method, params, err := MethodFor(tt.component, "GetStatus")
			if (err != nil) != tt.wantErr {
				t.Fatalf("MethodFor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if method != tt.wantMethod {
				t.Errorf("method = %s, want %s", method, tt.wantMethod)
			}
			if tt.wantID == nil && params != nil {
				t.Errorf("params = %v, want nil", params)
			}
			if tt.wantID != nil && params["id"] != tt.wantID {
				t.Errorf("params[id] = %v, want %v", params["id"], tt.wantID)
			}
		})
	}
}

func TestIdentify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shelly" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, identifyReply)
	}))
	defer server.Close()

	ident, err := NewClientWithURL(server.URL).Identify(context.Background())
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if ident.Name != "porch" || ident.Generation != 2 || ident.MAC != "A8:03:2A:B1:23:45" {
		t.Errorf("Identify() = %+v", ident)
	}
}

func TestIdentify_NotShelly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"tasmota-1"}`)
	}))
	defer server.Close()

	_, err := NewClientWithURL(server.URL).Identify(context.Background())
	if !isType(err, ErrTypeNotShelly) {
		t.Errorf("Identify() error = %v, want ErrTypeNotShelly", err)
	}
}

func TestCall_PostsJSONParams(t *testing.T) {
	var gotMethod, gotPath, gotType string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"id":0,"output":true,"apower":12.5}`)
	}))
	defer server.Close()

	status, err := NewClientWithURL(server.URL).GetStatus(context.Background(), "switch:0")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/rpc/Switch.GetStatus" {
		t.Errorf("request = %s %s, want POST /rpc/Switch.GetStatus", gotMethod, gotPath)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %s", gotType)
	}
	if gotBody["id"] != float64(0) {
		t.Errorf("body = %v, want id 0", gotBody)
	}
	if status["output"] != true {
		t.Errorf("status = %v", status)
	}
}

func TestCall_EmptyParamsSendsObject(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"name":"porch"}`)
	}))
	defer server.Close()

	if _, err := NewClientWithURL(server.URL).GetConfig(context.Background(), "sys"); err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if string(body) != "{}" {
		t.Errorf("body = %q, want {}", body)
	}
}

func TestCall_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
		wantCode int
	}{
		{name: "rpc error object", status: http.StatusBadRequest, body: `{"code":-105,"message":"Argument 'id', value 9 not found!"}`, wantType: ErrTypeRPC, wantCode: -105},
		{name: "plain 404", status: http.StatusNotFound, body: "Not Found", wantType: ErrTypeHTTP},
		{name: "unauthorized", status: http.StatusUnauthorized, wantType: ErrTypeAuth},
		{name: "not json", status: http.StatusOK, body: "<html>", wantType: ErrTypeParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewClientWithURL(server.URL).Call(context.Background(), "Switch.GetStatus", nil)
			devErr, ok := err.(*DeviceError)
			if !ok {
				t.Fatalf("Call() error = %v, want *DeviceError", err)
			}
			if devErr.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", devErr.Type, tt.wantType)
			}
			if devErr.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", devErr.Code, tt.wantCode)
			}
		})
	}
}

func TestCall_BasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != DefaultUsername || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	}))
	defer server.Close()

	client := NewClientWithURL(server.URL)
	if _, err := client.Call(context.Background(), "Shelly.GetStatus", nil); !IsAuthError(err) {
		t.Errorf("Call() without password error = %v, want auth error", err)
	}

	client.SetAuth(DefaultUsername, "secret")
	if _, err := client.Call(context.Background(), "Shelly.GetStatus", nil); err != nil {
		t.Errorf("Call() with password error = %v", err)
	}
}

func TestCall_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClientWithURL(url).Call(context.Background(), "Shelly.GetStatus", nil)
	if !IsNetworkError(err) {
		t.Errorf("Call() error = %v, want network error", err)
	}
}
