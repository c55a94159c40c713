package handlers

import (
	"net/http/httptest"
	"testing"

	ws "github.com/homestay-booking/backend/internal/websocket"
)

func TestHandleClientMessage(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantType ws.MessageType
	}{
		{"ping", `{"type":"ping"}`, ws.TypePong},
		{"unknown type", `{"type":"subscribe"}`, ws.TypeError},
		{"not json", `ping`, ws.TypeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handleClientMessage([]byte(tt.message)); got.Type != tt.wantType {
				t.Errorf("type = %q, want %q", got.Type, tt.wantType)
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"listed", []string{"https://homestay.example"}, "https://homestay.example", true},
		{"unlisted", []string{"https://homestay.example"}, "https://evil.example", false},
		{"no origin header", []string{"https://homestay.example"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("originChecker() = %v, want %v", got, tt.want)
			}
		})
	}
}
