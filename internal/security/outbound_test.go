package security

import (
	"testing"
	"time"
)

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"httpsは許可", "https://datahub.berkeley.edu/hub/api", false},
		{"httpは許可", "http://hub.internal:8000/hub/api", false},
		{"大文字スキームも許可", "HTTPS://datahub.berkeley.edu", false},
		{"空文字列は拒否", "", true},
		{"ftpスキームは拒否", "ftp://example.com/file", true},
		{"fileスキームは拒否", "file:///etc/passwd", true},
		{"ホストなしは拒否", "https://", true},
		{"スキームなしは拒否", "datahub.berkeley.edu/hub/api", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.url)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateBaseURL(%q) はエラーを返すべき", tt.url)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateBaseURL(%q) がエラーを返した: %v", tt.url, err)
			}
		})
	}
}

func TestNewClient_SetsTimeout(t *testing.T) {
	client := NewClient(30 * time.Second)
	if client == nil {
		t.Fatal("NewClient は nil を返してはならない")
	}
	if client.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", client.Timeout)
	}
}

func TestNewStrictClient_ReturnsNonNil(t *testing.T) {
	client := NewStrictClient(30 * time.Second)
	if client == nil {
		t.Fatal("NewStrictClient は nil を返してはならない")
	}
}

func TestIsAllowedScheme(t *testing.T) {
	if !isAllowedScheme("http") {
		t.Error("httpは許可されるべき")
	}
	if !isAllowedScheme("HTTPS") {
		t.Error("HTTPSは大文字小文字を区別せず許可されるべき")
	}
	if isAllowedScheme("gopher") {
		t.Error("gopherは許可されてはならない")
	}
}
