package config

import (
	"testing"
	"time"
)

func TestParseSeeds(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []string{},
		},
		{
			name:  "single peer",
			input: "127.0.0.1:5001",
			want:  []string{"127.0.0.1:5001"},
		},
		{
			name:  "multiple peers",
			input: "127.0.0.1:5001,127.0.0.1:5002,localhost:5003",
			want:  []string{"127.0.0.1:5001", "127.0.0.1:5002", "localhost:5003"},
		},
		{
			name:  "with spaces and trailing comma",
			input: " 127.0.0.1:5001 , 127.0.0.1:5002 ,",
			want:  []string{"127.0.0.1:5001", "127.0.0.1:5002"},
		},
		{
			name:  "ipv6",
			input: "[::1]:5001",
			want:  []string{"[::1]:5001"},
		},
		{
			name:    "invalid format - no port",
			input:   "127.0.0.1",
			wantErr: true,
		},
		{
			name:    "invalid format - empty host",
			input:   ":5001",
			wantErr: true,
		},
		{
			name:    "invalid format - bad port",
			input:   "localhost:99999",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSeeds(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSeeds() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if len(got) != len(tt.want) {
					t.Errorf("ParseSeeds() length = %d, want %d", len(got), len(tt.want))
					return
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("ParseSeeds()[%d] = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

func TestParseAddr(t *testing.T) {
	host, port, err := ParseAddr("localhost:5000")
	if err != nil {
		t.Fatalf("ParseAddr() error = %v", err)
	}
	if host != "localhost" || port != 5000 {
		t.Errorf("ParseAddr() = %s, %d, want localhost, 5000", host, port)
	}
}

func TestConfig_Addr(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", Port: 5001}
	if cfg.Addr() != "127.0.0.1:5001" {
		t.Errorf("Expected 127.0.0.1:5001, got %s", cfg.Addr())
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid, got %v", err)
	}

	bad := Config{
		Host:        "",
		Port:        0,
		Replicas:    0,
		CallTimeout: -time.Second,
		Seeds:       []string{"nope"},
	}
	if err := bad.Validate(); err == nil {
		t.Error("Expected validation error")
	}
}
