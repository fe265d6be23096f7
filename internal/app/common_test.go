package app

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/simsnap/internal/snapshots"
)

func TestFindSnapshot(t *testing.T) {
	list := []*snapshots.Snapshot{
		{ID: "20240316T090000.000Z", DefaultName: "20240316T090000.000Z", DisplayName: "Logged In"},
		{ID: "20240315T090000.000Z", DefaultName: "20240315T090000.000Z"},
		{ID: "20240314T090000.000Z", DefaultName: "20240314T090000.000Z", DisplayName: "2"},
	}

	tests := []struct {
		name   string
		key    string
		wantID string
	}{
		{"latest keyword", "latest", "20240316T090000.000Z"},
		{"latest uppercase", "LATEST", "20240316T090000.000Z"},
		{"exact id", "20240315T090000.000Z", "20240315T090000.000Z"},
		{"display name case-insensitive", "logged in", "20240316T090000.000Z"},
		{"name wins over position", "2", "20240314T090000.000Z"},
		{"position", "3", "20240314T090000.000Z"},
		{"position out of range", "4", ""},
		{"zero position", "0", ""},
		{"unknown", "nope", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, ok := findSnapshot(list, tt.key)
			if tt.wantID == "" {
				if ok {
					t.Errorf("findSnapshot(%q) = %s, want no match", tt.key, snap.ID)
				}
				return
			}
			if !ok {
				t.Fatalf("findSnapshot(%q) found nothing", tt.key)
			}
			if snap.ID != tt.wantID {
				t.Errorf("findSnapshot(%q) = %s, want %s", tt.key, snap.ID, tt.wantID)
			}
		})
	}

	if _, ok := findSnapshot(nil, "latest"); ok {
		t.Error("expected no match in an empty list")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"yes", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"sure\n", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.input), &out, "Continue?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if out.String() != "Continue? [y/N]: " {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestReadPayload(t *testing.T) {
	data, err := readPayload(strings.NewReader(`{"aps":{}}`), "-")
	if err != nil {
		t.Fatalf("readPayload(stdin) error: %v", err)
	}
	if string(data) != `{"aps":{}}` {
		t.Errorf("payload = %q", data)
	}

	if _, err := readPayload(nil, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing payload file")
	}
}
