package mqtt

import (
	"errors"
	"testing"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"announce", topics.DeviceAnnounce("lamp-1"), "hearth/announce/lamp-1"},
		{"announce wildcard", topics.DeviceAnnounceWildcard(), "hearth/announce/+"},
		{"report", topics.DeviceReport("lamp-1"), "hearth/announce/lamp-1/state"},
		{"report wildcard", topics.DeviceReportWildcard(), "hearth/announce/+/state"},
		{"set", topics.DeviceSet("lamp-1"), "hearth/set/lamp-1"},
		{"core state", topics.CoreDeviceState("lamp-1"), "hearth/device/lamp-1/state"},
		{"system status", topics.SystemStatus(), "hearth/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseAnnounceTopic(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		topic    string
		wantID   string
		isReport bool
		wantErr  bool
	}{
		{"hearth/announce/lamp-1", "lamp-1", false, false},
		{"hearth/announce/lamp-1/state", "lamp-1", true, false},
		{"hearth/announce/", "", false, true},
		{"hearth/set/lamp-1", "", false, true},
		{"other/announce/lamp-1", "", false, true},
		{"hearth/announce/lamp-1/extra", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, isReport, err := topics.ParseAnnounceTopic(tt.topic)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidTopic) {
					t.Errorf("error = %v, want ErrInvalidTopic", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.wantID || isReport != tt.isReport {
				t.Errorf("got (%q, %v), want (%q, %v)", id, isReport, tt.wantID, tt.isReport)
			}
		})
	}
}
