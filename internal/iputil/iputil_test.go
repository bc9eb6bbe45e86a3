package iputil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateIPs(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		count  int
		want   []string
	}{{
		name:   "IPv4/24",
		prefix: "192.168.0.0/24",
		count:  3,
		want:   []string{"192.168.0.0", "192.168.0.1", "192.168.0.2"},
	}, {
		name:   "IPv4/31",
		prefix: "192.168.0.0/31",
		count:  3,
		want:   []string{"192.168.0.0", "192.168.0.1"},
	}, {
		name:   "Invalid prefix",
		prefix: "192.168.0.0/24/24",
		count:  3,
		want:   nil,
	}, {
		name:   "Invalid count",
		prefix: "192.168.0.0/24",
		count:  0,
		want:   nil,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateIPs(tt.prefix, tt.count)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GenerateIPs() returned diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateWithStep(t *testing.T) {
	v4, err := GenerateIPsWithStep("10.0.0.0", 3, "0.0.1.0")
	if err != nil {
		t.Fatalf("GenerateIPsWithStep() unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"10.0.0.0", "10.0.1.0", "10.0.2.0"}, v4); diff != "" {
		t.Errorf("GenerateIPsWithStep() returned diff (-want +got):\n%s", diff)
	}
	v6, err := GenerateIPv6sWithStep("2400::", 3, "0:0:0:1::")
	if err != nil {
		t.Fatalf("GenerateIPv6sWithStep() unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"2400::", "2400:0:0:1::", "2400:0:0:2::"}, v6); diff != "" {
		t.Errorf("GenerateIPv6sWithStep() returned diff (-want +got):\n%s", diff)
	}
	if _, err := GenerateIPv6sWithStep("10.0.0.0", 1, "::1"); err == nil {
		t.Errorf("GenerateIPv6sWithStep(v4 start) succeeded, want error")
	}
}

func TestGenerateMACs(t *testing.T) {
	got := GenerateMACs("02:00:00:00:00:fe", 3, "00:00:00:00:00:01")
	want := []string{"02:00:00:00:00:fe", "02:00:00:00:00:ff", "02:00:00:00:01:00"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GenerateMACs() returned diff (-want +got):\n%s", diff)
	}
}
