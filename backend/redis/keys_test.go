package redis

import "testing"

func TestKeys(t *testing.T) {
	k := newKeys("emails")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"job blob", k.job("job_abc"), "strand:emails:job:job_abc"},
		{"status set", k.status("waiting"), "strand:emails:status:waiting"},
		{"ready zset", k.ready(), "strand:emails:ready"},
		{"delayed zset", k.delayed(), "strand:emails:delayed"},
		{"paused flag", k.paused(), "strand:emails:paused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("key = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestKeys_QueuesDoNotCollide(t *testing.T) {
	a := newKeys("emails")
	b := newKeys("reports")
	if a.ready() == b.ready() {
		t.Error("different queues share a ready key")
	}
}
