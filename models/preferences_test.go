package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuietHoursDefer(t *testing.T) {
	overnight := QuietHours{Enabled: true, Start: "22:00", End: "08:00", Timezone: "UTC"}
	at := func(s string) time.Time {
		v, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return v
	}

	tests := []struct {
		name string
		q    QuietHours
		in   string
		want string
	}{
		{"before window", overnight, "2025-03-01T21:59:00Z", "2025-03-01T21:59:00Z"},
		{"late evening rolls to next morning", overnight, "2025-03-01T23:30:00Z", "2025-03-02T08:00:00Z"},
		{"early morning waits for end", overnight, "2025-03-02T03:00:00Z", "2025-03-02T08:00:00Z"},
		{"end is outside the window", overnight, "2025-03-02T08:00:00Z", "2025-03-02T08:00:00Z"},
		{"disabled", QuietHours{Start: "22:00", End: "08:00", Timezone: "UTC"}, "2025-03-01T23:30:00Z", "2025-03-01T23:30:00Z"},
		{"empty window", QuietHours{Enabled: true, Start: "10:00", End: "10:00", Timezone: "UTC"}, "2025-03-01T10:00:00Z", "2025-03-01T10:00:00Z"},
		{"daytime window", QuietHours{Enabled: true, Start: "12:00", End: "14:00", Timezone: "UTC"}, "2025-03-01T13:15:00Z", "2025-03-01T14:00:00Z"},
		// 05:00 UTC is 23:00 the previous evening in Chicago (CST, UTC-6)
		{"user timezone", QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "America/Chicago"}, "2025-03-01T05:00:00Z", "2025-03-01T13:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, at(tt.want), tt.q.Defer(at(tt.in)))
		})
	}
}

func TestQuietHoursHolds(t *testing.T) {
	q := QuietHours{Enabled: true, Start: "22:00", End: "08:00", Timezone: "UTC", Exceptions: []Trigger{TriggerPIIRequest}}
	assert.True(t, q.Holds(TriggerNewMatch, PriorityLow))
	assert.False(t, q.Holds(TriggerNewMatch, PriorityCritical), "critical items ignore quiet hours")
	assert.False(t, q.Holds(TriggerPIIRequest, PriorityMedium), "exceptions ignore quiet hours")
	q.Enabled = false
	assert.False(t, q.Holds(TriggerNewMatch, PriorityLow))
}

func TestQuietHoursValidate(t *testing.T) {
	valid := QuietHours{Start: "22:00", End: "08:00", Timezone: "Europe/Berlin"}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Start = "25:00"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Timezone = "Mars/Olympus"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Exceptions = []Trigger{"bogus"}
	assert.Error(t, bad.Validate())
}

func TestPreferencesAllowed(t *testing.T) {
	p := DefaultPreferences("alice", time.Time{})
	p.Channels[TriggerWeeklyDigest] = []Channel{}

	assert.Equal(t, []Channel{ChannelEmail}, p.Allowed(TriggerNewMatch, []Channel{ChannelEmail, ChannelSMS}))
	assert.Empty(t, p.Allowed(TriggerProfileView, []Channel{ChannelEmail}))
	assert.Empty(t, p.Allowed(TriggerWeeklyDigest, []Channel{ChannelEmail, ChannelPush}), "empty list is an opt-out")
	assert.Equal(t, []Channel{ChannelSMS}, p.Allowed(TriggerPIIGranted, []Channel{ChannelSMS}), "unlisted triggers pass through")
}

func TestExpandStatuses(t *testing.T) {
	assert.Equal(t, []QueueStatus{QueueStatusPending, QueueStatusScheduled}, ExpandStatuses([]string{"queued"}))
	assert.Equal(t, []QueueStatus{QueueStatusFailed, QueueStatusError, QueueStatusCancelled},
		ExpandStatuses([]string{"failed", "error"}), "duplicates are dropped")
	assert.Empty(t, ExpandStatuses([]string{"bogus"}))
}
