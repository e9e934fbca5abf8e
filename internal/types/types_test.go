package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatNotificationMessage(t *testing.T) {
	tcases := []struct {
		name     string
		n        Notification
		expected string
	}{
		{
			name:     "vibe with sender",
			n:        Notification{Type: NotificationVibe, SenderName: "Ana", VibeType: VibeLong},
			expected: "Ana sent you a long vibe",
		},
		{
			name:     "vibe without sender or type",
			n:        Notification{Type: NotificationVibe},
			expected: "Someone sent you a new vibe",
		},
		{
			name:     "message",
			n:        Notification{Type: NotificationMessage, SenderName: "Ben"},
			expected: "Ben sent you a message",
		},
		{
			name:     "join",
			n:        Notification{Type: NotificationJoin},
			expected: "Someone joined your connection",
		},
		{
			name:     "unknown type with stored message",
			n:        Notification{Type: "system", Message: "Welcome!"},
			expected: "Welcome!",
		},
		{
			name:     "unknown type without message",
			n:        Notification{Type: "system"},
			expected: "New notification",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatNotificationMessage(tc.n))
		})
	}
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidVibeType(VibeShort))
	assert.True(t, ValidVibeType(VibeLong))
	assert.False(t, ValidVibeType("medium"))

	assert.True(t, ValidRetention(RetentionNever))
	assert.True(t, ValidRetention(RetentionSevenDays))
	assert.True(t, ValidRetention(RetentionAfterView))
	assert.False(t, ValidRetention("forever"))
}
