package moderation

import "testing"

func TestCheck_CharFlood(t *testing.T) {
	f := NewFilter()

	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"long repeat", "aaaaaaaaaa", true},
		{"exactly threshold", "aaaaaaaa", true},
		{"below threshold", "aaaaaaa", false},
		{"repeat inside word", "yessssssssss!", true},
		{"alternating chars", "abababababab", false},
		{"emoji repeat", "🔥🔥🔥🔥🔥🔥🔥🔥", true},
		{"normal text", "that was so funny", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && (result.Reason != ReasonFlood || result.Term != "char_flood") {
				t.Errorf("Check(%q) = %+v, want char_flood", tt.input, result)
			}
		})
	}
}

func TestCheck_WordFlood(t *testing.T) {
	f := NewFilter()

	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"four repeats", "spam spam spam spam", true},
		{"case insensitive repeats", "Spam SPAM spam sPaM", true},
		{"three repeats ok", "spam spam spam", false},
		{"non consecutive", "spam a spam b spam c spam", false},
		{"normal sentence", "see you at the usual place tonight", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && (result.Reason != ReasonFlood || result.Term != "word_flood") {
				t.Errorf("Check(%q) = %+v, want word_flood", tt.input, result)
			}
		})
	}
}
