package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
)

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name   string
		detail *domain.CallDetail
		want   domain.AttemptStatus
	}{
		{"nil detail", nil, domain.AttemptError},
		{"no answer", &domain.CallDetail{Status: "no-answer"}, domain.AttemptNoAnswer},
		{"busy", &domain.CallDetail{Status: "busy"}, domain.AttemptBusy},
		{"failed", &domain.CallDetail{Status: "failed"}, domain.AttemptFailed},
		{"canceled", &domain.CallDetail{Status: "canceled"}, domain.AttemptCanceled},
		{"machine start", &domain.CallDetail{Status: "completed", AnsweredBy: "machine_start"}, domain.AttemptVoicemail},
		{"machine end beep", &domain.CallDetail{Status: "completed", AnsweredBy: "machine_end_beep"}, domain.AttemptVoicemail},
		{"machine uppercase", &domain.CallDetail{Status: "completed", AnsweredBy: "MACHINE_END_SILENCE"}, domain.AttemptVoicemail},
		{"fax treated as answered", &domain.CallDetail{Status: "completed", AnsweredBy: "fax"}, domain.AttemptSuccess},
		{"human", &domain.CallDetail{Status: "completed", AnsweredBy: "human"}, domain.AttemptSuccess},
		{"no amd result", &domain.CallDetail{Status: "completed"}, domain.AttemptSuccess},
		{"in progress treated as answered", &domain.CallDetail{Status: "in-progress"}, domain.AttemptSuccess},
		{"terminal status wins over amd", &domain.CallDetail{Status: "busy", AnsweredBy: "machine_start"}, domain.AttemptBusy},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyOutcome(tc.detail))
		})
	}
}
