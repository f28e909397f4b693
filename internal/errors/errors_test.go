package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/locksvc"
	"github.com/vibevesselio/snapsync/internal/notion"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"lock contention", fmt.Errorf("run: %w", locksvc.ErrNotAcquired), KindContention},
		{"missing snapshot", fmt.Errorf("load: %w", drive.ErrNotFound), KindNotFound},
		{"remote forbidden", &notion.Error{Status: http.StatusForbidden}, KindAccess},
		{"remote missing", &notion.Error{Status: http.StatusNotFound}, KindNotFound},
		{"remote rate limited", &notion.Error{Status: http.StatusTooManyRequests}, KindRateLimited},
		{"remote server error", &notion.Error{Status: http.StatusBadGateway}, KindTransient},
		{"storage unauthorized", &drive.Error{Status: http.StatusUnauthorized}, KindAccess},
		{"storage server error", &drive.Error{Status: http.StatusInternalServerError}, KindTransient},
		{"wrapped api error", fmt.Errorf("update: %w", &notion.Error{Status: 503}), KindTransient},
		{"plain error", fmt.Errorf("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
