package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "gradegate/pkg/domain"
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	learnerID := id.LearnerID(uuid.New())
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	events := []Event{
		{Action: ActionProposalCreated, Timestamp: at, LearnerID: learnerID, Subject: id.SubjectMath, FromLevel: 7, ToLevel: 5, ActorID: "engine"},
		{Action: ActionProposalApproved, Timestamp: at, LearnerID: learnerID, Subject: id.SubjectMath, FromLevel: 7, ToLevel: 5, ActorID: "teacher-1", Notes: "ok"},
	}
	require.NoError(t, sink.Deliver(context.Background(), events))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "audit event", rec["msg"])
	assert.Equal(t, "audit", rec["component"])
	assert.Equal(t, string(ActionProposalApproved), rec["action"])
	assert.Equal(t, learnerID.String(), rec["learner_id"])
	assert.Equal(t, float64(5), rec["to_level"])
	assert.Equal(t, "teacher-1", rec["actor_id"])
}
