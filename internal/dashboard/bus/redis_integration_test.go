//go:build integration

package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradegate/internal/dashboard/bus"
	proposal "gradegate/internal/proposal/models"
	id "gradegate/pkg/domain"
	"gradegate/pkg/testutil/containers"
)

func TestRedisBusCrossInstance(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	channel := "test:" + uuid.NewString()
	publisher := bus.NewRedis(rc.Client, bus.WithChannel(channel))
	subscriber := bus.NewRedis(rc.Client, bus.WithChannel(channel))

	changes, err := subscriber.Subscribe(ctx)
	require.NoError(t, err)

	want := proposal.Change{
		Kind:       proposal.ChangeApproved,
		ProposalID: id.NewProposalID(),
		LearnerID:  id.LearnerID(uuid.New()),
		TenantID:   id.TenantID(uuid.New()),
		Subject:    id.SubjectScience,
		At:         time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.Publish(ctx, want))

	select {
	case got := <-changes:
		assert.Equal(t, want.ProposalID, got.ProposalID)
		assert.Equal(t, want.Kind, got.Kind)
		assert.True(t, want.At.Equal(got.At))
	case <-ctx.Done():
		t.Fatal("change not received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-changes
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}
