package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"discussion-facilitator/backend/conversation/export"
	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, &fakeFacilitator{})
	ctx := context.Background()

	_, err := h.service.Submit(ctx, "ana", "   ")
	assert.ErrorIs(t, err, repository.ErrEmptyContent)

	_, err = h.service.Submit(ctx, " \x07 ", "hello")
	assert.ErrorIs(t, err, ErrInvalidAuthor)

	_, err = h.service.Submit(ctx, "gpt4o", "hello")
	assert.ErrorIs(t, err, repository.ErrReservedAuthor)

	_, err = h.service.Submit(ctx, "ana", strings.Repeat("x", 4001))
	assert.ErrorIs(t, err, ErrContentTooLong)

	msgs, err := h.service.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, h.notifier.Events())
}

func TestSubmitSanitizesAuthorAndNotifies(t *testing.T) {
	h := newHarness(t, &fakeFacilitator{})
	ctx := context.Background()

	res, err := h.service.Submit(ctx, "  ana\n", " hi ")
	require.NoError(t, err)
	assert.Equal(t, "ana", res.Message.Author)
	assert.Equal(t, "hi", res.Message.Content)
	assert.Equal(t, OutcomeNotDue, res.Facilitator.Outcome)

	assert.Equal(t, []models.ChangeEvent{{LastID: res.Message.ID}}, h.notifier.Events())
}

func TestSubmitNotifiesFacilitatorMessage(t *testing.T) {
	h := newHarness(t, &fakeFacilitator{})
	h.appendHumans(t, 9)

	res, err := h.service.Submit(context.Background(), "ana", "tenth")
	require.NoError(t, err)
	require.Equal(t, OutcomeResolved, res.Facilitator.Outcome)

	events := h.notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, res.Facilitator.Message.ID, events[1].LastID)
}

func TestListAfterID(t *testing.T) {
	h := newHarness(t, &fakeFacilitator{})
	h.appendHumans(t, 3)
	ctx := context.Background()

	all, err := h.service.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	tail, err := h.service.List(ctx, all[0].ID)
	require.NoError(t, err)
	assert.Len(t, tail, 2)
}

func TestClearResetsCountAndNotifies(t *testing.T) {
	fac := &fakeFacilitator{}
	h := newHarness(t, fac)
	ctx := context.Background()
	h.appendHumans(t, 10)
	_, err := h.service.Evaluate(ctx)
	require.NoError(t, err)

	require.NoError(t, h.service.Clear(ctx))
	p, err := h.service.Participants(ctx)
	require.NoError(t, err)
	assert.Zero(t, p.HumanMessages)
	assert.Zero(t, p.Count)

	events := h.notifier.Events()
	assert.True(t, events[len(events)-1].Cleared)

	// the crossing at 10 is reachable again
	h.appendHumans(t, 10)
	res, err := h.service.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, res.Outcome)
	assert.Equal(t, 2, fac.Calls())
}

func TestParticipants(t *testing.T) {
	h := newHarness(t, &fakeFacilitator{})
	h.appendHumans(t, 12)

	p, err := h.service.Participants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, p.Count)
	assert.Equal(t, []string{"student0", "student1", "student2", "student3"}, p.Members)
	assert.Equal(t, 12, p.HumanMessages)
	assert.Equal(t, 10, p.Threshold)
	assert.Equal(t, 20, p.NextCrossing)
	assert.True(t, p.Facilitator)
	assert.Equal(t, "School uniforms", p.Topic)
}

func TestExport(t *testing.T) {
	h := newHarness(t, &fakeFacilitator{})
	h.appendHumans(t, 2)

	out, err := h.service.Export(context.Background(), export.Text, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, string(out), "Topic: School uniforms")
	assert.Contains(t, string(out), "student1: point 1")
}
