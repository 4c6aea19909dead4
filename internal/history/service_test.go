package history_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/history"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(maxItems int) (*history.Service, *history.InMemoryRepository) {
	repo := history.NewInMemoryRepository()
	clock := &stepClock{now: time.Date(2030, 3, 4, 6, 0, 0, 0, time.UTC)}
	return history.NewService(history.ServiceConfig{
		Repository: repo,
		MaxItems:   maxItems,
		Now:        clock.Now,
	}), repo
}

func TestService_Record(t *testing.T) {
	service, _ := newTestService(0)
	ctx := context.Background()

	best := &forecast.BestWindow{
		DepartAt:    time.Date(2030, 3, 4, 8, 20, 0, 0, time.UTC),
		ETAMinutes:  27,
		SavingVsNow: 0.18,
		Risk:        0.42,
	}

	item, err := service.Record(ctx, "usr_1", history.InputFromBest(history.KindAnalyze, " Zocalo, CDMX ", "19.39,-99.28", best))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(item.ID, "hst_"))
	assert.Equal(t, "Zocalo, CDMX", item.Origin)
	assert.Equal(t, 27, item.ETAMinutes)
	assert.Equal(t, history.KindAnalyze, item.Kind)
	assert.True(t, item.BestDepartAt.Equal(best.DepartAt))

	items, err := service.List(ctx, "usr_1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
}

func TestService_Record_Validation(t *testing.T) {
	service, _ := newTestService(0)
	ctx := context.Background()

	_, err := service.Record(ctx, "", history.RecordInput{Origin: "a", Destination: "b"})
	assert.ErrorIs(t, err, history.ErrOwnerRequired)

	_, err = service.Record(ctx, "usr_1", history.RecordInput{Origin: "a", Destination: "  "})
	assert.ErrorIs(t, err, history.ErrEndpointRequired)
}

func TestService_Record_TrimsToCap(t *testing.T) {
	service, _ := newTestService(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := service.Record(ctx, "usr_1", history.RecordInput{
			Origin:      fmt.Sprintf("origin-%d", i),
			Destination: "work",
		})
		require.NoError(t, err)
	}
	_, err := service.Record(ctx, "usr_2", history.RecordInput{Origin: "home", Destination: "work"})
	require.NoError(t, err)

	items, err := service.List(ctx, "usr_1", 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "origin-4", items[0].Origin)
	assert.Equal(t, "origin-2", items[2].Origin)

	others, err := service.List(ctx, "usr_2", 0)
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestService_List_EmptyIsNotNil(t *testing.T) {
	service, _ := newTestService(0)

	items, err := service.List(context.Background(), "usr_1", 10)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestService_Delete(t *testing.T) {
	service, _ := newTestService(0)
	ctx := context.Background()

	item, err := service.Record(ctx, "usr_1", history.RecordInput{Origin: "home", Destination: "work"})
	require.NoError(t, err)

	assert.ErrorIs(t, service.Delete(ctx, "usr_2", item.ID), history.ErrItemNotFound)
	require.NoError(t, service.Delete(ctx, "usr_1", item.ID))
	assert.ErrorIs(t, service.Delete(ctx, "usr_1", item.ID), history.ErrItemNotFound)
}
