package domain_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/janhstrom/mindreminder-sub000/internal/domain"
	"github.com/janhstrom/mindreminder-sub000/internal/persistence/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock { return &testClock{now: now} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, days)
}

func (c *testClock) Shift(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	repo    *memory.Repository
	clock   *testClock
	service *domain.Service
}

func newFixture(t *testing.T, opts ...domain.Option) fixture {
	t.Helper()
	repo := memory.NewRepository()
	clock := newTestClock(time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC))
	opts = append([]domain.Option{domain.WithClock(clock), domain.WithReadRetryDelay(time.Millisecond)}, opts...)
	return fixture{repo: repo, clock: clock, service: domain.NewService(repo, repo, opts...)}
}

func (f fixture) createDaily(t *testing.T, userID string) *domain.MicroActionView {
	t.Helper()
	view, err := f.service.CreateMicroAction(context.Background(), userID, domain.CreateMicroActionInput{
		Title:     "Drink a glass of water",
		Category:  domain.CategoryHealth,
		Frequency: domain.FrequencyDaily,
		Duration:  "1 min",
	})
	require.NoError(t, err)
	return view
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := newFixture(t)

	view, err := f.service.CreateMicroAction(context.Background(), "user-1", domain.CreateMicroActionInput{
		Title:    "  Stretch  ",
		Category: domain.CategoryMindfulness,
	})
	require.NoError(t, err)
	require.NotEmpty(t, view.ID)
	require.Equal(t, "Stretch", view.Title)
	require.Equal(t, domain.FrequencyDaily, view.Frequency)
	require.True(t, view.IsActive)
	require.Zero(t, view.CurrentStreak)
	require.Zero(t, view.BestStreak)
	require.Zero(t, view.TotalCompletions)
	require.Equal(t, domain.StatusDueToday, view.Status)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]domain.CreateMicroActionInput{
		"empty title":       {Title: " ", Category: domain.CategoryHealth},
		"unknown category":  {Title: "Read", Category: "hobbies"},
		"unknown frequency": {Title: "Read", Category: domain.CategoryLearning, Frequency: "hourly"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.CreateMicroAction(ctx, "user-1", input)
			require.ErrorIs(t, err, domain.ErrValidation)
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
		})
	}
}

func TestOperationsRequireUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.ListMicroActions(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = f.service.GetStats(context.Background(), " ")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestStreakAcrossMissedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")

	var result *domain.CompletionResult
	var err error
	for i := 0; i < 3; i++ {
		result, err = f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
		require.NoError(t, err)
		f.clock.Advance(1)
	}
	require.Equal(t, 3, result.View.CurrentStreak)
	require.Equal(t, 3, result.View.BestStreak)
	require.Equal(t, 3, result.View.TotalCompletions)

	// day 4 skipped
	f.clock.Advance(1)
	result, err = f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.View.CurrentStreak)
	require.Equal(t, 3, result.View.BestStreak)
	require.Equal(t, 4, result.View.TotalCompletions)
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")

	first, err := f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InsertCreated, first.Outcome)

	second, err := f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InsertExisting, second.Outcome)
	require.Equal(t, first.Event.ID, second.Event.ID)
	require.Equal(t, first.View.TotalCompletions, second.View.TotalCompletions)
	require.Equal(t, first.View.CurrentStreak, second.View.CurrentStreak)
	require.Equal(t, 1, f.repo.CompletionCount(habit.ID))
}

func TestUncompleteRestoresPreviousState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")

	for i := 0; i < 2; i++ {
		_, err := f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
		require.NoError(t, err)
		f.clock.Advance(1)
	}

	before, err := f.service.GetMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.False(t, before.CompletedToday)
	require.Equal(t, domain.StatusDueToday, before.Status)

	completed, err := f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.Equal(t, 3, completed.View.CurrentStreak)
	require.Equal(t, domain.StatusCompletedToday, completed.View.Status)

	after, err := f.service.UncompleteMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.Equal(t, before.CurrentStreak, after.CurrentStreak)
	require.Equal(t, before.TotalCompletions, after.TotalCompletions)
	require.Equal(t, before.CompletedToday, after.CompletedToday)
	require.Equal(t, domain.StatusDueToday, after.Status)
	// the best streak reached today is kept
	require.Equal(t, 3, after.BestStreak)

	again, err := f.service.UncompleteMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.Equal(t, after.TotalCompletions, again.TotalCompletions)
}

func TestBestStreakNeverDecreases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")

	steps := []string{"complete", "complete", "uncomplete", "complete", "next", "complete", "next", "next", "complete", "uncomplete", "next", "complete"}
	best := 0
	for _, step := range steps {
		var view *domain.MicroActionView
		switch step {
		case "complete":
			result, err := f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
			require.NoError(t, err)
			view = &result.View
		case "uncomplete":
			v, err := f.service.UncompleteMicroAction(ctx, "user-1", habit.ID)
			require.NoError(t, err)
			view = v
		case "next":
			f.clock.Advance(1)
			v, err := f.service.GetMicroAction(ctx, "user-1", habit.ID)
			require.NoError(t, err)
			view = v
		}
		require.GreaterOrEqual(t, view.BestStreak, best, "step %s", step)
		require.GreaterOrEqual(t, view.BestStreak, view.CurrentStreak)
		require.GreaterOrEqual(t, view.TotalCompletions, view.CurrentStreak)
		best = view.BestStreak
	}
}

func TestConcurrentCompletesWriteOneRow(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")

	var wg sync.WaitGroup
	results := make([]*domain.CompletionResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
		}()
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Outcome == domain.InsertCreated {
			created++
		}
	}
	require.Equal(t, 1, created)
	require.Equal(t, 1, f.repo.CompletionCount(habit.ID))

	view, err := f.service.GetMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.Equal(t, 1, view.TotalCompletions)
}

func TestUpdateRejectsOtherUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	habit := f.createDaily(t, "user-a")

	title := "hijacked"
	_, err := f.service.UpdateMicroAction(ctx, "user-b", habit.ID, domain.MicroActionPatch{Title: &title})
	require.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := f.service.GetMicroAction(ctx, "user-a", habit.ID)
	require.NoError(t, err)
	require.Equal(t, habit.Title, stored.Title)

	_, err = f.service.GetMicroAction(ctx, "user-b", habit.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.service.CompleteMicroAction(ctx, "user-b", habit.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateAppliesPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")

	inactive := false
	freq := domain.FrequencyWeekdays
	view, err := f.service.UpdateMicroAction(ctx, "user-1", habit.ID, domain.MicroActionPatch{IsActive: &inactive, Frequency: &freq})
	require.NoError(t, err)
	require.False(t, view.IsActive)
	require.Equal(t, domain.FrequencyWeekdays, view.Frequency)
	require.Equal(t, domain.StatusNotDueToday, view.Status)

	bad := domain.Category("chores")
	_, err = f.service.UpdateMicroAction(ctx, "user-1", habit.ID, domain.MicroActionPatch{Category: &bad})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteIsIdempotentAndCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")
	_, err := f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteMicroAction(ctx, "user-2", habit.ID))
	_, err = f.service.GetMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err, "another user's delete must not remove the record")

	require.NoError(t, f.service.DeleteMicroAction(ctx, "user-1", habit.ID))
	require.NoError(t, f.service.DeleteMicroAction(ctx, "user-1", habit.ID))
	require.Zero(t, f.repo.CompletionCount(habit.ID))

	_, err = f.service.GetMicroAction(ctx, "user-1", habit.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListPaginatesInCreationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, f.createDaily(t, "user-1").ID)
		f.clock.Shift(time.Minute)
	}
	f.createDaily(t, "user-2")

	first, next, err := f.service.ListMicroActionsPage(ctx, "user-1", nil, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, next)

	rest, next, err := f.service.ListMicroActionsPage(ctx, "user-1", next, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Nil(t, next)

	got := make([]string, 0, 5)
	for _, v := range append(first, rest...) {
		got = append(got, v.ID)
	}
	require.Equal(t, ids, got)

	all, err := f.service.ListMicroActions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestGetStatsEmpty(t *testing.T) {
	f := newFixture(t)

	stats, err := f.service.GetStats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Zero(t, stats.TotalActive)
	require.Zero(t, stats.CompletedToday)
	require.Zero(t, stats.WeeklyCompletions)
	require.NotNil(t, stats.CurrentStreaks)
	require.Empty(t, stats.CurrentStreaks)
	require.Zero(t, stats.LongestCurrentStreak())
}

func TestGetStatsUsesAndInvalidatesCache(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, domain.WithStatsCache(cache))
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")

	stats, err := f.service.GetStats(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalActive)
	require.Zero(t, stats.CompletedToday)
	require.Equal(t, 1, cache.sets)

	_, err = f.service.GetStats(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, cache.hits)

	_, err = f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)

	stats, err = f.service.GetStats(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, stats.CompletedToday)
	require.Equal(t, 1, stats.WeeklyCompletions)
	require.Equal(t, []int{1}, stats.CurrentStreaks)
}

func TestReadsRetryOnceOnTransportError(t *testing.T) {
	repo := &flakyRepo{Repository: memory.NewRepository(), getFailures: 1}
	clock := newTestClock(time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC))
	service := domain.NewService(repo, repo, domain.WithClock(clock), domain.WithReadRetryDelay(time.Millisecond))
	ctx := context.Background()

	view, err := service.CreateMicroAction(ctx, "user-1", domain.CreateMicroActionInput{Title: "Walk", Category: domain.CategoryHealth})
	require.NoError(t, err)

	_, err = service.GetMicroAction(ctx, "user-1", view.ID)
	require.NoError(t, err)
	require.Equal(t, 2, repo.getCalls)

	repo.getFailures = 2
	repo.getCalls = 0
	_, err = service.GetMicroAction(ctx, "user-1", view.ID)
	require.ErrorIs(t, err, domain.ErrTransport)
	require.Equal(t, 2, repo.getCalls)
}

func TestWritesAreNotRetried(t *testing.T) {
	repo := &flakyRepo{Repository: memory.NewRepository(), completeFailures: 1}
	clock := newTestClock(time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC))
	service := domain.NewService(repo, repo, domain.WithClock(clock), domain.WithReadRetryDelay(time.Millisecond))
	ctx := context.Background()

	view, err := service.CreateMicroAction(ctx, "user-1", domain.CreateMicroActionInput{Title: "Walk", Category: domain.CategoryHealth})
	require.NoError(t, err)

	_, err = service.CompleteMicroAction(ctx, "user-1", view.ID)
	require.ErrorIs(t, err, domain.ErrTransport)
	require.Equal(t, 1, repo.completeCalls)
	require.Zero(t, repo.CompletionCount(view.ID))
}

func TestConflictOnCompleteIsTreatedAsReplay(t *testing.T) {
	repo := &flakyRepo{Repository: memory.NewRepository(), conflictOnComplete: true}
	clock := newTestClock(time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC))
	service := domain.NewService(repo, repo, domain.WithClock(clock))
	ctx := context.Background()

	view, err := service.CreateMicroAction(ctx, "user-1", domain.CreateMicroActionInput{Title: "Walk", Category: domain.CategoryHealth})
	require.NoError(t, err)

	result, err := service.CompleteMicroAction(ctx, "user-1", view.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InsertExisting, result.Outcome)
	require.Equal(t, "winner", result.Event.ID, "the event is the row the other writer stored")
	require.Equal(t, 1, result.View.TotalCompletions)
}

func TestFrequencyChangeResetsBestStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")

	for i := 0; i < 3; i++ {
		_, err := f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
		require.NoError(t, err)
		if i < 2 {
			f.clock.Advance(1)
		}
	}
	view, err := f.service.UncompleteMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.Equal(t, 2, view.CurrentStreak)
	require.Equal(t, 3, view.BestStreak, "watermark survives the undo")

	title := "Drink two glasses of water"
	view, err = f.service.UpdateMicroAction(ctx, "user-1", habit.ID, domain.MicroActionPatch{Title: &title})
	require.NoError(t, err)
	require.Equal(t, 3, view.BestStreak, "non-cadence edits keep the watermark")

	weekends := domain.FrequencyWeekends
	view, err = f.service.UpdateMicroAction(ctx, "user-1", habit.ID, domain.MicroActionPatch{Frequency: &weekends})
	require.NoError(t, err)
	require.Zero(t, view.BestStreak)

	stored, err := f.service.GetMicroAction(ctx, "user-1", habit.ID)
	require.NoError(t, err)
	require.Zero(t, stored.BestStreak)
}

func TestStatsComputedBeforeInvalidationAreNotServed(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, domain.WithStatsCache(cache))
	ctx := context.Background()
	habit := f.createDaily(t, "user-1")

	cache.beforeSet = func() {
		cache.beforeSet = nil
		_, err := f.service.CompleteMicroAction(ctx, "user-1", habit.ID)
		require.NoError(t, err)
	}

	stale, err := f.service.GetStats(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, stale.CompletedToday)

	fresh, err := f.service.GetStats(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, fresh.CompletedToday)
	require.Zero(t, cache.hits)
}

type flakyRepo struct {
	*memory.Repository
	getFailures        int
	getCalls           int
	completeFailures   int
	completeCalls      int
	conflictOnComplete bool
}

func (r *flakyRepo) Get(ctx context.Context, userID, id string) (*domain.MicroAction, error) {
	r.getCalls++
	if r.getFailures > 0 {
		r.getFailures--
		return nil, &domain.TransportError{Op: "get micro-action", Err: errors.New("connection refused")}
	}
	return r.Repository.Get(ctx, userID, id)
}

func (r *flakyRepo) Complete(ctx context.Context, event domain.CompletionEvent) (domain.CompletionEvent, domain.InsertOutcome, error) {
	r.completeCalls++
	if r.completeFailures > 0 {
		r.completeFailures--
		return domain.CompletionEvent{}, domain.InsertCreated, &domain.TransportError{Op: "complete", Err: errors.New("connection reset")}
	}
	if r.conflictOnComplete {
		// another writer stores its row first
		winner := event
		winner.ID = "winner"
		if _, _, err := r.Repository.Complete(ctx, winner); err != nil {
			return domain.CompletionEvent{}, domain.InsertCreated, err
		}
		return domain.CompletionEvent{}, domain.InsertCreated, domain.ErrConflict
	}
	return r.Repository.Complete(ctx, event)
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]domain.Stats
	generations map[string]int64
	hits        int
	sets        int
	beforeSet   func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.Stats), generations: make(map[string]int64)}
}

func cacheKey(userID string, day civil.Date, generation int64) string {
	return fmt.Sprintf("%s|%d|%s", userID, generation, day)
}

func (c *fakeCache) Generation(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID], nil
}

func (c *fakeCache) Get(_ context.Context, userID string, day civil.Date, generation int64) (*domain.Stats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats, ok := c.entries[cacheKey(userID, day, generation)]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &stats, true, nil
}

func (c *fakeCache) Set(_ context.Context, userID string, day civil.Date, generation int64, stats domain.Stats) error {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[cacheKey(userID, day, generation)] = stats
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++
	for key := range c.entries {
		if strings.HasPrefix(key, userID+"|") {
			delete(c.entries, key)
		}
	}
	return nil
}
