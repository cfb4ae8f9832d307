package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaoapp/duan/errs"
)

func collectEvents(t *testing.T, ch <-chan BatchEvent) []BatchEvent {
	t.Helper()
	var events []BatchEvent
	for {
		select {
		case event := <-ch:
			events = append(events, event)
			if event.Status == BatchFinished {
				return events
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for batch events, got %v", events)
		}
	}
}

func statusesFor(events []BatchEvent, id uuid.UUID) []string {
	var statuses []string
	for _, event := range events {
		if event.DocumentID == id {
			statuses = append(statuses, event.Status)
		}
	}
	return statuses
}

func TestBatchEmbed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := uploadTestFile(t, env, "first.txt", "First document. More text.")
	second := uploadTestFile(t, env, "second.txt", "Second document. Other text.")
	collection := createTestCollection(t, env, "test_collection")

	executor := NewExecutor(env.vectors, 8, 2, time.Minute)
	executor.Start()
	t.Cleanup(executor.Stop)

	progress := make(chan BatchEvent, 16)
	require.NoError(t, executor.Submit(&BatchJob{
		CollectionID: collection.ID,
		Add:          []uuid.UUID{first.ID, second.ID},
		Progress:     progress,
	}))

	events := collectEvents(t, progress)
	assert.Equal(t, []string{BatchQueued, BatchProcessing, BatchDone}, statusesFor(events, first.ID))
	assert.Equal(t, []string{BatchQueued, BatchProcessing, BatchDone}, statusesFor(events, second.ID))

	_, err := env.vectors.GetEmbeddings(ctx, first.ID, collection.ID)
	require.NoError(t, err)
	_, err = env.vectors.GetEmbeddings(ctx, second.ID, collection.ID)
	require.NoError(t, err)
}

func TestBatchRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "hello.txt", "Hello world")
	collection := createTestCollection(t, env, "test_collection")
	_, err := env.vectors.Embed(ctx, doc.ID, collection.ID)
	require.NoError(t, err)

	executor := NewExecutor(env.vectors, 8, 2, time.Minute)
	executor.Start()
	t.Cleanup(executor.Stop)

	progress := make(chan BatchEvent, 16)
	require.NoError(t, executor.Submit(&BatchJob{
		CollectionID: collection.ID,
		Remove:       []uuid.UUID{doc.ID},
		Progress:     progress,
	}))

	events := collectEvents(t, progress)
	assert.Equal(t, []string{BatchQueued, BatchProcessing, BatchDone}, statusesFor(events, doc.ID))

	_, err = env.vectors.GetEmbeddings(ctx, doc.ID, collection.ID)
	assert.True(t, errs.Is(err, errs.DoesNotExist))
}

func TestBatchReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := uploadTestFile(t, env, "hello.txt", "Hello world")
	collection := createTestCollection(t, env, "test_collection")
	missing := uuid.New()

	executor := NewExecutor(env.vectors, 8, 2, time.Minute)
	executor.Start()
	t.Cleanup(executor.Stop)

	progress := make(chan BatchEvent, 16)
	require.NoError(t, executor.Submit(&BatchJob{
		CollectionID: collection.ID,
		Add:          []uuid.UUID{missing, doc.ID},
		Progress:     progress,
	}))

	events := collectEvents(t, progress)
	assert.Equal(t, []string{BatchQueued, BatchProcessing, BatchFailed}, statusesFor(events, missing))
	assert.Equal(t, []string{BatchQueued, BatchProcessing, BatchDone}, statusesFor(events, doc.ID))

	for _, event := range events {
		if event.Status == BatchFailed {
			assert.Contains(t, event.Error, "does not exist")
		}
	}

	// The failure does not stop the rest of the job.
	_, err := env.vectors.GetEmbeddings(ctx, doc.ID, collection.ID)
	require.NoError(t, err)
}

func TestBatchSubmitValidation(t *testing.T) {
	env := newTestEnv(t)

	executor := NewExecutor(env.vectors, 1, 1, time.Minute)
	// Not started, so the queue never drains.

	err := executor.Submit(&BatchJob{CollectionID: uuid.New()})
	assert.True(t, errs.Is(err, errs.Validation))

	job := &BatchJob{CollectionID: uuid.New(), Add: []uuid.UUID{uuid.New()}}
	require.NoError(t, executor.Submit(job))

	err = executor.Submit(job)
	assert.True(t, errs.Is(err, errs.Batch))
}
