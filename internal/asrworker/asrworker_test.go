package asrworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchtx/transcriber/internal/asrclient"
	"github.com/batchtx/transcriber/internal/logger"
	"github.com/batchtx/transcriber/internal/models"
	"github.com/batchtx/transcriber/internal/pgqueue"
	"github.com/batchtx/transcriber/internal/workdata"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	shrinkPollTimings()
	m.Run()
}

func shrinkPollTimings() {
	pollBase = time.Millisecond
	pollJitterMax = time.Millisecond
}

type fakeClient struct {
	mu          sync.Mutex
	uploadCalls int
	uploadID    string
	uploadErr   error

	statuses []statusOrErr
	statusIx int
}

type statusOrErr struct {
	status *asrclient.StatusResult
	err    error
}

func (f *fakeClient) Upload(ctx context.Context, filePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	return f.uploadID, f.uploadErr
}

func (f *fakeClient) Status(ctx context.Context, externalID string) (*asrclient.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusIx >= len(f.statuses) {
		return f.statuses[len(f.statuses)-1].status, f.statuses[len(f.statuses)-1].err
	}
	s := f.statuses[f.statusIx]
	f.statusIx++
	return s.status, s.err
}

func newHarness(client *fakeClient) (*Worker, *workdata.FakeStore, *pgqueue.FakeQueue[models.ASRMessage], *pgqueue.FakeQueue[models.ResultMessage]) {
	store := workdata.NewFakeStore()
	input := pgqueue.NewFakeQueue[models.ASRMessage]()
	result := pgqueue.NewFakeQueue[models.ResultMessage]()
	w := New(client, store, input, result)
	return w, store, input, result
}

func readResult(t *testing.T, q *pgqueue.FakeQueue[models.ResultMessage]) models.ResultMessage {
	t.Helper()
	msg, ok, err := q.Read(context.Background(), 30)
	require.NoError(t, err)
	require.True(t, ok, "expected a result message to have been enqueued")
	return msg.Payload
}

func TestHandle_HappyPath(t *testing.T) {
	client := &fakeClient{
		uploadID: "X1",
		statuses: []statusOrErr{{status: &asrclient.StatusResult{ID: "X1", Status: "COMPLETED"}}},
	}
	w, _, input, result := newHarness(client)

	id, err := input.Send(context.Background(), models.ASRMessage{ID: "job-1", File: "a.wav", BaseDir: "/d"})
	require.NoError(t, err)
	msg, ok, err := input.Read(context.Background(), 30)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, msg.ID)

	done := w.Handle(context.Background(), *msg)
	assert.True(t, done)
	assert.Equal(t, 1, client.uploadCalls)

	r := readResult(t, result)
	assert.Equal(t, "job-1", r.ID)
	assert.Equal(t, "X1", r.ExternalID)
	assert.True(t, r.Finished)
	assert.Nil(t, r.Error)
}

func TestHandle_SkipsUploadWhenExternalIDAlreadyPersisted(t *testing.T) {
	client := &fakeClient{
		uploadID: "should-not-be-used",
		statuses: []statusOrErr{{status: &asrclient.StatusResult{ID: "X1", Status: "COMPLETED"}}},
	}
	w, store, input, result := newHarness(client)

	_, err := store.GetOrCreate(context.Background(), "job-1", "a.wav", "/d")
	require.NoError(t, err)
	require.NoError(t, store.SetExternalID(context.Background(), "job-1", "X1"))

	_, err = input.Send(context.Background(), models.ASRMessage{ID: "job-1", File: "a.wav", BaseDir: "/d"})
	require.NoError(t, err)
	msg, _, _ := input.Read(context.Background(), 30)

	done := w.Handle(context.Background(), *msg)
	assert.True(t, done)
	assert.Equal(t, 0, client.uploadCalls, "upload must not be repeated once an external id is known")

	r := readResult(t, result)
	assert.Equal(t, "X1", r.ExternalID)
}

func TestHandle_RemoteErrorCodeIsFinishedWithError(t *testing.T) {
	client := &fakeClient{
		uploadID: "X1",
		statuses: []statusOrErr{{status: &asrclient.StatusResult{ID: "X1", Status: "FAILED", ErrorCode: "BAD_AUDIO", Error: "unreadable"}}},
	}
	w, _, input, result := newHarness(client)

	_, err := input.Send(context.Background(), models.ASRMessage{ID: "job-1", File: "a.wav", BaseDir: "/d"})
	require.NoError(t, err)
	msg, _, _ := input.Read(context.Background(), 30)

	done := w.Handle(context.Background(), *msg)
	assert.True(t, done)

	r := readResult(t, result)
	assert.True(t, r.Finished)
	require.NotNil(t, r.Error)
	assert.Contains(t, *r.Error, "BAD_AUDIO")
}

func TestHandle_RetryCeilingGivesUp(t *testing.T) {
	client := &fakeClient{}
	w, store, input, result := newHarness(client)

	_, err := store.GetOrCreate(context.Background(), "job-1", "a.wav", "/d")
	require.NoError(t, err)
	require.NoError(t, store.SetExternalID(context.Background(), "job-1", "X1"))

	_, err = input.Send(context.Background(), models.ASRMessage{ID: "job-1", File: "a.wav", BaseDir: "/d"})
	require.NoError(t, err)
	// Force read_ct past the ceiling by reading repeatedly with zero timeout.
	var msg pgqueue.Message[models.ASRMessage]
	for i := 0; i < 4; i++ {
		m, ok, err := input.Read(context.Background(), 0)
		require.NoError(t, err)
		require.True(t, ok)
		msg = *m
	}
	require.Greater(t, msg.ReadCt, 3)

	done := w.Handle(context.Background(), msg)
	assert.True(t, done)
	assert.Equal(t, 0, client.uploadCalls)

	r := readResult(t, result)
	assert.True(t, r.Finished)
	require.NotNil(t, r.Error)
	assert.Equal(t, "max retries reached", *r.Error)
	assert.Equal(t, "X1", r.ExternalID, "best-effort external id should be recovered from work_data")
}

func TestHandle_StatusErrorBudgetExhaustedIsNonFinished(t *testing.T) {
	client := &fakeClient{
		uploadID: "X1",
		statuses: []statusOrErr{
			{err: errors.New("boom")},
			{err: errors.New("boom")},
			{err: errors.New("boom")},
			{err: errors.New("boom")},
		},
	}
	w, _, input, result := newHarness(client)

	_, err := input.Send(context.Background(), models.ASRMessage{ID: "job-1", File: "a.wav", BaseDir: "/d"})
	require.NoError(t, err)
	msg, _, _ := input.Read(context.Background(), 30)

	done := w.Handle(context.Background(), *msg)
	assert.True(t, done)

	r := readResult(t, result)
	assert.False(t, r.Finished)
	require.NotNil(t, r.Error)
}

func TestHandle_InProgressThenCompleted(t *testing.T) {
	client := &fakeClient{
		uploadID: "X1",
		statuses: []statusOrErr{
			{status: &asrclient.StatusResult{ID: "X1", Status: "PROCESSING"}},
			{status: &asrclient.StatusResult{ID: "X1", Status: "PROCESSING"}},
			{status: &asrclient.StatusResult{ID: "X1", Status: "COMPLETED"}},
		},
	}
	w, _, input, result := newHarness(client)

	_, err := input.Send(context.Background(), models.ASRMessage{ID: "job-1", File: "a.wav", BaseDir: "/d"})
	require.NoError(t, err)
	msg, _, _ := input.Read(context.Background(), 30)

	done := w.Handle(context.Background(), *msg)
	assert.True(t, done)

	r := readResult(t, result)
	assert.True(t, r.Finished)
	assert.Nil(t, r.Error)
}
