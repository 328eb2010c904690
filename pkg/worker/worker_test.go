package worker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bricklayers/bricklayd/internal/bytesize"
	"github.com/bricklayers/bricklayd/pkg/config"
	"github.com/bricklayers/bricklayd/pkg/filestore"
	"github.com/bricklayers/bricklayd/pkg/job"
)

type testEnv struct {
	registry *job.Registry
	store    *filestore.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	store, err := filestore.New(config.StorageConfig{
		UploadDir:         tmp + "/uploads",
		OutputDir:         tmp + "/outputs",
		MaxUploadSize:     bytesize.ByteSize(64 * 1024 * 1024),
		AllowedExtensions: []string{".gcode"},
	})
	require.NoError(t, err)
	return &testEnv{registry: job.NewRegistry(), store: store}
}

// createJob captures gcode under a fresh job ID and registers it.
func (e *testEnv) createJob(t *testing.T, id, gcode string) job.Job {
	t.Helper()
	captured, err := e.store.CaptureUpload(id, "test.gcode", strings.NewReader(gcode))
	require.NoError(t, err)

	return e.registry.Register(job.RegisterParams{
		ID:                  id,
		Filename:            "test.gcode",
		StartAtLayer:        0,
		ExtrusionMultiplier: 1.05,
		Priority:            job.PriorityNormal,
		UploadPath:          captured.Path,
		OutputPath:          e.store.OutputPath(id, "test.gcode"),
	})
}

func smallGcode() string {
	return ";LAYER_CHANGE\nG1 X0 Y0 Z0.2 E1.00000 F1800\nG1 X10 Y0 E2.00000\n"
}

func largeGcode(lines int) string {
	var sb strings.Builder
	sb.Grow(lines * 24)
	for i := 0; i < lines; i++ {
		sb.WriteString("G1 X0 Y0 Z0.2 E1.00000\n")
	}
	return sb.String()
}

func TestRun_Completes(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, "job1", smallGcode())

	runner := NewRunner(env.registry, time.Minute, nil)
	runner.Run(context.Background(), "job1")

	got, err := env.registry.Get("job1")
	require.NoError(t, err)
	assert.Equal(t, job.StateCompleted, got.State)
	assert.Empty(t, got.ErrorMessage)

	data, err := os.ReadFile(j.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "E1.05000")
}

func TestRun_SkipsCancelledJob(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, "job1", smallGcode())

	_, outcome, err := env.registry.RequestCancel("job1")
	require.NoError(t, err)
	assert.Equal(t, job.CancelledImmediately, outcome)

	runner := NewRunner(env.registry, time.Minute, nil)
	runner.Run(context.Background(), "job1")

	got, err := env.registry.Get("job1")
	require.NoError(t, err)
	assert.Equal(t, job.StateCancelled, got.State)
	assert.Equal(t, "Cancelled by user", got.ErrorMessage)

	_, err = os.Stat(j.OutputPath)
	assert.True(t, os.IsNotExist(err), "no output may exist for a cancelled job")
}

func TestRun_CancelDuringProcessing(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, "job1", largeGcode(200_000))

	runner := NewRunner(env.registry, time.Minute, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(context.Background(), "job1")
	}()

	// Whether this lands before pickup or mid-stream, the job must end
	// cancelled with no output left behind
	require.Eventually(t, func() bool {
		_, _, err := env.registry.RequestCancel("job1")
		return err == nil
	}, 5*time.Second, time.Millisecond)

	<-done

	got, err := env.registry.Get("job1")
	require.NoError(t, err)
	assert.Equal(t, job.StateCancelled, got.State)
	assert.Contains(t, got.ErrorMessage, "Cancelled by user")

	_, err = os.Stat(j.OutputPath)
	assert.True(t, os.IsNotExist(err), "partial output must be deleted")
}

func TestRun_Timeout(t *testing.T) {
	env := newTestEnv(t)
	env.createJob(t, "job1", largeGcode(500_000))

	runner := NewRunner(env.registry, time.Millisecond, nil)
	runner.Run(context.Background(), "job1")

	got, err := env.registry.Get("job1")
	require.NoError(t, err)
	assert.Equal(t, job.StateTimeout, got.State)
	assert.Contains(t, got.ErrorMessage, "timed out")

	// The detached body finishes eventually; its late completion must
	// not overwrite the terminal state
	require.Eventually(t, func() bool {
		j, err := env.registry.Get("job1")
		return err == nil && j.State == job.StateTimeout
	}, 10*time.Second, 10*time.Millisecond)
}

func TestRun_FailureRecorded(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, "job1", smallGcode())

	// Remove the upload so the body fails opening it
	require.NoError(t, os.Remove(j.UploadPath))

	runner := NewRunner(env.registry, time.Minute, nil)
	runner.Run(context.Background(), "job1")

	got, err := env.registry.Get("job1")
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, got.State)
	assert.NotEmpty(t, got.ErrorMessage)
}

func TestRun_CancelRaceAtCompletion(t *testing.T) {
	// A cancel request can land after the body's final signal check but
	// before the completion transition. The registry is then in
	// cancelling and the worker must still land the job in cancelled.
	env := newTestEnv(t)
	j := env.createJob(t, "job1", smallGcode())

	_, err := env.registry.Transition("job1", job.StateProcessing, "")
	require.NoError(t, err)
	_, outcome, err := env.registry.RequestCancel("job1")
	require.NoError(t, err)
	require.Equal(t, job.Cancelling, outcome)

	require.NoError(t, os.WriteFile(j.OutputPath, []byte("partial"), 0o644))

	runner := NewRunner(env.registry, time.Minute, nil)
	_, terr := env.registry.Transition("job1", job.StateCompleted, "")
	require.Error(t, terr)
	runner.finishRejectedCompletion(context.Background(), j, terr)

	got, err := env.registry.Get("job1")
	require.NoError(t, err)
	assert.Equal(t, job.StateCancelled, got.State)
	assert.True(t, got.State.Terminal())
	assert.NoFileExists(t, j.OutputPath)
}

func TestRun_TimeoutRaceAtCompletion(t *testing.T) {
	// When the deadline fired first, the timeout result stands and the
	// orphaned output is left for the sweeper.
	env := newTestEnv(t)
	j := env.createJob(t, "job1", smallGcode())

	_, err := env.registry.Transition("job1", job.StateProcessing, "")
	require.NoError(t, err)
	_, err = env.registry.Transition("job1", job.StateTimeout, "Processing timed out after 60 seconds")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(j.OutputPath, []byte("late"), 0o644))

	runner := NewRunner(env.registry, time.Minute, nil)
	_, terr := env.registry.Transition("job1", job.StateCompleted, "")
	require.Error(t, terr)
	runner.finishRejectedCompletion(context.Background(), j, terr)

	got, err := env.registry.Get("job1")
	require.NoError(t, err)
	assert.Equal(t, job.StateTimeout, got.State)
	assert.FileExists(t, j.OutputPath)
}

func TestPool_RunsSubmittedJobs(t *testing.T) {
	env := newTestEnv(t)
	runner := NewRunner(env.registry, time.Minute, nil)
	pool := NewPool(2, runner, nil)
	pool.Start(context.Background())
	defer pool.Stop(5 * time.Second)

	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("job%d", i)
		env.createJob(t, id, smallGcode())
		require.True(t, pool.Submit(id))
		ids = append(ids, id)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			j, err := env.registry.Get(id)
			if err != nil || j.State != job.StateCompleted {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	env := newTestEnv(t)
	runner := NewRunner(env.registry, time.Minute, nil)
	pool := NewPool(1, runner, nil)
	pool.Start(context.Background())
	pool.Stop(time.Second)

	assert.False(t, pool.Submit("whatever"))
}
