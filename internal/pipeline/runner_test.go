package pipeline

import (
	"context"
	"sync/atomic"
	"testing"

	"signin-token-sync/internal/models"

	"github.com/stretchr/testify/assert"
)

type blockingJob struct {
	release chan struct{}
	runs    atomic.Int32
}

func (j *blockingJob) Run(context.Context) models.Result {
	j.runs.Add(1)
	<-j.release
	return models.Result{Status: models.StatusSuccess}
}

func TestRunnerSingleFlight(t *testing.T) {
	job := &blockingJob{release: make(chan struct{})}
	r := NewRunner(job)

	assert.True(t, r.TryStart(context.Background()))
	assert.True(t, r.Running())
	assert.False(t, r.TryStart(context.Background()))

	close(job.release)
	r.Wait()

	assert.False(t, r.Running())
	assert.True(t, r.TryStart(context.Background()))
	r.Wait()
	assert.Equal(t, int32(2), job.runs.Load())
}
