package producer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routemind/routemind/core"
)

func TestSupervisorGeneratesTasks(t *testing.T) {
	pub := &stubPublisher{}
	s := NewSupervisor(pub, nil)

	require.NoError(t, s.Start(5*time.Millisecond))
	assert.True(t, s.Running())

	assert.Eventually(t, func() bool {
		return s.Sent() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	assert.GreaterOrEqual(t, pub.count(), 3)
}

func TestSupervisorDoubleStart(t *testing.T) {
	s := NewSupervisor(&stubPublisher{}, nil)
	require.NoError(t, s.Start(time.Minute))
	defer func() { _ = s.Stop() }()

	assert.ErrorIs(t, s.Start(time.Minute), core.ErrAlreadyStarted)
}

func TestSupervisorStopWhenIdle(t *testing.T) {
	s := NewSupervisor(&stubPublisher{}, nil)
	assert.ErrorIs(t, s.Stop(), core.ErrNotRunning)
}

func TestSupervisorRejectsBadInterval(t *testing.T) {
	s := NewSupervisor(&stubPublisher{}, nil)
	assert.ErrorIs(t, s.Start(0), core.ErrInvalidConfiguration)
}

func TestSupervisorRestart(t *testing.T) {
	s := NewSupervisor(&stubPublisher{}, nil)
	require.NoError(t, s.Start(time.Minute))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start(time.Minute))
	require.NoError(t, s.Stop())
}

func TestGenerateCyclesTaskTypes(t *testing.T) {
	s := NewSupervisor(&stubPublisher{}, nil)

	seen := make(map[core.TaskType]bool)
	for i := 0; i < len(core.TaskTypes)*2; i++ {
		task := s.generate()
		require.NotEmpty(t, task.ID)
		assert.True(t, core.ValidTaskType(task.Type))
		assert.GreaterOrEqual(t, task.ManualPriority, 0)
		assert.LessOrEqual(t, task.ManualPriority, 10)
		seen[task.Type] = true
	}
	assert.Len(t, seen, len(core.TaskTypes))
}
