package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresentFieldCountEmpty(t *testing.T) {
	assert.Zero(t, (&Features{}).PresentFieldCount())
	assert.Zero(t, (*Features)(nil).PresentFieldCount())
}

func TestPresentFieldCount(t *testing.T) {
	f := &Features{
		UserID:           "u-1",
		Tier:             TierPremium,
		InputSizeBytes:   Ptr(int64(4096)),
		IsWeekend:        Ptr(false),
		BusinessPriority: BusinessHigh,
	}
	assert.Equal(t, 5, f.PresentFieldCount())
}

func TestPresentFieldNames(t *testing.T) {
	f := &Features{
		UserID:     "u-1",
		QueueDepth: Ptr(int64(12)),
	}
	assert.ElementsMatch(t, []string{"user_id", "queue_depth"}, f.PresentFieldNames())
}

func TestCloneIsDeep(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	f := &Features{
		UserID:         "u-1",
		InputSizeBytes: Ptr(int64(100)),
		Deadline:       &deadline,
	}

	c := f.Clone()
	*c.InputSizeBytes = 999
	*c.Deadline = deadline.Add(time.Hour)

	assert.Equal(t, int64(100), *f.InputSizeBytes)
	assert.Equal(t, deadline, *f.Deadline)
}

func TestCloneNil(t *testing.T) {
	assert.Nil(t, (*Features)(nil).Clone())
}
