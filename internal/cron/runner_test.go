package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsFiveFieldSpec(t *testing.T) {
	r := New(nil, context.Background())
	_, err := r.Add("bad", "* * * * *", 0, func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestRunnerRunsJob(t *testing.T) {
	r := New(nil, context.Background())
	ran := make(chan struct{}, 1)
	_, err := r.Add("tick", "* * * * * *", 0, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	require.NoError(t, err)
	r.Start()
	defer r.Stop()
	<-ran
}
