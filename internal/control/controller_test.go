package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGuardToolExecution_BlocksAfterCancel(t *testing.T) {
	c := New(context.Background())
	require.NoError(t, c.GuardToolExecution("echo"))

	c.Cancel("user requested")

	err := c.GuardToolExecution("echo")
	require.Error(t, err)
	var cancelled *ToolCancelledError
	require.ErrorAs(t, err, &cancelled)
	require.Equal(t, "user requested", c.Reason())
}

func TestPauseResume_ReleasesWaiters(t *testing.T) {
	c := New(context.Background())
	c.Pause()

	done := make(chan struct{})
	go func() {
		_ = c.WaitIfPaused()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitIfPaused returned before Resume")
	case <-time.After(20 * time.Millisecond):
	}

	c.Resume()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not unblock after Resume")
	}
}

func TestCancel_WakesPauseWaiters(t *testing.T) {
	c := New(context.Background())
	c.Pause()

	done := make(chan error, 1)
	go func() { done <- c.WaitIfPaused() }()

	c.Cancel("stop everything")

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("cancel did not wake pause-waiter")
	}
}

func TestRequestApproval_ResolvedTrue(t *testing.T) {
	c := New(context.Background())
	wait := c.RequestApproval("call-1")

	go c.ResolveApproval("call-1", true)

	require.True(t, wait(context.Background()))
}

func TestRequestApproval_DeniedOnCancel(t *testing.T) {
	c := New(context.Background())
	wait := c.RequestApproval("call-1")

	c.Cancel("aborted")

	require.False(t, wait(context.Background()))
}

func TestRequestApproval_AlreadyCancelledYieldsFalseImmediately(t *testing.T) {
	c := New(context.Background())
	c.Cancel("")

	wait := c.RequestApproval("call-2")
	require.False(t, wait(context.Background()))
}

func TestResolveApproval_NoPendingIsNoop(t *testing.T) {
	c := New(context.Background())
	require.NotPanics(t, func() { c.ResolveApproval("unknown", true) })
}

func TestStopRequested(t *testing.T) {
	c := New(context.Background())
	require.False(t, c.StopRequested())
	c.Stop()
	require.True(t, c.StopRequested())
}
