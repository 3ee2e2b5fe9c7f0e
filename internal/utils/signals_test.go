package utils

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotifyContextCancelsOnSignal(t *testing.T) {
	ctx, sig, stop := NotifyContext(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after SIGHUP")
	}
	select {
	case <-sig:
	case <-time.After(2 * time.Second):
		t.Fatal("signal channel never received SIGHUP")
	}
}

func TestNotifyContextStopReleasesRegistration(t *testing.T) {
	ctx, _, stop := NotifyContext(context.Background())
	stop()
	select {
	case <-ctx.Done():
	default:
		t.Fatal("stop should cancel the derived context")
	}
}
