package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCloser(t *testing.T) {
	c := NewCloser()

	select {
	case <-c.Done():
		t.Fatal("closer done before Close")
	default:
	}

	c.Close()
	c.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("closer not done after Close")
	}

	require.NotPanics(t, c.Close)
}
