package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mywio/reelsaver/pkg/reel"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(context.Background(), logger)
	t.Cleanup(r.Close)
	return r
}

func TestRouterAsyncReply(t *testing.T) {
	r := newTestRouter(t)
	r.Handle(reel.ActionProcessReel, func(ctx context.Context, req reel.Request) *Future {
		fut := NewFuture()
		go func() {
			time.Sleep(10 * time.Millisecond)
			fut.Resolve(reel.Result{Success: true, Message: req.URL})
		}()
		return fut
	})

	replies := make(chan reel.Result, 2)
	err := r.Send(reel.NewRequest("https://www.instagram.com/reel/x/"), func(res reel.Result) {
		replies <- res
	})
	require.NoError(t, err)

	select {
	case res := <-replies:
		assert.True(t, res.Success)
		assert.Equal(t, "https://www.instagram.com/reel/x/", res.Message)
	case <-time.After(time.Second):
		t.Fatal("reply not delivered")
	}

	select {
	case <-replies:
		t.Fatal("reply delivered twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouterNoReceiver(t *testing.T) {
	r := newTestRouter(t)
	called := false
	err := r.Send(reel.NewRequest("u"), func(reel.Result) { called = true })
	assert.True(t, errors.Is(err, reel.ErrChannelUnavailable))
	assert.False(t, called)
}

func TestRouterDropsReplyWithoutFuture(t *testing.T) {
	r := newTestRouter(t)
	var handled atomic.Int32
	r.Handle(reel.ActionProcessReel, func(ctx context.Context, req reel.Request) *Future {
		handled.Add(1)
		return nil
	})

	var replied atomic.Bool
	err := r.Send(reel.NewRequest("u"), func(reel.Result) { replied.Store(true) })
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), handled.Load())
	assert.False(t, replied.Load())
}

func TestRouterClosedAbandonsPending(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(context.Background(), logger)
	fut := NewFuture()
	r.Handle(reel.ActionProcessReel, func(ctx context.Context, req reel.Request) *Future { return fut })

	var replied atomic.Bool
	require.NoError(t, r.Send(reel.NewRequest("u"), func(reel.Result) { replied.Store(true) }))
	r.Close()

	fut.Resolve(reel.Succeeded())
	time.Sleep(20 * time.Millisecond)
	assert.False(t, replied.Load())

	err := r.Send(reel.NewRequest("u"), nil)
	assert.ErrorIs(t, err, reel.ErrChannelUnavailable)
}

func TestRouterCall(t *testing.T) {
	r := newTestRouter(t)
	r.Handle(reel.ActionProcessReel, func(ctx context.Context, req reel.Request) *Future {
		fut := NewFuture()
		fut.Resolve(reel.Succeeded())
		return fut
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := r.Call(ctx, reel.NewRequest("u"))
	require.NoError(t, err)
	assert.Equal(t, reel.Succeeded(), res)
}

func TestFutureResolvesOnce(t *testing.T) {
	fut := NewFuture()
	assert.True(t, fut.Resolve(reel.Succeeded()))
	assert.False(t, fut.Resolve(reel.DownloadFailed(nil)))
	<-fut.Done()
	assert.Equal(t, reel.Succeeded(), fut.Result())
}

func TestRouterSendRacingClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(context.Background(), logger)
	r.Handle(reel.ActionProcessReel, func(ctx context.Context, req reel.Request) *Future {
		return NewFuture()
	})

	var sent, refused atomic.Int32
	start := make(chan struct{})
	done := make(chan struct{})
	const senders = 32
	for i := 0; i < senders; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			<-start
			if err := r.Send(reel.NewRequest("https://www.instagram.com/reel/x/"), nil); err != nil {
				assert.ErrorIs(t, err, reel.ErrChannelUnavailable)
				refused.Add(1)
				return
			}
			sent.Add(1)
		}()
	}
	close(start)
	r.Close()
	for i := 0; i < senders; i++ {
		<-done
	}

	assert.Equal(t, int32(senders), sent.Load()+refused.Load())
	err := r.Send(reel.NewRequest("https://www.instagram.com/reel/x/"), nil)
	assert.ErrorIs(t, err, reel.ErrChannelUnavailable)
}
