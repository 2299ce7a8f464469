package playerjs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/descramble/errs"
	"github.com/ytget/descramble/internal/logger"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"//www.youtube.com/s/player/abc/base.js", "https://www.youtube.com/s/player/abc/base.js"},
		{"/s/player/abc/base.js", "https://www.youtube.com/s/player/abc/base.js"},
		{`\/s\/player\/abc\/base.js`, "https://www.youtube.com/s/player/abc/base.js"},
		{"https://example.com/p.js", "https://example.com/p.js"},
	}
	for _, tt := range tests {
		got, err := ResolveURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ResolveURL("  ")
	assert.ErrorIs(t, err, errs.ErrPlayerURL)
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref     string
		id      string
		variant string
	}{
		{"/s/player/3b5d5649/player_ias.vflset/en_US/base.js", "3b5d5649", "player_ias"},
		{"https://www.youtube.com/s/player/3b5d5649/player_es6.vflset/en_US/base.js?x=1", "3b5d5649", "player_es6"},
		{"/s/player/69f581a5/tv-player-ias.vflset/tv-player-ias.js", "69f581a5", "tv-player-ias"},
		{"/s/player/64dddad9/player-plasma-ias-phone-en_US.vflset/base.js", "64dddad9", "player-plasma-ias-phone-en_US"},
		{"/yts/jsbin/player-vflHOr_nV/en_US/base.js", "vflHOr_nV", "js"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			r, err := ParseRef(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.id, r.ID)
			assert.Equal(t, tt.variant, r.Variant)
			assert.Regexp(t, `^https://`, r.URL)
		})
	}

	_, err := ParseRef("/watch?v=abc")
	assert.ErrorIs(t, err, errs.ErrPlayerURL)
}

func TestFindPlayerURL(t *testing.T) {
	const want = "https://www.youtube.com/s/player/3b5d5649/player_ias.vflset/en_US/base.js"
	tests := []struct {
		name string
		page string
	}{
		{
			name: "ytcfg",
			page: `<script>ytcfg.set({"INNERTUBE_API_KEY":"k","PLAYER_JS_URL":"/s/player/3b5d5649/player_ias.vflset/en_US/base.js","X":{"a":"}"}});</script>`,
		},
		{
			name: "ytcfg context configs",
			page: `ytcfg.set({"WEB_PLAYER_CONTEXT_CONFIGS":{"WEB_PLAYER_CONTEXT_CONFIG_ID_KEVLAR_WATCH":{"jsUrl":"/s/player/3b5d5649/player_ias.vflset/en_US/base.js"}}});`,
		},
		{
			name: "jsUrl",
			page: `var ytplayer = {"assets":{"jsUrl":"\/s\/player\/3b5d5649\/player_ias.vflset\/en_US\/base.js"}};`,
		},
		{
			name: "script tag",
			page: `<html><head><script src="//www.youtube.com/s/player/3b5d5649/player_ias.vflset/en_US/base.js"></script></head></html>`,
		},
		{
			name: "iframe api",
			page: `var scriptUrl = 'https:\/\/www.youtube.com\/s\/player\/3b5d5649\/www-widgetapi.vflset\/www-widgetapi.js';`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindPlayerURL(tt.page)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := FindPlayerURL("<html></html>")
	assert.ErrorIs(t, err, errs.ErrPlayerURL)
}

func TestSignatureTimestamp(t *testing.T) {
	sts, ok := SignatureTimestamp(`var a={signatureTimestamp:19876,b:1};`)
	require.True(t, ok)
	assert.Equal(t, 19876, sts)

	sts, ok = SignatureTimestamp(`c={sts: 20123}`)
	require.True(t, ok)
	assert.Equal(t, 20123, sts)

	_, ok = SignatureTimestamp(`nothing here`)
	assert.False(t, ok)
}

type fakeFetcher struct {
	calls  atomic.Int32
	status int
	body   string
	err    error
	delay  time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (int, string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.status, f.body, f.err
}

func testRef(t *testing.T) Ref {
	r, err := ParseRef("/s/player/3b5d5649/player_ias.vflset/en_US/base.js")
	require.NoError(t, err)
	return r
}

func TestCache_FetchesOncePerVersion(t *testing.T) {
	f := &fakeFetcher{status: 200, body: "var a=1;", delay: 20 * time.Millisecond}
	c := NewCache(f, logger.Discard())
	ref := testRef(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Get(context.Background(), ref)
			assert.NoError(t, err)
			assert.Equal(t, "var a=1;", p.Source)
		}()
	}
	wg.Wait()

	_, err := c.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.calls.Load())
	assert.EqualValues(t, 1, c.Fetches())
}

func TestCache_Errors(t *testing.T) {
	ref := testRef(t)
	tests := []struct {
		name string
		f    *fakeFetcher
	}{
		{"network", &fakeFetcher{err: errors.New("boom")}},
		{"status", &fakeFetcher{status: 404, body: "nope"}},
		{"empty", &fakeFetcher{status: 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache(tt.f, logger.Discard())
			_, err := c.Get(context.Background(), ref)
			assert.ErrorIs(t, err, errs.ErrPlayerFetch)
			_, ok := c.Lookup(ref)
			assert.False(t, ok, "failed fetches must not be memoized")
		})
	}
}

func TestCache_Put(t *testing.T) {
	c := NewCache(nil, logger.Discard())
	ref := testRef(t)
	_, err := c.Get(context.Background(), ref)
	assert.ErrorIs(t, err, errs.ErrPlayerFetch)

	c.Put(ref, "var b=2;")
	p, err := c.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "3b5d5649", p.ID)
	assert.Equal(t, "var b=2;", p.Source)
}

// gatedFetcher blocks until release is closed and records whether its
// context was cancelled while it waited.
type gatedFetcher struct {
	started   chan struct{}
	release   chan struct{}
	calls     atomic.Int32
	cancelled atomic.Bool
}

func (f *gatedFetcher) Fetch(ctx context.Context, _ string) (int, string, error) {
	f.calls.Add(1)
	close(f.started)
	<-f.release
	f.cancelled.Store(ctx.Err() != nil)
	return 200, "var c=3;", nil
}

func TestCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	f := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCache(f, logger.Discard())
	ref := testRef(t)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, ref)
		firstErr <- err
	}()
	<-f.started

	type result struct {
		p   *Player
		err error
	}
	second := make(chan result, 1)
	go func() {
		p, err := c.Get(context.Background(), ref)
		second <- result{p, err}
	}()

	cancel()
	err := <-firstErr
	assert.ErrorIs(t, err, errs.ErrPlayerFetch)
	assert.ErrorIs(t, err, context.Canceled)

	close(f.release)
	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, "var c=3;", r.p.Source)
	assert.False(t, f.cancelled.Load(), "shared download must not see the caller's cancellation")
	assert.EqualValues(t, 1, f.calls.Load())

	_, ok := c.Lookup(ref)
	assert.True(t, ok)
}
