package descramble

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ytget/descramble/client"
	"github.com/ytget/descramble/config"
	"github.com/ytget/descramble/errs"
	"github.com/ytget/descramble/internal/cache"
	"github.com/ytget/descramble/internal/logger"
	"github.com/ytget/descramble/types"
	"github.com/ytget/descramble/youtube/cipher"
	"github.com/ytget/descramble/youtube/formats"
	"github.com/ytget/descramble/youtube/playerjs"
)

// Descrambler is the entry point for format-selection code. It owns one
// cipher.Session and the player and persistent caches behind it.
//
// Use chainable setters before the first call; the session is built lazily
// and the setters have no effect afterwards.
type Descrambler struct {
	cfg        *config.Config
	fetcher    playerjs.Fetcher
	backend    cache.Backend
	backendSet bool
	log        *logger.Logger
	metrics    *cipher.Metrics
	quality    string
	ext        string

	once    sync.Once
	initErr error
	session *cipher.Session
	store   *cache.Cache
	closers []io.Closer
}

// New creates a Descrambler with default configuration.
func New() *Descrambler {
	return &Descrambler{cfg: config.Default()}
}

// WithConfig replaces the configuration. A nil cfg restores the defaults.
func (d *Descrambler) WithConfig(cfg *config.Config) *Descrambler {
	if cfg == nil {
		cfg = config.Default()
	}
	d.cfg = cfg
	return d
}

// WithFetcher sets the player script downloader. By default a client.Client
// built from the http section of the configuration is used.
func (d *Descrambler) WithFetcher(f playerjs.Fetcher) *Descrambler {
	d.fetcher = f
	return d
}

// WithCacheBackend overrides the configured persistent cache. A nil backend
// disables persistence.
func (d *Descrambler) WithCacheBackend(b cache.Backend) *Descrambler {
	d.backend = b
	d.backendSet = true
	return d
}

// WithLogger sets the logger instead of building one from the log section.
func (d *Descrambler) WithLogger(l *logger.Logger) *Descrambler {
	d.log = l
	return d
}

// WithMetrics shares counters with the caller.
func (d *Descrambler) WithMetrics(m *cipher.Metrics) *Descrambler {
	d.metrics = m
	return d
}

// WithFormat sets the selector used by Select.
// Examples: "itag=22", "best", "height<=480". Extension is case-insensitive.
func (d *Descrambler) WithFormat(quality, ext string) *Descrambler {
	d.quality = quality
	d.ext = ext
	return d
}

func (d *Descrambler) init() error {
	d.once.Do(func() { d.initErr = d.build() })
	return d.initErr
}

func (d *Descrambler) build() error {
	cfg := d.cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := d.log
	if log == nil {
		l, closer, err := cfg.Log.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		log = l
		d.log = l
		d.closers = append(d.closers, closer)
	}

	fetcher := d.fetcher
	if fetcher == nil {
		c, err := client.NewWith(client.Config{
			Timeout:         time.Duration(cfg.HTTP.Timeout),
			Retries:         cfg.HTTP.Retries,
			UserAgent:       cfg.HTTP.UserAgent,
			RandomUserAgent: cfg.HTTP.RandomUserAgent,
			ProxyURL:        cfg.HTTP.Proxy,
			CookiesFile:     cfg.HTTP.CookiesFile,
			RateLimit:       cfg.HTTP.RateLimit,
			Burst:           cfg.HTTP.Burst,
			Logger:          log,
		})
		if err != nil {
			return fmt.Errorf("build http client: %w", err)
		}
		fetcher = c
	}

	backend := d.backend
	if !d.backendSet {
		b, err := cache.OpenBackend(cfg.Cache.Backend, cfg.Cache.Dir)
		if err != nil {
			// A cache we cannot open only costs recomputation.
			log.WithComponent(logger.ComponentCache).Warn("persistent cache disabled", logger.Fields{
				"backend": cfg.Cache.Backend,
				"error":   err.Error(),
			})
		}
		backend = b
	}
	d.store = cache.New(backend, log)

	d.session = cipher.NewSession(playerjs.NewCache(fetcher, log), d.store, cipher.Options{
		AllowTruncation: cfg.Signature.AllowTruncation,
		VerifyEvery:     cfg.Signature.VerifyEvery,
		PrintCode:       cfg.Signature.PrintCode,
		Logger:          log,
		Metrics:         d.metrics,
	})
	log.WithComponent(logger.ComponentApp).Debug("descrambler ready", logger.Fields{
		"cache":            cfg.Cache.Backend,
		"allow_truncation": cfg.Signature.AllowTruncation,
		"verify_every":     cfg.Signature.VerifyEvery,
	})
	return nil
}

// DecryptSignature descrambles a signature for the given player. See
// cipher.Session.DecryptSignature.
func (d *Descrambler) DecryptSignature(ctx context.Context, cipherText, contentID, playerRef string) (string, error) {
	if err := d.init(); err != nil {
		return "", err
	}
	return d.session.DecryptSignature(ctx, cipherText, contentID, playerRef)
}

// DecryptNParam descrambles the throttling parameter. See
// cipher.Session.DecryptNParam.
func (d *Descrambler) DecryptNParam(ctx context.Context, value, contentID, playerRef string) (string, error) {
	if err := d.init(); err != nil {
		return "", err
	}
	return d.session.DecryptNParam(ctx, value, contentID, playerRef)
}

// SignatureTimestamp returns the player's signature timestamp.
func (d *Descrambler) SignatureTimestamp(ctx context.Context, playerRef string) (int, error) {
	if err := d.init(); err != nil {
		return 0, err
	}
	return d.session.SignatureTimestamp(ctx, playerRef)
}

// PlayerURL finds the player script URL referenced by a watch or embed page.
func (d *Descrambler) PlayerURL(page string) (string, error) {
	return playerjs.FindPlayerURL(page)
}

// AddPlayer installs a player script obtained elsewhere so it is never
// downloaded.
func (d *Descrambler) AddPlayer(playerRef, source string) error {
	if err := d.init(); err != nil {
		return err
	}
	ref, err := playerjs.ParseRef(playerRef)
	if err != nil {
		return err
	}
	d.session.Players().Put(ref, source)
	return nil
}

// ResolveFormats parses the formats of a player response and descrambles
// them. Formats that cannot be descrambled are dropped and returned as
// rejections; the error is only for an unreadable response.
func (d *Descrambler) ResolveFormats(ctx context.Context, playerResponse []byte, contentID, playerRef string) ([]types.Format, []formats.Rejection, error) {
	if err := d.init(); err != nil {
		return nil, nil, err
	}
	list, err := formats.ParseFormats(playerResponse)
	if err != nil {
		return nil, nil, err
	}
	var dec formats.Decrypter = d.session
	if d.cfg.NParam.Skip {
		dec = keepN{d.session}
	}
	out, rejected := formats.Resolve(ctx, dec, list, contentID, playerRef, d.log)
	return out, rejected, nil
}

// Select resolves the formats of a player response and picks one with the
// selector set by WithFormat.
func (d *Descrambler) Select(ctx context.Context, playerResponse []byte, contentID, playerRef string) (*types.Format, error) {
	list, _, err := d.ResolveFormats(ctx, playerResponse, contentID, playerRef)
	if err != nil {
		return nil, err
	}
	f := formats.SelectFormat(list, d.quality, d.ext)
	if f == nil {
		return nil, fmt.Errorf("%w: no usable format for %s", errs.ErrFormat, contentID)
	}
	return f, nil
}

// Metrics returns the session counters, or nil before the first call.
func (d *Descrambler) Metrics() *cipher.Metrics {
	if d.session == nil {
		return d.metrics
	}
	return d.session.Metrics()
}

// Close releases the persistent cache and any log file.
func (d *Descrambler) Close() error {
	var first error
	if d.store != nil {
		first = d.store.Close()
	}
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// keepN passes n values through untouched.
type keepN struct {
	*cipher.Session
}

func (keepN) DecryptNParam(_ context.Context, value, _, _ string) (string, error) {
	return value, nil
}
