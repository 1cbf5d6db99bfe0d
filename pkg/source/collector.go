package source

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

const defaultUserAgent = "MemeMarket/1.0"

// Options configures a Collector.
type Options struct {
	Mode         string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	// RateInterval is the minimum spacing between Reddit requests.
	RateInterval time.Duration

	// BaseURL and TokenURL override Reddit endpoints, mainly for tests.
	BaseURL  string
	TokenURL string
}

func (o Options) userAgent() string {
	if o.UserAgent == "" {
		return defaultUserAgent
	}
	return o.UserAgent
}

func (o Options) limiter() *rate.Limiter {
	if o.RateInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(o.RateInterval), 1)
}

// NewCollector selects the implementation for opts.Mode.
func NewCollector(opts Options) (Collector, error) {
	switch opts.Mode {
	case ModeAPI:
		return NewAPIClient(opts)
	case ModePublic, "":
		return NewPublicClient(opts), nil
	case ModeFeed:
		return NewFeedClient(opts), nil
	case ModeMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown collector mode %q (use api, public, feed or mock)", opts.Mode)
	}
}
