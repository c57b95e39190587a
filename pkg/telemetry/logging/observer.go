package logging

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mercator-hq/quota/pkg/limits"
	"mercator-hq/quota/pkg/limits/budget"
	"mercator-hq/quota/pkg/limits/composite"
)

// Observer logs quota engine events. Rejections and identity lifecycle
// events go out at debug level. Over-releases are warnings, at most one
// per interval; the rest are dropped.
//
// Identity budgets are named prefix+identity. The observer logs the
// identity part under IdentityKey so RedactIdentityAttr can mask it, and
// never logs a limiter name or error string that embeds it.
type Observer struct {
	logger         *slog.Logger
	sometimes      *rate.Sometimes
	identityPrefix string
}

var _ limits.Observer = (*Observer)(nil)

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithIdentityPrefix sets the prefix of identity budget names. It must
// match the repository's prefix. Default: limits.DefaultIdentityPrefix
func WithIdentityPrefix(prefix string) ObserverOption {
	return func(o *Observer) {
		o.identityPrefix = prefix
	}
}

// NewObserver creates a logging observer. interval <= 0 logs every
// over-release.
func NewObserver(logger *slog.Logger, interval time.Duration, opts ...ObserverOption) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &rate.Sometimes{First: 1, Interval: interval}
	if interval <= 0 {
		s = &rate.Sometimes{Every: 1}
	}
	o := &Observer{
		logger:         logger.With("component", "quota"),
		sometimes:      s,
		identityPrefix: limits.DefaultIdentityPrefix,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// limiterAttrs describes a budget by name, splitting identity budgets into
// scope and identity.
func (o *Observer) limiterAttrs(name string) []any {
	if o.identityPrefix != "" && strings.HasPrefix(name, o.identityPrefix) {
		return []any{"scope", "identity", IdentityKey, strings.TrimPrefix(name, o.identityPrefix)}
	}
	return []any{"limiter", name}
}

// ObserveAcquire implements limits.Observer.
func (o *Observer) ObserveAcquire(c *composite.Limiter, amount int64, err error) {
	if err == nil || !errors.Is(err, limits.ErrQuotaExceeded) {
		return
	}
	attrs := []any{
		"composite", c.Name(),
		"composite_id", c.ID(),
		"amount", amount,
	}
	var qerr *budget.QuotaError
	if errors.As(err, &qerr) {
		attrs = append(attrs, o.limiterAttrs(qerr.Limiter)...)
		attrs = append(attrs, "used", qerr.Used, "capacity", qerr.Capacity)
	}
	o.logger.Debug("acquisition rejected", attrs...)
}

// ObserveRelease implements limits.Observer.
func (o *Observer) ObserveRelease(*composite.Limiter, int64) {}

// ObserveOverRelease implements limits.Observer.
func (o *Observer) ObserveOverRelease(limiter string, requested, excess int64) {
	o.sometimes.Do(func() {
		attrs := append(o.limiterAttrs(limiter), "requested", requested, "excess", excess)
		o.logger.Warn("budget released more than it held", attrs...)
	})
}

// ObserveIdentity implements limits.Observer.
func (o *Observer) ObserveIdentity(identity string, created bool) {
	msg := "identity budget reclaimed"
	if created {
		msg = "identity budget created"
	}
	o.logger.Debug(msg, IdentityKey, identity)
}
