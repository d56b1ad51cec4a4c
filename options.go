package faulty

import (
	"fmt"
	"time"
)

// Options configures a Circuit. Construct with NewOptions; the returned
// value is frozen and shared safely across goroutines.
type Options struct {
	CacheExpiresIn       time.Duration
	CacheRefreshesAfter  time.Duration
	CacheRefreshJitter   time.Duration
	CoolDown             time.Duration
	EvaluationWindow     time.Duration
	RateThreshold        float64
	SampleThreshold      int
	MaxSampleSize        int
	Errors               KindSet
	Exclude              KindSet
	ErrorClassifier      ErrorClassifier
	ErrorMapper          func(kind ErrorKind, cause error) error
	Logger               Logger
	Clock                Clock
}

// Option mutates an in-progress Options during construction.
type Option func(*Options)

func WithCacheExpiresIn(d time.Duration) Option      { return func(o *Options) { o.CacheExpiresIn = d } }
func WithCacheRefreshesAfter(d time.Duration) Option { return func(o *Options) { o.CacheRefreshesAfter = d } }
func WithCacheRefreshJitter(d time.Duration) Option  { return func(o *Options) { o.CacheRefreshJitter = d } }
func WithCoolDown(d time.Duration) Option            { return func(o *Options) { o.CoolDown = d } }
func WithEvaluationWindow(d time.Duration) Option    { return func(o *Options) { o.EvaluationWindow = d } }
func WithRateThreshold(r float64) Option             { return func(o *Options) { o.RateThreshold = r } }
func WithSampleThreshold(n int) Option               { return func(o *Options) { o.SampleThreshold = n } }
func WithMaxSampleSize(n int) Option                 { return func(o *Options) { o.MaxSampleSize = n } }
func WithErrors(s KindSet) Option                    { return func(o *Options) { o.Errors = s } }
func WithExclude(s KindSet) Option                   { return func(o *Options) { o.Exclude = s } }
func WithErrorClassifier(c ErrorClassifier) Option   { return func(o *Options) { o.ErrorClassifier = c } }
func WithErrorMapper(m func(ErrorKind, error) error) Option {
	return func(o *Options) { o.ErrorMapper = m }
}
func WithLogger(l Logger) Option { return func(o *Options) { o.Logger = l } }
func WithClock(c Clock) Option   { return func(o *Options) { o.Clock = c } }

// NewOptions builds a validated, frozen Options from defaults plus the
// given overrides.
func NewOptions(opts ...Option) (*Options, error) {
	o := &Options{
		CacheExpiresIn:      24 * time.Hour,
		CacheRefreshesAfter: 15 * time.Minute,
		CoolDown:            5 * time.Minute,
		EvaluationWindow:    time.Minute,
		RateThreshold:       0.5,
		SampleThreshold:     3,
		MaxSampleSize:       100,
		Logger:              NoOpLogger{},
		Clock:               RealClock,
	}

	for _, apply := range opts {
		apply(o)
	}

	// CacheRefreshJitter defaults to 20% of the *effective* refresh age
	// (computed after overrides, so a WithCacheRefreshesAfter override is
	// reflected in the default jitter too), unless WithCacheRefreshJitter
	// set it explicitly. A caller who wants jitter disabled outright should
	// pass a 1ns WithCacheRefreshJitter rather than a literal zero, since
	// zero is indistinguishable from "not set" here.
	if o.CacheRefreshJitter == 0 {
		o.CacheRefreshJitter = time.Duration(0.2 * float64(o.CacheRefreshesAfter))
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the invariants spec.md §3 requires.
func (o *Options) Validate() error {
	if o.RateThreshold < 0 || o.RateThreshold > 1 {
		return fmt.Errorf("faulty: rate threshold must be between 0 and 1, got %f", o.RateThreshold)
	}
	if o.SampleThreshold < 1 {
		return fmt.Errorf("faulty: sample threshold must be at least 1, got %d", o.SampleThreshold)
	}
	if o.CoolDown < 0 {
		return fmt.Errorf("faulty: cool down must be non-negative, got %v", o.CoolDown)
	}
	if o.EvaluationWindow < 0 {
		return fmt.Errorf("faulty: evaluation window must be non-negative, got %v", o.EvaluationWindow)
	}
	if o.MaxSampleSize < 1 {
		return fmt.Errorf("faulty: max sample size must be at least 1, got %d", o.MaxSampleSize)
	}
	if o.Logger == nil {
		o.Logger = NoOpLogger{}
	}
	if o.Clock == nil {
		o.Clock = RealClock
	}
	if o.ErrorClassifier == nil {
		errs, exclude := o.Errors, o.Exclude
		o.ErrorClassifier = func(err error) bool {
			if exclude.Contains(err) {
				return false
			}
			if errs.Empty() {
				return true
			}
			return errs.Contains(err)
		}
	}
	return nil
}

// Clone returns a copy of o, used to freeze the per-circuit options view
// once a circuit's options have been locked in by first execution.
func (o *Options) Clone() *Options {
	clone := *o
	return &clone
}

// With applies opts atop a clone of o and validates the result, used by
// Instance.Circuit to layer per-circuit overrides on top of an instance's
// defaults.
func (o *Options) With(opts ...Option) (*Options, error) {
	clone := o.Clone()
	for _, apply := range opts {
		apply(clone)
	}
	if err := clone.Validate(); err != nil {
		return nil, err
	}
	return clone, nil
}

// Primitive projects Options onto the primitive-valued map the storage
// contract persists via SetOptions/GetOptions (spec §4.2, §8's
// options round-trip law).
func (o *Options) Primitive() map[string]interface{} {
	return map[string]interface{}{
		"cache_expires_in":      o.CacheExpiresIn.Seconds(),
		"cache_refreshes_after": o.CacheRefreshesAfter.Seconds(),
		"cache_refresh_jitter":  o.CacheRefreshJitter.Seconds(),
		"cool_down":             o.CoolDown.Seconds(),
		"evaluation_window":     o.EvaluationWindow.Seconds(),
		"rate_threshold":        o.RateThreshold,
		"sample_threshold":      o.SampleThreshold,
		"max_sample_size":       o.MaxSampleSize,
	}
}

// ApplyPrimitive overlays values previously persisted via SetOptions onto
// a copy of o, implementing the "options seen by status/history may be
// supplemented by options persisted in storage" reconciliation (spec
// §4.1 step 1).
func (o *Options) ApplyPrimitive(m map[string]interface{}) *Options {
	clone := o.Clone()
	if v, ok := m["cache_expires_in"].(float64); ok {
		clone.CacheExpiresIn = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["cache_refreshes_after"].(float64); ok {
		clone.CacheRefreshesAfter = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["cache_refresh_jitter"].(float64); ok {
		clone.CacheRefreshJitter = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["cool_down"].(float64); ok {
		clone.CoolDown = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["evaluation_window"].(float64); ok {
		clone.EvaluationWindow = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["rate_threshold"].(float64); ok {
		clone.RateThreshold = v
	}
	if v, ok := m["sample_threshold"].(float64); ok {
		clone.SampleThreshold = int(v)
	}
	if v, ok := m["max_sample_size"].(float64); ok {
		clone.MaxSampleSize = int(v)
	}
	return clone
}
