// Package features assembles the fixed-shape feature vector for a transaction.
// Each feature group is computed concurrently and in isolation: a slow or
// failing collaborator defaults only the fields it feeds.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/metrics"
)

// Locator resolves an IP address to a location.
type Locator interface {
	Locate(ctx context.Context, ip string) (*domain.Location, error)
}

// Result is the outcome of one assembly.
type Result struct {
	Vector   *domain.FeatureVector
	Baseline *domain.UserBaseline // nil when the global baseline was used
	Location *domain.Location     // resolved location, possibly from GeoIP
}

// Assembler builds feature vectors from history and baselines.
type Assembler struct {
	history   domain.History
	baselines domain.BaselineStore
	locator   Locator

	deviation *DeviationCalculator
	geotime   *GeoTimeAnalyzer
	cfg       domain.FeatureConfig
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLocator enables GeoIP fallback for transactions without a location.
func WithLocator(l Locator) Option {
	return func(a *Assembler) { a.locator = l }
}

// WithClock overrides the clock used for baseline staleness.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler creates an assembler.
func NewAssembler(cfg domain.FeatureConfig, history domain.History, baselines domain.BaselineStore, logger *slog.Logger, opts ...Option) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = 50 * time.Millisecond
	}
	if cfg.BaselineTimeout <= 0 {
		cfg.BaselineTimeout = 50 * time.Millisecond
	}
	if cfg.FrequencyWindow <= 0 {
		cfg.FrequencyWindow = 24 * time.Hour
	}

	a := &Assembler{
		history:   history,
		baselines: baselines,
		deviation: NewDeviationCalculator(cfg),
		geotime:   NewGeoTimeAnalyzer(cfg),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// group collects the fields one goroutine is responsible for.
type group struct {
	name   string
	fields []string
	values map[string]domain.FeatureValue
	low    bool

	baselineSource  string
	baseline        *domain.UserBaseline
	location        *domain.Location
	geoInsufficient bool
}

func newGroup(name string, fields ...string) *group {
	return &group{name: name, fields: fields, values: make(map[string]domain.FeatureValue, len(fields))}
}

func (g *group) set(name string, v float64) {
	g.values[name] = domain.FeatureValue{Value: v}
}

// absent defaults a field for an expected reason.
func (g *group) absent(name, reason string) {
	g.values[name] = domain.FeatureValue{Value: domain.FeatureDefaults[name], Null: true, Reason: reason}
}

// fail defaults a field after a collaborator failure.
func (g *group) fail(name, reason string) {
	g.absent(name, reason)
	g.low = true
}

// Assemble computes the feature vector for tx and then records tx into
// history, so windowed counts cover prior events only. It never fails:
// every problem degrades to documented defaults.
func (a *Assembler) Assemble(ctx context.Context, tx *domain.Transaction) *Result {
	velocity := newGroup("velocity", domain.FeatureTxCount1m, domain.FeatureTxCount5m, domain.FeatureTxCount1h)
	frequency := newGroup("frequency", domain.FeatureDeviceFrequency, domain.FeatureMerchantFrequency)
	deviation := newGroup("deviation", domain.FeatureDeviationMean, domain.FeatureDeviationMedian, domain.FeatureAmountPercentile)
	geo := newGroup("geo", domain.FeatureGeoInconsistency, domain.FeatureDistanceKm, domain.FeatureHoursSinceLast)

	var eg errgroup.Group
	a.spawn(&eg, velocity, func() { a.velocity(ctx, tx, velocity) })
	a.spawn(&eg, frequency, func() { a.frequency(ctx, tx, frequency) })
	a.spawn(&eg, deviation, func() { a.amountDeviation(ctx, tx, deviation) })
	a.spawn(&eg, geo, func() { a.geoTime(ctx, tx, geo) })
	_ = eg.Wait()

	fv := domain.NewFeatureVector(tx.ID)
	fv.BaselineSource = domain.BaselineSourceGlobal
	res := &Result{Vector: fv}

	for _, g := range []*group{velocity, frequency, deviation, geo} {
		for name, v := range g.values {
			if !v.Null && (math.IsNaN(v.Value) || math.IsInf(v.Value, 0)) {
				a.logger.Warn("non-finite feature replaced with default",
					"tx_id", tx.ID,
					"feature", name,
				)
				v = domain.FeatureValue{Value: domain.FeatureDefaults[name], Null: true, Reason: domain.ReasonNonFinite}
				fv.LowConfidence = true
			}
			fv.Values[name] = v
			if v.Null && v.Reason != domain.ReasonInsufficientHistory && v.Reason != domain.ReasonNoLocation {
				metrics.FeatureFallbacksTotal.WithLabelValues(name, v.Reason).Inc()
			}
		}
		if g.low {
			fv.LowConfidence = true
		}
	}

	if deviation.baselineSource != "" {
		fv.BaselineSource = deviation.baselineSource
	}
	if fv.BaselineSource == domain.BaselineSourceGlobal {
		fv.LowConfidence = true
		metrics.BaselineFallbacksTotal.Inc()
	}
	res.Baseline = deviation.baseline
	fv.GeoInsufficientHistory = geo.geoInsufficient
	res.Location = geo.location

	a.record(ctx, tx, geo.location)
	return res
}

// spawn runs fn in the group. A panic defaults every field the group owns.
func (a *Assembler) spawn(eg *errgroup.Group, g *group, fn func()) {
	eg.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("feature group panicked",
					"group", g.name,
					"panic", fmt.Sprint(r),
				)
				g.values = make(map[string]domain.FeatureValue, len(g.fields))
				for _, name := range g.fields {
					g.fail(name, domain.ReasonPanic)
				}
			}
		}()
		fn()
		return nil
	})
}

func (a *Assembler) velocity(ctx context.Context, tx *domain.Transaction, g *group) {
	windows := []struct {
		name string
		d    time.Duration
	}{
		{domain.FeatureTxCount1m, time.Minute},
		{domain.FeatureTxCount5m, 5 * time.Minute},
		{domain.FeatureTxCount1h, time.Hour},
	}
	for _, w := range windows {
		n, err := a.count(ctx, tx, domain.KeyUser, tx.UserID, w.d)
		if err != nil {
			g.fail(w.name, historyReason(err))
			continue
		}
		g.set(w.name, float64(n))
	}
}

func (a *Assembler) frequency(ctx context.Context, tx *domain.Transaction, g *group) {
	if tx.DeviceID == "" {
		g.set(domain.FeatureDeviceFrequency, 0)
	} else if n, err := a.count(ctx, tx, domain.KeyDevice, tx.DeviceID, a.cfg.FrequencyWindow); err != nil {
		g.fail(domain.FeatureDeviceFrequency, historyReason(err))
	} else {
		g.set(domain.FeatureDeviceFrequency, float64(n))
	}

	if tx.MerchantID == "" {
		g.set(domain.FeatureMerchantFrequency, 0)
	} else if n, err := a.count(ctx, tx, domain.KeyMerchant, domain.MerchantKey(tx.UserID, tx.MerchantID), a.cfg.FrequencyWindow); err != nil {
		g.fail(domain.FeatureMerchantFrequency, historyReason(err))
	} else {
		g.set(domain.FeatureMerchantFrequency, float64(n))
	}
}

func (a *Assembler) amountDeviation(ctx context.Context, tx *domain.Transaction, g *group) {
	var baseline *domain.UserBaseline
	if a.baselines != nil {
		cctx, cancel := context.WithTimeout(ctx, a.cfg.BaselineTimeout)
		b, err := a.baselines.GetBaseline(cctx, tx.TenantID, tx.UserID)
		cancel()
		switch {
		case err == nil:
			baseline = b
		case errors.Is(err, domain.ErrBaselineNotFound):
			a.logger.Debug("no user baseline, using global", "tx_id", tx.ID, "user_id", tx.UserID)
		default:
			a.logger.Warn("baseline fetch failed, using global",
				"tx_id", tx.ID,
				"user_id", tx.UserID,
				"error", err,
			)
		}
	}

	now := a.now()
	if baseline != nil && !a.deviation.Usable(baseline, now) {
		a.logger.Debug("user baseline stale or thin, using global",
			"tx_id", tx.ID,
			"user_id", tx.UserID,
			"sample_count", baseline.SampleCount,
		)
	}

	dev, source := a.deviation.Compute(tx.Amount, baseline, now)
	g.baselineSource = source
	if source == domain.BaselineSourceUser {
		g.baseline = baseline
	}
	g.set(domain.FeatureDeviationMean, dev.FromMean)
	g.set(domain.FeatureDeviationMedian, dev.FromMedian)
	g.set(domain.FeatureAmountPercentile, dev.Percentile)
}

func (a *Assembler) geoTime(ctx context.Context, tx *domain.Transaction, g *group) {
	lastSeen, err := a.lastSeen(ctx, tx)
	switch {
	case err != nil:
		g.fail(domain.FeatureHoursSinceLast, historyReason(err))
	case lastSeen.IsZero():
		g.absent(domain.FeatureHoursSinceLast, domain.ReasonInsufficientHistory)
	default:
		g.set(domain.FeatureHoursSinceLast, math.Max(0, tx.Timestamp.Sub(lastSeen).Hours()))
	}

	loc := a.resolveLocation(ctx, tx)
	if loc == nil {
		g.absent(domain.FeatureGeoInconsistency, domain.ReasonNoLocation)
		g.absent(domain.FeatureDistanceKm, domain.ReasonNoLocation)
		return
	}
	g.location = loc

	prev, err := a.mostRecentLocation(ctx, tx)
	if err != nil {
		reason := historyReason(err)
		g.fail(domain.FeatureGeoInconsistency, reason)
		g.fail(domain.FeatureDistanceKm, reason)
		return
	}

	gt := a.geotime.Analyze(prev, *loc, tx.Timestamp)
	if gt.Insufficient {
		g.geoInsufficient = true
		g.absent(domain.FeatureGeoInconsistency, domain.ReasonInsufficientHistory)
		if prev == nil {
			g.absent(domain.FeatureDistanceKm, domain.ReasonInsufficientHistory)
		} else {
			g.set(domain.FeatureDistanceKm, gt.DistanceKm)
		}
		return
	}
	g.set(domain.FeatureGeoInconsistency, gt.Score)
	g.set(domain.FeatureDistanceKm, gt.DistanceKm)
}

func (a *Assembler) resolveLocation(ctx context.Context, tx *domain.Transaction) *domain.Location {
	if tx.Location != nil {
		return tx.Location
	}
	if a.locator == nil || tx.IP == "" {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, a.cfg.HistoryTimeout)
	defer cancel()
	loc, err := a.locator.Locate(cctx, tx.IP)
	if err != nil {
		a.logger.Debug("ip lookup failed", "tx_id", tx.ID, "error", err)
		return nil
	}
	return loc
}

func (a *Assembler) count(ctx context.Context, tx *domain.Transaction, kt domain.KeyType, key string, window time.Duration) (int64, error) {
	if a.history == nil {
		return 0, errNoHistory
	}
	cctx, cancel := context.WithTimeout(ctx, a.cfg.HistoryTimeout)
	defer cancel()
	return a.history.Count(cctx, tx.TenantID, kt, key, tx.Timestamp.Add(-window), tx.Timestamp)
}

func (a *Assembler) lastSeen(ctx context.Context, tx *domain.Transaction) (time.Time, error) {
	if a.history == nil {
		return time.Time{}, errNoHistory
	}
	cctx, cancel := context.WithTimeout(ctx, a.cfg.HistoryTimeout)
	defer cancel()
	return a.history.LastSeen(cctx, tx.TenantID, tx.UserID)
}

func (a *Assembler) mostRecentLocation(ctx context.Context, tx *domain.Transaction) (*domain.LocationFix, error) {
	if a.history == nil {
		return nil, errNoHistory
	}
	cctx, cancel := context.WithTimeout(ctx, a.cfg.HistoryTimeout)
	defer cancel()
	return a.history.MostRecentLocation(cctx, tx.TenantID, tx.UserID)
}

// record adds tx to history, carrying a GeoIP-resolved location if any.
func (a *Assembler) record(ctx context.Context, tx *domain.Transaction, loc *domain.Location) {
	if a.history == nil {
		return
	}
	rec := tx
	if tx.Location == nil && loc != nil {
		cp := *tx
		cp.Location = loc
		rec = &cp
	}
	cctx, cancel := context.WithTimeout(ctx, a.cfg.HistoryTimeout)
	defer cancel()
	if err := a.history.Record(cctx, rec); err != nil {
		a.logger.Warn("failed to record transaction in history",
			"tx_id", tx.ID,
			"error", err,
		)
	}
}

var errNoHistory = errors.New("history not configured")

func historyReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ReasonHistoryTimeout
	}
	return domain.ReasonHistoryError
}
