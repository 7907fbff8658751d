// Package fwdmodel implements the per-sensor forward models and the global
// dispatch that builds their caches and evaluates them against a world
// sample.
package fwdmodel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/obsidian/internal/logging"
	"github.com/signalsfoundry/obsidian/internal/observability"
	"github.com/signalsfoundry/obsidian/kb"
	"github.com/signalsfoundry/obsidian/model"
	"github.com/signalsfoundry/obsidian/world"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnknownSensor is returned for forward models with no physics.
	ErrUnknownSensor = errors.New("no forward model for sensor")
	// ErrMissingCache is returned when a sensor is enabled in the GlobalSpec but
	// its cache was never built.
	ErrMissingCache = errors.New("sensor cache not built")
)

// GlobalCache holds the interpolators and the per-sensor caches for one
// GlobalSpec. It is read-only once built and safe to share between
// goroutines.
type GlobalCache struct {
	Interps []*world.InterpolatorSpec

	Gravity      *GravmagCache
	Magnetics    *GravmagCache
	MtAniso      *PointCache
	Seismic1d    *PointCache
	ContactPoint *PointCache
	Thermal      *ThermalCache
}

// Evaluator builds caches and runs forward models with logging, metrics and
// tracing attached. The zero value is usable.
type Evaluator struct {
	Log     logging.Logger
	Metrics *observability.ForwardCollector
	Solver  *observability.SolverCollector
	// Store deduplicates world queries across sensors. A fresh store is used
	// per GenerateCache call when nil.
	Store *kb.QueryStore
}

type sensorOps struct {
	build   func(ctx context.Context, b *builder, spec *model.GlobalSpec, c *GlobalCache) error
	forward func(ctx context.Context, e *Evaluator, spec *model.GlobalSpec, c *GlobalCache, p *model.GlobalParams, r *model.GlobalResults) error
}

// dispatch maps every sensor in model.Sensors to its cache builder and
// forward model.
var dispatch = map[model.ForwardModel]sensorOps{
	model.Gravity: {
		build: func(ctx context.Context, b *builder, spec *model.GlobalSpec, c *GlobalCache) error {
			gc, err := b.gravmag(spec.Gravity.Voxelisation, spec.Gravity.Locations, GravitySens)
			c.Gravity = gc
			return err
		},
		forward: func(ctx context.Context, e *Evaluator, spec *model.GlobalSpec, c *GlobalCache, p *model.GlobalParams, r *model.GlobalResults) error {
			if c.Gravity == nil {
				return ErrMissingCache
			}
			res, err := ForwardGravity(c.Gravity, &p.World, p.Gravity)
			r.Gravity = res
			return err
		},
	},
	model.Magnetics: {
		build: func(ctx context.Context, b *builder, spec *model.GlobalSpec, c *GlobalCache) error {
			f := MagneticSens(worldFieldUp(spec.Magnetics.BackgroundField))
			gc, err := b.gravmag(spec.Magnetics.Voxelisation, spec.Magnetics.Locations, f)
			c.Magnetics = gc
			return err
		},
		forward: func(ctx context.Context, e *Evaluator, spec *model.GlobalSpec, c *GlobalCache, p *model.GlobalParams, r *model.GlobalResults) error {
			if c.Magnetics == nil {
				return ErrMissingCache
			}
			res, err := ForwardMagnetic(c.Magnetics, &p.World, p.Magnetics)
			r.Magnetics = res
			return err
		},
	},
	model.MtAniso: {
		build: func(ctx context.Context, b *builder, spec *model.GlobalSpec, c *GlobalCache) error {
			q, err := b.points(spec.MtAniso.Locations)
			if err != nil {
				return err
			}
			c.MtAniso = &PointCache{Interps: b.interps, Query: q}
			return nil
		},
		forward: func(ctx context.Context, e *Evaluator, spec *model.GlobalSpec, c *GlobalCache, p *model.GlobalParams, r *model.GlobalResults) error {
			if c.MtAniso == nil {
				return ErrMissingCache
			}
			res, err := ForwardMtAniso(spec.MtAniso, c.MtAniso, &p.World, p.MtAniso)
			r.MtAniso = res
			return err
		},
	},
	model.Seismic1d: {
		build: func(ctx context.Context, b *builder, spec *model.GlobalSpec, c *GlobalCache) error {
			q, err := b.points(spec.Seismic1d.Locations)
			if err != nil {
				return err
			}
			c.Seismic1d = &PointCache{Interps: b.interps, Query: q}
			return nil
		},
		forward: func(ctx context.Context, e *Evaluator, spec *model.GlobalSpec, c *GlobalCache, p *model.GlobalParams, r *model.GlobalResults) error {
			if c.Seismic1d == nil {
				return ErrMissingCache
			}
			res, err := ForwardSeismic1d(spec.Seismic1d, c.Seismic1d, &p.World, p.Seismic1d)
			r.Seismic1d = res
			return err
		},
	},
	model.ContactPoint: {
		build: func(ctx context.Context, b *builder, spec *model.GlobalSpec, c *GlobalCache) error {
			q, err := b.points(spec.ContactPoint.Locations)
			if err != nil {
				return err
			}
			c.ContactPoint = &PointCache{Interps: b.interps, Query: q}
			return nil
		},
		forward: func(ctx context.Context, e *Evaluator, spec *model.GlobalSpec, c *GlobalCache, p *model.GlobalParams, r *model.GlobalResults) error {
			if c.ContactPoint == nil {
				return ErrMissingCache
			}
			res, err := ForwardContactPoint(spec.ContactPoint, c.ContactPoint, &p.World, p.ContactPoint)
			r.ContactPoint = res
			return err
		},
	},
	model.Thermal: {
		build: func(ctx context.Context, b *builder, spec *model.GlobalSpec, c *GlobalCache) error {
			vox := spec.Thermal.Voxelisation
			q, err := b.grid(vox.XResolution, vox.YResolution, vox.ZResolution)
			if err != nil {
				return err
			}
			c.Thermal = &ThermalCache{
				Interps: b.interps,
				Query:   q,
				XBounds: b.world.XBounds,
				YBounds: b.world.YBounds,
				ZBounds: b.world.ZBounds,
			}
			return nil
		},
		forward: func(ctx context.Context, e *Evaluator, spec *model.GlobalSpec, c *GlobalCache, p *model.GlobalParams, r *model.GlobalResults) error {
			if c.Thermal == nil {
				return ErrMissingCache
			}
			res, err := ForwardThermal(ctx, spec.Thermal, c.Thermal, &p.World, p.Thermal)
			if err != nil {
				return err
			}
			e.Solver.ObserveHeatSolve(res.Iterations, res.Converged)
			if !res.Converged {
				e.logger().Error(ctx, "heat solve did not converge",
					logging.Int("iterations", res.Iterations))
			} else {
				e.logger().Debug(ctx, "heat solve finished",
					logging.Int("iterations", res.Iterations), logging.Bool("converged", res.Converged))
			}
			r.Thermal = res
			return nil
		},
	},
}

// builder resolves world queries for one cache build.
type builder struct {
	world   *model.WorldSpec
	interps []*world.InterpolatorSpec
	store   *kb.QueryStore
}

func (b *builder) grid(rx, ry, rz int) (*world.Query, error) {
	return b.store.GetOrBuild(kb.GridKey(rx, ry, rz), func() (*world.Query, error) {
		return world.NewGridQuery(b.interps, b.world, rx, ry, rz)
	})
}

func (b *builder) points(locations *mat.Dense) (*world.Query, error) {
	if locations == nil {
		return nil, fmt.Errorf("no sensor locations")
	}
	return b.store.GetOrBuild(kb.PointsKey(locations), func() (*world.Query, error) {
		return world.NewScatteredQuery(b.interps, b.world, locations)
	})
}

func (b *builder) gravmag(vox model.VoxelSpec, locations *mat.Dense, f SensFunc) (*GravmagCache, error) {
	if locations == nil {
		return nil, fmt.Errorf("no sensor locations")
	}
	rx, ry, rz := supersampled(vox)
	q, err := b.grid(rx, ry, rz)
	if err != nil {
		return nil, err
	}
	return newGravmagCache(b.interps, b.world, q, vox, locations, f)
}

func (e *Evaluator) logger() logging.Logger {
	if e == nil || e.Log == nil {
		return logging.Noop()
	}
	return e.Log
}

// GenerateCache builds the interpolators for spec.World and the cache of
// every enabled sensor. Sensor caches are built concurrently.
func (e *Evaluator) GenerateCache(ctx context.Context, spec *model.GlobalSpec) (*GlobalCache, error) {
	ctx, log := logging.WithRunLogger(ctx, e.logger())
	ctx, span := observability.StartSpan(ctx, observability.SpanGenerateCache, "")
	defer span.End()

	if err := spec.World.Validate(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("GenerateCache: %w", err)
	}
	interps, err := world.NewInterpolators(&spec.World)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("GenerateCache: %w", err)
	}

	store := e.Store
	if store == nil {
		store = kb.NewQueryStore()
	}
	unsubscribe := store.Subscribe(func(ev kb.Event) {
		if ev.Type == kb.EventQueryBuilt {
			log.Debug(ctx, "world query built", logging.String("key", ev.Key), logging.Int("points", ev.Points))
		}
	})
	defer unsubscribe()

	b := &builder{world: &spec.World, interps: interps, store: store}
	cache := &GlobalCache{Interps: interps}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range spec.Enabled() {
		f := f
		ops, ok := dispatch[f]
		if !ok {
			return nil, fmt.Errorf("GenerateCache: %v: %w", f, ErrUnknownSensor)
		}
		g.Go(func() error {
			sctx, sspan := observability.StartSpan(gctx, observability.SpanBuildCache, f.Key())
			defer sspan.End()
			start := time.Now()
			if err := ops.build(sctx, b, spec, cache); err != nil {
				sspan.RecordError(err)
				sspan.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("%v cache: %w", f, err)
			}
			elapsed := time.Since(start)
			e.metrics().ObserveCacheBuild(f.Key(), elapsed)
			log.Info(sctx, "sensor cache built", logging.String("sensor", f.Key()), logging.Duration("elapsed", elapsed))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("GenerateCache: %w", err)
	}
	e.metrics().SetCachedQueries(store.Len())
	return cache, nil
}

func (e *Evaluator) metrics() *observability.ForwardCollector {
	if e == nil {
		return nil
	}
	return e.Metrics
}

// Forward evaluates every enabled sensor against one world sample. Sensors
// run concurrently; the first structural error cancels the rest.
func (e *Evaluator) Forward(ctx context.Context, spec *model.GlobalSpec, cache *GlobalCache, params *model.GlobalParams) (*model.GlobalResults, error) {
	ctx, log := logging.WithRunLogger(ctx, e.logger())
	ctx, span := observability.StartSpan(ctx, observability.SpanForward, "")
	defer span.End()

	if cache == nil {
		return nil, fmt.Errorf("Forward: %w", ErrMissingCache)
	}
	if err := params.World.Validate(&spec.World); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("Forward: %w", err)
	}

	results := &model.GlobalResults{}
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range spec.Enabled() {
		f := f
		ops, ok := dispatch[f]
		if !ok {
			return nil, fmt.Errorf("Forward: %v: %w", f, ErrUnknownSensor)
		}
		g.Go(func() error {
			sctx, sspan := observability.StartSpan(gctx, observability.SpanForwardSensor, f.Key())
			defer sspan.End()
			start := time.Now()
			err := ops.forward(sctx, e, spec, cache, params, results)
			e.metrics().ObserveForward(f.Key(), time.Since(start), err)
			if err != nil {
				sspan.RecordError(err)
				sspan.SetStatus(codes.Error, err.Error())
				log.Warn(sctx, "forward model failed", logging.String("sensor", f.Key()), logging.Err(err))
				return fmt.Errorf("%v: %w", f, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("Forward: %w", err)
	}
	span.SetAttributes(attribute.Int("sensors", len(spec.Enabled())))
	return results, nil
}

// ForwardSensor evaluates a single sensor and stores its result in r.
func (e *Evaluator) ForwardSensor(ctx context.Context, f model.ForwardModel, spec *model.GlobalSpec, cache *GlobalCache, params *model.GlobalParams, r *model.GlobalResults) error {
	ops, ok := dispatch[f]
	if !ok {
		return fmt.Errorf("ForwardSensor: %v: %w", f, ErrUnknownSensor)
	}
	if !spec.Has(f) {
		return fmt.Errorf("ForwardSensor: %v not configured: %w", f, ErrMissingCache)
	}
	if cache == nil {
		return fmt.Errorf("ForwardSensor: %w", ErrMissingCache)
	}
	if err := params.World.Validate(&spec.World); err != nil {
		return fmt.Errorf("ForwardSensor: %w", err)
	}
	return ops.forward(ctx, e, spec, cache, params, r)
}

// GenerateGlobalCache builds a GlobalCache without logging or metrics.
func GenerateGlobalCache(ctx context.Context, spec *model.GlobalSpec) (*GlobalCache, error) {
	return (&Evaluator{}).GenerateCache(ctx, spec)
}

// GlobalForwardModel evaluates every enabled sensor without logging or
// metrics.
func GlobalForwardModel(ctx context.Context, spec *model.GlobalSpec, cache *GlobalCache, params *model.GlobalParams) (*model.GlobalResults, error) {
	return (&Evaluator{}).Forward(ctx, spec, cache, params)
}
