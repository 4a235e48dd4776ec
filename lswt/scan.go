package lswt

import (
	"context"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/fumin/magnons/spinham"
	"github.com/fumin/magnons/util"
)

// ScanOptions configure Scan.
type ScanOptions struct {
	relative    bool
	units       string
	workers     int
	logInterval time.Duration
	quiet       bool
}

func NewScanOptions() ScanOptions {
	return ScanOptions{units: "meV", workers: runtime.NumCPU(), logInterval: time.Minute}
}

// Relative interprets the k points relative to the reciprocal cell.
func (o ScanOptions) Relative(r bool) ScanOptions {
	o.relative = r
	return o
}

// Units are the units of the returned energies, any of the frequency units of
// spinham.FrequencyConversionFactor.
func (o ScanOptions) Units(u string) ScanOptions {
	o.units = u
	return o
}

// Workers bounds the number of k points diagonalized concurrently.
func (o ScanOptions) Workers(n int) ScanOptions {
	o.workers = n
	return o
}

// LogInterval is the minimum time between two progress logs.
func (o ScanOptions) LogInterval(d time.Duration) ScanOptions {
	o.logInterval = d
	return o
}

func (o ScanOptions) Quiet(q bool) ScanOptions {
	o.quiet = q
	return o
}

// Scan diagonalizes every k point. Results are in the order of ks.
// Cancelling ctx stops the scan before the next k point.
func (l *LSWT) Scan(ctx context.Context, ks []r3.Vec, options ScanOptions) ([]Diagonalization, error) {
	f, err := spinham.FrequencyConversionFactor("meV", options.units)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if options.relative {
		abs := make([]r3.Vec, len(ks))
		for i, k := range ks {
			if abs[i], err = l.cell.Absolute(k); err != nil {
				return nil, errors.Wrap(err, "")
			}
		}
		ks = abs
	}

	ds := make([]Diagonalization, len(ks))
	throttler := util.NewThrottler(options.logInterval)
	var done, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(options.workers, 1))
	for i, k := range ks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.Wrap(err, "")
			}
			ds[i] = l.Diagonalize(k, false).Scaled(f)
			if !ds[i].OK() {
				failed.Add(1)
			}

			n := done.Add(1)
			if !options.quiet && (throttler.Ok() || int(n) == len(ks)) {
				log.Printf("scan %d/%d, %d failed", n, len(ks), failed.Load())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return ds, nil
}

// KPath returns n evenly spaced points on every segment between consecutive
// points, followed by the last point.
func KPath(points []r3.Vec, n int) []r3.Vec {
	if len(points) < 2 {
		return append([]r3.Vec(nil), points...)
	}
	n = max(n, 1)
	path := make([]r3.Vec, 0, n*(len(points)-1)+1)
	for i := 0; i < len(points)-1; i++ {
		d := r3.Sub(points[i+1], points[i])
		for j := range n {
			path = append(path, r3.Add(points[i], r3.Scale(float64(j)/float64(n), d)))
		}
	}
	return append(path, points[len(points)-1])
}
