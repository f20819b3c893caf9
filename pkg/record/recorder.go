// Package record turns a stream of sampling records into sample tables.
package record

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/filename"
	"github.com/maxgio92/xprof/pkg/samplefile"
)

const recChBufSize = 4096

// Stats are the recorder counters.
type Stats struct {
	// Samples is the number of sample records consumed.
	Samples uint64 `json:"samples"`
	// Lost is the number of samples that could not be stored.
	Lost uint64 `json:"lost"`
	// Stores is the number of sample tables currently open.
	Stores int `json:"stores"`
}

type Recorder struct {
	procs  *processTable
	stores *lru.Cache[string, *samplefile.File]

	samples  atomic.Uint64
	lost     atomic.Uint64
	consumed atomic.Uint64

	*Options
}

func New(opts ...Option) (*Recorder, error) {
	r := &Recorder{
		procs: newProcessTable(),
		Options: &Options{
			fs:     afero.NewOsFs(),
			logger: log.Nop(),
		},
	}
	for _, f := range opts {
		f(r.Options)
	}

	if r.config == nil {
		return nil, fault.UsageErr("record.New", ErrNoConfig)
	}
	if err := r.config.Validate(); err != nil {
		return nil, fault.UsageErr("record.New", err)
	}
	r.logger = r.logger.With().Str("component", "recorder").Logger()

	var err error
	r.stores, err = lru.NewWithEvict(r.config.MaxOpenFiles, r.closeStore)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create store cache")
	}

	return r, nil
}

func (r *Recorder) closeStore(path string, f *samplefile.File) {
	if err := f.Sync(); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("failed to sync sample table")
	}
	if err := f.Close(); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("failed to close sample table")
	}
}

// Run consumes src until it ends or ctx is done. Sample tables are synced
// every sync interval and closed before returning. src is closed when it
// is an io.Closer.
func (r *Recorder) Run(ctx context.Context, src io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.Close()

	if c, ok := src.(io.Closer); ok {
		go func() {
			<-ctx.Done()
			c.Close()
		}()
	}

	recCh := make(chan Record, recChBufSize)
	errCh := make(chan error, 1)
	go r.consume(ctx, NewDecoder(src), recCh, errCh)

	ticker := time.NewTicker(r.config.SyncInterval)
	defer ticker.Stop()

	r.logger.Info().Str("session", r.config.SessionDir()).Msg("recording samples")
	if r.onReady != nil {
		r.onReady()
	}
	go r.printStatusBar(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("stopping recording")
			return nil
		case <-ticker.C:
			r.Sync()
		case rec, ok := <-recCh:
			if !ok {
				select {
				case err := <-errCh:
					return err
				default:
					r.logger.Debug().Msg("end of sample stream")
					return nil
				}
			}
			if err := r.handle(rec); err != nil {
				return err
			}
		}
	}
}

func (r *Recorder) consume(ctx context.Context, dec *Decoder, recCh chan<- Record, errCh chan<- error) {
	defer close(recCh)

	for {
		rec, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				errCh <- err
			}
			return
		}

		select {
		case recCh <- rec:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Recorder) handle(rec Record) error {
	switch rec.Kind {
	case KindSample:
		return r.sample(rec)
	case KindMmap:
		m, err := rec.Mapping()
		if err != nil {
			return err
		}
		r.procs.mmap(rec.PID, m)
	case KindExec:
		r.procs.exec(rec.PID, rec.Path())
	case KindFork:
		parent, err := rec.ParentPID()
		if err != nil {
			return err
		}
		r.procs.fork(rec.PID, parent)
	case KindExit:
		r.procs.exit(rec.PID)
	default:
		r.logger.Debug().Stringer("kind", rec.Kind).Msg("skipping unknown record")
	}

	return nil
}

func (r *Recorder) sample(rec Record) error {
	r.samples.Add(1)
	r.consumed.Add(1)

	if int(rec.Counter) >= len(r.config.Counters) {
		r.logger.Debug().Uint32("counter", rec.Counter).Msg("sample from unknown counter")
		r.lost.Add(1)
		return nil
	}
	loc, ok := r.procs.resolve(rec.PID, rec.Addr)
	if !ok || loc.offset == 0 {
		r.lost.Add(1)
		return nil
	}

	spec := r.spec(rec, loc)
	path, err := filename.Encode(spec)
	if err != nil {
		r.logger.Debug().Err(err).Str("image", loc.image).Msg("unable to name sample table")
		r.lost.Add(1)
		return nil
	}

	f, err := r.store(path, spec)
	if err != nil {
		return err
	}
	if err := f.Insert(loc.offset, 1); err != nil {
		r.logger.Error().Err(err).Str("path", path).Msg("failed to insert sample")
		r.stores.Remove(path)
		r.lost.Add(1)
	}

	return nil
}

func (r *Recorder) spec(rec Record, loc location) filename.Spec {
	ctr := r.config.Counters[rec.Counter]
	sep := r.config.Separate

	s := filename.Spec{
		BaseDir:  r.config.SessionDir(),
		Image:    loc.image,
		Event:    ctr.Event,
		Count:    ctr.Count,
		UnitMask: ctr.UnitMask,
		TGID:     filename.All,
		TID:      filename.All,
		CPU:      filename.All,
	}

	attribute := sep.Lib
	if loc.kernel() {
		attribute = sep.Kernel
	}
	if attribute && loc.app != "" && loc.app != loc.image {
		s.Image, s.LibImage = loc.app, loc.image
	}
	if sep.Thread {
		s.TGID, s.TID = int(rec.PID), int(rec.TID)
	}
	if sep.CPU {
		s.CPU = int(rec.CPU)
	}

	return s
}

func (r *Recorder) store(path string, spec filename.Spec) (*samplefile.File, error) {
	if f, ok := r.stores.Get(path); ok {
		return f, nil
	}

	f, err := samplefile.Create(path, samplefile.Header{
		CPUType:        r.config.CPUType,
		Event:          spec.Event,
		UnitMask:       spec.UnitMask,
		Count:          spec.Count,
		IsKernel:       spec.IsKernel(),
		SeparateLib:    r.config.Separate.Lib,
		SeparateKernel: r.config.Separate.Kernel,
		CPUSpeed:       r.config.CPUSpeed,
		Mtime:          r.mtime(spec),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sample table %s", path)
	}
	r.stores.Add(path, f)
	r.logger.Debug().Str("path", path).Msg("opened sample table")

	return f, nil
}

func (r *Recorder) mtime(spec filename.Spec) int64 {
	if spec.IsKernel() {
		return 0
	}
	info, err := r.fs.Stat(spec.SampledImage())
	if err != nil {
		r.logger.Debug().Err(err).Str("image", spec.SampledImage()).Msg("unknown image modification time")
		return 0
	}

	return info.ModTime().Unix()
}

// Sync flushes the open sample tables.
func (r *Recorder) Sync() {
	for _, path := range r.stores.Keys() {
		f, ok := r.stores.Peek(path)
		if !ok {
			continue
		}
		if err := f.Sync(); err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("failed to sync sample table")
		}
	}
}

// Close syncs and closes every open sample table.
func (r *Recorder) Close() {
	r.stores.Purge()
}

func (r *Recorder) Stats() Stats {
	return Stats{
		Samples: r.samples.Load(),
		Lost:    r.lost.Load(),
		Stores:  r.stores.Len(),
	}
}
