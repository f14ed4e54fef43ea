package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgallion1/apindex/internal/config"
	"github.com/dgallion1/apindex/internal/index"
	"github.com/dgallion1/apindex/internal/segment"
	"github.com/dgallion1/apindex/internal/sink"
	"github.com/dgallion1/apindex/internal/store"
)

// ErrDeleteUnsupported is returned by DeleteVolume for write-only destinations.
var ErrDeleteUnsupported = errors.New("destination does not support deleting volumes")

// Destination is where records go, chosen by the sink setting. It hands out one
// sink per volume.
type Destination struct {
	kind string
	log  *slog.Logger
	cfg  config.IndexConfig

	client *index.Client
	store  *store.Store
	jsonl  *sink.JSONLines
	out    io.WriteCloser
	memory *sink.Memory
}

// OpenDestination connects the sink named by cfg.Sink.
func OpenDestination(ctx context.Context, cfg config.Config, log *slog.Logger) (*Destination, error) {
	d := &Destination{kind: cfg.Sink, log: log, cfg: cfg.Index}
	switch cfg.Sink {
	case config.SinkIndex:
		d.client = index.NewClient(index.ClientConfig{
			URL:        cfg.Index.URL,
			APIKey:     cfg.Index.APIKey,
			MaxRetries: cfg.Index.MaxRetries,
		})
	case config.SinkStore:
		s, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		d.store = s
	case config.SinkJSONL:
		if cfg.Output == "-" {
			d.out = nopCloser{os.Stdout}
		} else {
			f, err := os.Create(cfg.Output)
			if err != nil {
				return nil, fmt.Errorf("create output: %w", err)
			}
			d.out = f
		}
		d.jsonl = sink.NewJSONLines(d.out)
	case config.SinkMemory:
		d.memory = sink.NewMemory()
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
	return d, nil
}

// VolumeSink returns the sink for one volume and the function that flushes it.
func (d *Destination) VolumeSink(ctx context.Context, druid string) (segment.Sink, Finish, error) {
	switch {
	case d.client != nil:
		b := index.NewBatchSink(index.BatchConfig{
			Client:        d.client,
			BatchSize:     d.cfg.BatchSize,
			FlushInterval: d.cfg.FlushInterval,
			Logger:        d.log.With("volume", druid),
		})
		b.Start(ctx)
		return b, b.Close, nil
	case d.store != nil:
		return d.store.Sink(ctx), noFinish, nil
	case d.jsonl != nil:
		return d.jsonl, func(context.Context) error { return d.jsonl.Flush() }, nil
	case d.memory != nil:
		return d.memory, noFinish, nil
	}
	return nil, nil, fmt.Errorf("destination %q is closed", d.kind)
}

// DeleteVolume removes every record of druid from the index or the store.
func (d *Destination) DeleteVolume(ctx context.Context, druid string) error {
	switch {
	case d.client != nil:
		if err := d.client.DeleteVolume(ctx, druid); err != nil {
			return err
		}
		return d.client.Commit(ctx)
	case d.store != nil:
		n, err := d.store.DeleteVolume(ctx, druid)
		if err != nil {
			return err
		}
		d.log.Info("volume deleted from store", "volume", druid, "records", n)
		return nil
	}
	return ErrDeleteUnsupported
}

// IndexStats returns the index client's request stats, or nil for other sinks.
func (d *Destination) IndexStats() *index.Stats {
	if d.client == nil {
		return nil
	}
	return d.client.Stats()
}

// Memory returns the in-memory sink, or nil for other sinks.
func (d *Destination) Memory() *sink.Memory {
	return d.memory
}

func (d *Destination) Close() error {
	var errs []error
	if d.client != nil {
		d.client.Close()
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.jsonl != nil {
		errs = append(errs, d.jsonl.Flush(), d.out.Close())
	}
	return errors.Join(errs...)
}

func noFinish(context.Context) error { return nil }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
