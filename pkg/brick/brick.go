// Package brick hosts features of a sleep-cycled sensor node and runs their
// wake cycle: begin, start, deliver, exchange with the remote controller,
// feedback, end.
package brick

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/itohio/brickheat/pkg/console"
	"github.com/itohio/brickheat/pkg/fsmem"
	"github.com/itohio/brickheat/pkg/rtcmem"
)

// Feature is the capability set every brick feature provides.
type Feature interface {
	Name() string
	Version() uint16

	// Begin prepares the feature; full initialisation happens only on a
	// cold start (retained memory invalid).
	Begin(ctx context.Context) error
	// Start kicks off background work such as sensor conversions.
	Start(ctx context.Context) error
	// Deliver adds the feature's status fragment to out.
	Deliver(ctx context.Context, out Document) error
	// Feedback applies the commands in in.
	Feedback(ctx context.Context, in Document) error
	// End finalises the feature before sleep.
	End(ctx context.Context) error

	DescribeRetained(w io.Writer)
	DescribePersistent(w io.Writer)
	RunSetupMenu(ctx context.Context, con *console.Console) error
}

// Exchanger sends the outgoing document to the remote controller and returns
// its reply.
type Exchanger interface {
	Exchange(ctx context.Context, out Document) (Document, error)
}

// Brick is the feature host. It owns the persistent and retained stores the
// features register with.
type Brick struct {
	rtc       *rtcmem.Memory
	fs        *fsmem.Store
	exchanger Exchanger
	log       *slog.Logger

	features []Feature
	booted   bool
}

// New creates a brick host.
func New(rtc *rtcmem.Memory, fs *fsmem.Store, exchanger Exchanger, logger *slog.Logger) *Brick {
	if logger == nil {
		logger = slog.Default()
	}
	return &Brick{
		rtc:       rtc,
		fs:        fs,
		exchanger: exchanger,
		log:       logger,
	}
}

// Register adds a feature. Features must be registered before Boot.
func (b *Brick) Register(f Feature) error {
	if b.booted {
		return fmt.Errorf("feature %q registered after boot", f.Name())
	}
	for _, existing := range b.features {
		if existing.Name() == f.Name() {
			return fmt.Errorf("feature %q already registered", f.Name())
		}
	}
	b.features = append(b.features, f)
	return nil
}

// Features returns the registered features in registration order.
func (b *Brick) Features() []Feature {
	return b.features
}

// Boot loads the retained memory and begins all features. It corresponds to
// a wake from sleep (or a cold power-up when retained memory is invalid).
func (b *Brick) Boot(ctx context.Context) error {
	b.booted = true
	if err := b.rtc.Load(); err != nil {
		b.log.Warn("retained memory unavailable", "error", err)
	}
	b.log.Debug("boot", "retained_valid", b.rtc.Valid(), "features", len(b.features))

	var errs []error
	for _, f := range b.features {
		if err := f.Begin(ctx); err != nil {
			errs = append(errs, b.featureErr(f, "begin", err))
		}
	}
	return errors.Join(errs...)
}

// Cycle runs one wake cycle after Boot. Feature and transport failures are
// logged and returned; the cycle always completes and the stores are saved.
func (b *Brick) Cycle(ctx context.Context) error {
	var errs []error

	for _, f := range b.features {
		if err := f.Start(ctx); err != nil {
			errs = append(errs, b.featureErr(f, "start", err))
		}
	}

	out := Document{}
	for _, f := range b.features {
		if err := f.Deliver(ctx, out); err != nil {
			errs = append(errs, b.featureErr(f, "deliver", err))
		}
	}

	in, err := b.exchanger.Exchange(ctx, out)
	if err != nil {
		b.log.Warn("exchange failed, skipping feedback", "error", err)
		errs = append(errs, fmt.Errorf("exchange: %w", err))
	} else {
		for _, f := range b.features {
			if err := f.Feedback(ctx, in); err != nil {
				errs = append(errs, b.featureErr(f, "feedback", err))
			}
		}
	}

	for _, f := range b.features {
		if err := f.End(ctx); err != nil {
			errs = append(errs, b.featureErr(f, "end", err))
		}
	}

	if err := b.Persist(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Persist saves the persistent store and the retained memory.
func (b *Brick) Persist() error {
	var errs []error
	if err := b.fs.Save(); err != nil {
		b.log.Error("failed to save persistent store", "error", err)
		errs = append(errs, err)
	}
	if err := b.rtc.Save(); err != nil {
		b.log.Error("failed to save retained memory", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run boots and cycles until ctx is done or cycles wake cycles ran
// (cycles <= 0 runs forever). Between cycles the brick "sleeps": retained
// memory is reloaded on the next boot just as after a deep sleep reset.
func (b *Brick) Run(ctx context.Context, sleep time.Duration, cycles int) error {
	for n := 1; cycles <= 0 || n <= cycles; n++ {
		if err := b.Boot(ctx); err != nil {
			b.log.Warn("boot completed with errors", "cycle", n, "error", err)
		}
		if err := b.Cycle(ctx); err != nil {
			b.log.Warn("cycle completed with errors", "cycle", n, "error", err)
		} else {
			b.log.Info("cycle completed", "cycle", n)
		}

		if cycles > 0 && n == cycles {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil
}

func (b *Brick) featureErr(f Feature, stage string, err error) error {
	b.log.Warn("feature failed", "feature", f.Name(), "stage", stage, "error", err)
	return fmt.Errorf("%s %s: %w", f.Name(), stage, err)
}
