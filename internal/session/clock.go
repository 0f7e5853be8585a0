package session

import "time"

const tickInterval = time.Second

// Ticker is the subset of *time.Ticker the clock needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// clock advances elapsed seconds only through its own ticks. Every start
// bumps the generation so ticks delivered after a stop are discarded.
type clock struct {
	newTicker TickerFactory
	gen       uint64
	stop      chan struct{}
}

func (k *clock) running() bool {
	return k.stop != nil
}

// start launches the tick loop. onTick receives the generation it was
// started with. Callers hold the controller lock.
func (k *clock) start(onTick func(gen uint64)) {
	k.halt()
	k.gen++
	gen := k.gen
	stop := make(chan struct{})
	k.stop = stop
	ticker := k.newTicker(tickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				onTick(gen)
			}
		}
	}()
}

// halt stops the tick loop. Callers hold the controller lock.
func (k *clock) halt() {
	if k.stop != nil {
		close(k.stop)
		k.stop = nil
	}
	k.gen++
}
