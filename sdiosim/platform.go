package sdiosim

import (
	"sync"
	"time"
)

// Platform records the power, rescan and interrupt line requests made by the
// engine. Events are appended in call order.
type Platform struct {
	mu     sync.Mutex
	events []string
	// OnRescan is called after a rescan request is recorded.
	OnRescan func(delay time.Duration)
}

func (p *Platform) record(ev string) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *Platform) SetPower(on bool) {
	if on {
		p.record("power on")
	} else {
		p.record("power off")
	}
}

func (p *Platform) RequestRescan(delay time.Duration) {
	p.record("rescan")
	if p.OnRescan != nil {
		p.OnRescan(delay)
	}
}

func (p *Platform) DisableHostIRQ() { p.record("host irq off") }

func (p *Platform) SetWakeupIRQ(enable bool) {
	if enable {
		p.record("wakeup irq on")
	} else {
		p.record("wakeup irq off")
	}
}

func (p *Platform) EnableHostWakeup(enable bool) {
	if enable {
		p.record("host wakeup on")
	} else {
		p.record("host wakeup off")
	}
}

// Events returns a copy of the recorded events.
func (p *Platform) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// Count returns how many times ev was recorded.
func (p *Platform) Count(ev string) (n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == ev {
			n++
		}
	}
	return n
}
