package platform

import "time"

// checkpointPolicy decides when to report progress and when to persist the
// current network, based on the rolling window average.
type checkpointPolicy struct {
	improvement    float64
	saveInterval   time.Duration
	notifyInterval time.Duration

	savedAvg   float64
	haveSaved  bool
	lastNotify time.Time
	lastSave   time.Time
}

type checkpoint struct {
	improved bool
	notify   bool
	save     bool
}

func newCheckpointPolicy(cfg DriverConfig, start time.Time) *checkpointPolicy {
	return &checkpointPolicy{
		improvement:    cfg.Improvement,
		saveInterval:   cfg.SaveInterval,
		notifyInterval: cfg.ProgressInterval,
		lastNotify:     start,
		lastSave:       start,
	}
}

// observe takes the window average after a generation. The first full
// window sets the reference average without counting as an improvement.
func (p *checkpointPolicy) observe(avg float64, ready bool, now time.Time) checkpoint {
	if !p.haveSaved && ready {
		p.savedAvg, p.haveSaved = avg, true
	}
	var c checkpoint
	c.improved = p.haveSaved && avg >= p.savedAvg+p.improvement
	c.notify = c.improved || now.Sub(p.lastNotify) >= p.notifyInterval
	c.save = c.improved || now.Sub(p.lastSave) > p.saveInterval
	if c.notify {
		p.lastNotify = now
	}
	if c.save {
		p.savedAvg, p.haveSaved = avg, true
		p.lastSave = now
	}
	return c
}
