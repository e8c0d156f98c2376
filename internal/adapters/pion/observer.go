package pion

import (
	"sort"
	"sync"
	"time"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// silenceLevel is the RFC 6464 floor: 127 means -127 dBov, i.e. silence.
const silenceLevel = 127

// levelSource is what the observer samples. Producers satisfy it.
type levelSource interface {
	ID() domain.StreamID
	Kind() domain.MediaKind
	audioLevel() (int, time.Time)
}

// levelObserver periodically samples the audio producers added to it and
// fires volumes or silence callbacks, mirroring the per-room speaker
// detection the rest of the system keys off.
type levelObserver struct {
	cfg core.AudioLevelObserverConfig

	mu        sync.Mutex
	producers map[domain.StreamID]levelSource
	onVolumes func([]core.AudioLevel)
	onSilence func()
	speaking  bool

	stop     chan struct{}
	stopOnce sync.Once
}

func newLevelObserver(cfg core.AudioLevelObserverConfig) *levelObserver {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	o := &levelObserver{
		cfg:       cfg,
		producers: make(map[domain.StreamID]levelSource),
		stop:      make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *levelObserver) run() {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.sample(time.Now())
		}
	}
}

// sample evaluates one observation window. Levels older than the window or
// below the threshold count as silence.
func (o *levelObserver) sample(now time.Time) {
	o.mu.Lock()
	levels := make([]core.AudioLevel, 0, len(o.producers))
	for _, src := range o.producers {
		lv, at := src.audioLevel()
		if at.IsZero() || now.Sub(at) > o.cfg.Interval {
			continue
		}
		dbov := -lv
		if dbov < o.cfg.Threshold {
			continue
		}
		levels = append(levels, core.AudioLevel{StreamID: src.ID(), Level: dbov})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level > levels[j].Level })
	if len(levels) > o.cfg.MaxEntries {
		levels = levels[:o.cfg.MaxEntries]
	}

	var (
		volumes = o.onVolumes
		silence = o.onSilence
		fire    bool
	)
	if len(levels) > 0 {
		o.speaking = true
	} else if o.speaking {
		o.speaking = false
		fire = true
	}
	o.mu.Unlock()

	if len(levels) > 0 && volumes != nil {
		volumes(levels)
	}
	if fire && silence != nil {
		silence()
	}
}

// AddProducer registers an audio producer for sampling.
func (o *levelObserver) AddProducer(p core.Producer) error {
	src, ok := p.(levelSource)
	if !ok {
		return errForeignProducer
	}
	if src.Kind() != domain.MediaKindAudio {
		return nil
	}
	o.mu.Lock()
	o.producers[src.ID()] = src
	o.mu.Unlock()
	return nil
}

// RemoveProducer drops a producer from sampling. Unknown ids are ignored.
func (o *levelObserver) RemoveProducer(id domain.StreamID) {
	o.mu.Lock()
	delete(o.producers, id)
	o.mu.Unlock()
}

// OnVolumes sets the callback fired with the loudest entries per window.
func (o *levelObserver) OnVolumes(fn func([]core.AudioLevel)) {
	o.mu.Lock()
	o.onVolumes = fn
	o.mu.Unlock()
}

// OnSilence sets the callback fired once when speech stops.
func (o *levelObserver) OnSilence(fn func()) {
	o.mu.Lock()
	o.onSilence = fn
	o.mu.Unlock()
}

// Close stops the sampler goroutine.
func (o *levelObserver) Close() error {
	o.stopOnce.Do(func() { close(o.stop) })
	return nil
}
