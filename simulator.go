package heartbeat

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/atomic"
)

const (
	defaultSimulatorInterval = time.Second
	defaultMinHeartRate      = 80
	defaultMaxHeartRate      = 185
	defaultStep              = 3
	defaultJitter            = 2
)

// Simulator denotes a simulated heart rate sensor, performing a bounded random walk
type Simulator struct {
	mu sync.Mutex

	interval     time.Duration
	minHeartRate int
	maxHeartRate int
	step         int
	jitter       int

	rand   *rand.Rand
	active *simulatorSubscription

	logger Logger
}

// NewSimulator instantiates a new Simulator, executing functional options, if any
func NewSimulator(options ...func(*Simulator)) *Simulator {
	s := &Simulator{
		interval:     defaultSimulatorInterval,
		minHeartRate: defaultMinHeartRate,
		maxHeartRate: defaultMaxHeartRate,
		step:         defaultStep,
		jitter:       defaultJitter,
		logger:       &NullLogger{},
	}

	for _, option := range options {
		option(s)
	}

	if s.rand == nil {
		s.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.jitter < 0 {
		s.jitter = 0
	}
	if s.maxHeartRate < s.minHeartRate {
		s.minHeartRate, s.maxHeartRate = s.maxHeartRate, s.minHeartRate
	}

	return s
}

// Subscribe starts emitting simulated notifications to fn. Only one subscription is
// active at a time: subscribing again ends the previous one
func (s *Simulator) Subscribe(fn Handler) (Subscription, error) {
	if fn == nil {
		return nil, errors.New("cannot subscribe nil handler")
	}
	if s.interval <= 0 {
		return nil, errors.New("simulation interval must be positive")
	}

	sub := &simulatorSubscription{
		running:  atomic.NewBool(true),
		doneChan: make(chan struct{}),
	}

	s.mu.Lock()
	if s.active != nil {
		s.logger.Debugf("replacing active simulation")
		s.active.stop()
	}
	s.active = sub
	s.mu.Unlock()

	go s.run(fn, sub)

	return sub, nil
}

// Active returns whether a subscription is currently receiving notifications
func (s *Simulator) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active != nil && s.active.running.Load()
}

// Close ends the active subscription, if any
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.active.stop()
		s.active = nil
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////

type simulatorSubscription struct {
	running  *atomic.Bool
	doneChan chan struct{}
}

func (sub *simulatorSubscription) Unsubscribe() error {
	sub.stop()
	return nil
}

func (sub *simulatorSubscription) stop() {
	if sub.running.CAS(true, false) {
		close(sub.doneChan)
	}
}

func (s *Simulator) run(fn Handler, sub *simulatorSubscription) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var (
		heartRate = s.minHeartRate
		direction = s.step
	)

	for {
		select {
		case <-sub.doneChan:
			return
		case <-ticker.C:
		}

		heartRate, direction = s.next(heartRate, direction)

		// Round-trip through the wire format so simulated and live data share the decoding path
		reading, err := Decode(EncodeMeasurement(Reading{
			HeartRate: uint16(heartRate),
		}))
		if err != nil {
			fn(Measurement{}, err)
			continue
		}

		// Skip delivery if the subscription ended while waiting
		if !sub.running.Load() {
			return
		}

		s.logger.Debugf("emitting simulated heart rate measurement: %s", reading)
		fn(Measurement{
			TimeStamp: time.Now(),
			Reading:   *reading,
		}, nil)
	}
}

func (s *Simulator) next(heartRate, direction int) (int, int) {
	s.mu.Lock()
	jitter := s.rand.Intn(2*s.jitter+1) - s.jitter
	s.mu.Unlock()

	heartRate += direction + jitter
	if heartRate >= s.maxHeartRate {
		heartRate = s.maxHeartRate
		direction = -direction
	} else if heartRate <= s.minHeartRate {
		heartRate = s.minHeartRate
		direction = -direction
	}

	return heartRate, direction
}
