package supervisor

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mklimuk/i2cemu"
)

// Event is a bit set of things worth a log record.
type Event uint8

const (
	EventMicroPowerOn   Event = 0x01
	EventMicroExternal  Event = 0x02
	EventMicroBrownOut  Event = 0x04
	EventMicroWatchdog  Event = 0x08
	EventBMCWatchdog    Event = 0x10
	EventBMCResetDetect Event = 0x20
	EventBMCEnterFUP    Event = 0x40
	EventHeartbeat      Event = 0x80
)

var eventNames = [8]string{
	"power-on", "external-reset", "brown-out", "micro-watchdog",
	"bmc-watchdog", "bmc-reset", "bmc-enter-fup", "heartbeat",
}

func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	var names []string
	for i, name := range eventNames {
		if e&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

const (
	// LogOffset is where the cyclic event area starts in the persistent store.
	LogOffset = 0x80
	// LogEntries is the number of 2 byte records the area holds.
	LogEntries   = 64
	recordSize   = 2
	endMarker    = 0xFFFF
	heartbeatLog = 250
	firstStep    = time.Second
)

// Record is one entry of the event area.
type Record struct {
	Events Event `yaml:"events"`
	// Log is the logarithmic time since the previous record.
	Log uint8 `yaml:"log"`
}

// EventLog accumulates events and flushes them with a logarithmic
// timestamp into a cyclic area of the persistent store. The timestamp
// advances in steps that start at one second and grow by 5% per step, so
// one byte covers about 48 days; a heartbeat is recorded before it wraps.
type EventLog struct {
	mx      sync.Mutex
	log     *slog.Logger
	store   i2cemu.PersistentStore
	pending Event
	linear  time.Duration
	stamp   uint8
	step    time.Duration
	delay   time.Duration
}

func NewEventLog(store i2cemu.PersistentStore, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	l := &EventLog{store: store, log: logger}
	l.restart()
	return l
}

// Record adds events, writes them out and restarts the timestamp.
func (l *EventLog) Record(ev Event) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.pending |= ev
	l.reset()
}

// Reset writes out pending events, if any, and restarts the timestamp.
func (l *EventLog) Reset() {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.reset()
}

// PeriodicTask advances the timestamp.
func (l *EventLog) PeriodicTask(elapsed time.Duration) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.linear += elapsed
	if l.delay > elapsed {
		l.delay -= elapsed
		return
	}
	l.stamp++
	if l.stamp == heartbeatLog {
		l.pending |= EventHeartbeat
		l.reset()
	}
	l.step += l.step * 5 / 100
	l.delay += l.step - elapsed
}

// Stamp returns the logarithmic and the linear time since the last record.
func (l *EventLog) Stamp() (uint8, time.Duration) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.stamp, l.linear
}

// Records reads the event area back, oldest entry first.
func (l *EventLog) Records() ([]Record, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	area, err := l.area()
	if err != nil {
		return nil, err
	}
	end := markerIndex(area)
	var res []Record
	for i := 1; i <= LogEntries; i++ {
		idx := (end + i) % LogEntries
		lo, hi := area[idx*recordSize], area[idx*recordSize+1]
		if uint16(hi)<<8|uint16(lo) == endMarker {
			continue
		}
		res = append(res, Record{Events: Event(lo), Log: hi})
	}
	return res, nil
}

func (l *EventLog) reset() {
	if err := l.flush(); err != nil {
		l.log.Error("could not write event record", "events", l.pending, "err", err)
	}
	l.restart()
}

func (l *EventLog) restart() {
	l.linear = 0
	l.stamp = 0
	l.step = firstStep
	l.delay = l.step
}

func (l *EventLog) flush() error {
	if l.pending == 0 {
		return nil
	}
	area, err := l.area()
	if err != nil {
		return err
	}
	idx := markerIndex(area)
	next := (idx + 1) % LogEntries
	if _, err := l.store.WriteAt([]byte{0xFF, 0xFF}, int64(LogOffset+next*recordSize)); err != nil {
		return fmt.Errorf("could not move end marker: %w", err)
	}
	if _, err := l.store.WriteAt([]byte{byte(l.pending), l.stamp}, int64(LogOffset+idx*recordSize)); err != nil {
		return fmt.Errorf("could not store record %d: %w", idx, err)
	}
	l.log.Info("event", "type", l.pending, "index", idx, "log", l.stamp, "elapsed", l.linear)
	l.pending = 0
	return nil
}

func (l *EventLog) area() ([]byte, error) {
	area := make([]byte, LogEntries*recordSize)
	if _, err := l.store.ReadAt(area, LogOffset); err != nil {
		return nil, fmt.Errorf("could not read event area: %w", err)
	}
	return area, nil
}

// markerIndex finds the end marker; an area without one starts over at 0.
func markerIndex(area []byte) int {
	for i := 0; i < LogEntries; i++ {
		if area[i*recordSize] == 0xFF && area[i*recordSize+1] == 0xFF {
			return i
		}
	}
	return 0
}
