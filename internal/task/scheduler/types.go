package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"mindwatch/internal/eventbus"
	logx "mindwatch/pkg/logx"

	"github.com/robfig/cron/v3"
)

var (
	ErrOverlapSkip     = errors.New("schedule skipped: previous run still in flight")
	ErrUnknownSchedule = errors.New("unknown schedule")
)

const defaultHistorySize = 50

type Config struct {
	Enabled     bool
	Timezone    string // IANA TZ, e.g. "Asia/Shanghai"
	HistorySize int
}

// Job is the unit of work a schedule runs.
type Job func(ctx context.Context) error

// Trigger says what started a run.
type Trigger string

const (
	TriggerCron   Trigger = "cron"
	TriggerManual Trigger = "manual"
)

// runState gates overlapping runs of one schedule.
type runState struct {
	mu       sync.Mutex
	inflight int
}

func (s *runState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *runState) enter() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *runState) release() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

func (s *runState) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	state         *runState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	// runCtx is cancelled on Stop so in-flight cron runs observe shutdown.
	runCtx    context.Context
	runCancel context.CancelFunc

	hmu      sync.Mutex
	history  []RunRecord
	seq      uint64
	histSize atomic.Int64
}

// RunRecord is one entry of the run-history ring.
type RunRecord struct {
	ID       uint64        `json:"id"`
	Name     string        `json:"name"`
	Trigger  Trigger       `json:"trigger"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type ScheduleInfo struct {
	Name          string        `json:"name"`
	Spec          string        `json:"spec"`
	Timeout       time.Duration `json:"timeout"`
	StartupSpread time.Duration `json:"startup_spread,omitempty"`
	Running       bool          `json:"running"`
	Next          time.Time     `json:"next,omitempty"`
	Prev          time.Time     `json:"prev,omitempty"`
}

type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Started   bool           `json:"started"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
	History   []RunRecord    `json:"history"`
}
