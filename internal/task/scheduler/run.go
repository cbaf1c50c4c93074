package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"mindwatch/internal/eventbus"
	logx "mindwatch/pkg/logx"
)

// execute runs d once with its timeout, converting a panic into an error.
func (s *Service) execute(ctx context.Context, d *scheduleDef, trigger Trigger) (err error) {
	start := time.Now()
	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	s.log.Debug("job started", logx.String("schedule", d.name), logx.String("trigger", string(trigger)))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("job panicked",
				logx.String("schedule", d.name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
		rec := s.appendHistory(RunRecord{
			Name:     d.name,
			Trigger:  trigger,
			Started:  start,
			Duration: time.Since(start),
		}, err)
		if err != nil {
			s.log.Warn("job failed", logx.String("schedule", d.name), logx.Duration("took", rec.Duration), logx.Err(err))
		} else {
			s.log.Debug("job finished", logx.String("schedule", d.name), logx.Duration("took", rec.Duration))
		}
	}()

	return d.job(runCtx)
}

func (s *Service) appendHistory(rec RunRecord, err error) RunRecord {
	if err != nil {
		rec.Error = err.Error()
	}
	s.hmu.Lock()
	s.seq++
	rec.ID = s.seq
	s.history = append(s.history, rec)
	s.hmu.Unlock()
	s.trimHistory()
	return rec
}

// trimHistory bounds the ring to the configured size.
func (s *Service) trimHistory() {
	size := int(s.histSize.Load())
	if size <= 0 {
		size = defaultHistorySize
	}
	s.hmu.Lock()
	if len(s.history) > size {
		s.history = append([]RunRecord(nil), s.history[len(s.history)-size:]...)
	}
	s.hmu.Unlock()
}

func (s *Service) publishSkip(name string) {
	s.bus.Publish(eventbus.Event{Type: eventbus.JobSkipped, Data: name})
}
