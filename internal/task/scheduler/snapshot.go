package scheduler

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	tz := s.cfg.Timezone
	defs := make([]scheduleDef, 0, len(s.defs))
	for _, d := range s.defs {
		defs = append(defs, *d)
	}
	c := s.c
	loc := s.loc
	s.mu.Unlock()

	if loc != nil {
		tz = loc.String()
	}

	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{
			Name:          d.name,
			Spec:          d.spec,
			Timeout:       d.timeout,
			StartupSpread: d.startupSpread,
			Running:       d.state.running(),
		}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}

	// Newest first.
	s.hmu.Lock()
	hist := make([]RunRecord, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		hist = append(hist, s.history[i])
	}
	s.hmu.Unlock()

	return Snapshot{
		Enabled:   enabled,
		Started:   c != nil,
		Timezone:  tz,
		Schedules: items,
		History:   hist,
	}
}
