// Package replay records what an application's UI looked like over time.
//
// The host captures its UI hierarchy as a Frame whenever something may
// have changed. A Session diffs consecutive frames, encodes the result as
// rrweb-compatible events and appends them to a per-session NDJSON log
// that a reporter uploads later.
//
// Quick start:
//
//	s, err := replay.New(replay.WithDir(dir), replay.WithMode(replay.ModeError))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	s.Trigger(captureUI) // from UI change callbacks
//	s.SwitchOnError()    // when something goes wrong
//
//	err = s.Harvest(func(events []replay.Event) error {
//	    return upload(events)
//	})
//
// A Session is safe for concurrent use. Create one per app session.
package replay
