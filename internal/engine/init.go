package engine

import (
	"sort"

	"grove.dev/grove/internal/config"
	"grove.dev/grove/internal/eventlog"
	"grove.dev/grove/internal/git"
)

// Init records the trunk branch in git config and seeds the event log with
// the current branch tips so pre-existing commits become tracked. Running it
// again in an initialized repository is harmless.
func (e *Engine) Init(mainBranch string) error {
	return e.withLock(func() error {
		if mainBranch != "" {
			if err := config.SetMainBranch(e.repo, mainBranch); err != nil {
				return err
			}
			e.mainRef = git.BranchRefPrefix + mainBranch
		}

		branches, err := e.repo.BranchRefs()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(branches))
		for name := range branches {
			names = append(names, name)
		}
		sort.Strings(names)

		var events []eventlog.Event
		for _, name := range names {
			events = append(events, eventlog.NewEvent(eventlog.RefUpdate{
				Ref: name,
				New: branches[name],
			}))
		}
		if head, _, err := e.repo.ReadHead(); err == nil && !head.IsZero() {
			events = append(events, eventlog.NewEvent(eventlog.CommitCreate{Commit: head}))
		}
		if len(events) == 0 {
			return nil
		}
		_, err = e.store.Append("init", events)
		return err
	})
}
