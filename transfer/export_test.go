package transfer

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
)

// CommitByCopyForTest runs commitByCopy with a fresh
// undo log.
func CommitByCopyForTest(src, dst billy.Filesystem) error {
	return commitByCopy(src, dst, &undoLog{})
}

var (
	CommitToTargetForTest = commitToTarget
	StageDirForTest       = stageDir
)

// UndoLogForTest exposes undoLog.
type UndoLogForTest = undoLog

func (l *undoLog) RecordForTest(desc string, f func() error) {
	l.record(desc, f)
}

func (l *undoLog) RollbackForTest() error {
	return l.rollback()
}

func (c *Credentials) ClassifyForTest(err error) error {
	return c.classify(err)
}

func (r *Repo) GitForTest() *git.Repository {
	return r.repo
}
