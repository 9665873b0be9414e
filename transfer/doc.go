// Package transfer moves lockspec repositories between a remote and the
// local filesystem.
//
// Every clone is staged: the remote is cloned into a private directory
// under the system temp dir, its .git directory is renamed to
// .araki-git, and only then is the result committed into the target
// directory. When the target does not exist the commit is a single
// rename; otherwise entries are copied one by one while an undo log
// records each side effect, and any failure rolls the target back to
// its previous content. Existing entries of the target are never
// overwritten.
//
// Remote authentication is SSH-agent only. A Credentials value tracks
// whether the agent was already offered during one operation so that a
// rejected key set ends the exchange instead of looping.
package transfer
