// Package lockspec models the versioned unit araki tracks: a directory
// holding a pixi.toml spec file and a pixi.lock lock file.
//
// A LockSpec is only valid while both files exist. FromPath validates a
// candidate directory, EnsureMetadata injects the [araki] table into the
// spec file exactly once, and RemoveFiles deletes the pair together with
// the .araki-git history directory.
package lockspec
