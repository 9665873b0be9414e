// Package backend defines the capability set araki needs from a git
// hosting provider: checking whether a repository exists, creating one,
// describing where a repository lives, and logging the operator in.
//
// The Backend interface abstracts the provider. Implementations live in
// the github, gitlab and bitbucket sub-packages; the device
// authorization grant they share is in deviceauth. EnsureRepository
// combines the existence check and creation used before a push.
package backend
