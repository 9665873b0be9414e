// Package gitlab implements backend.Backend on a GitLab instance.
package gitlab
