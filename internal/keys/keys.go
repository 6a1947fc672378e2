// Package keys centralizes backing-store key construction.
// Every key of a namespace shares the same {hash tag} so that a batch touching
// several profiles still lands in one cluster slot.
package keys

import "strconv"

// Prefix is prepended to every key.
const Prefix = "taskhive:"

// Namespace holds the precomputed keys for one queue namespace.
type Namespace struct {
	// Counter is the INCR key that hands out task ids.
	Counter string
	// Common is the cross-profile priority ZSET.
	Common string
	// Scheduled is the ZSET of delayed task ids scored by due time (unix ms).
	Scheduled string
	// Finished is the LIST of finished task ids.
	Finished string

	base string
}

// For returns the key set for the provided namespace.
func For(ns string) Namespace {
	base := Prefix + "{" + ns + "}:"
	return Namespace{
		Counter:   base + "id",
		Common:    base + "common",
		Scheduled: base + "scheduled",
		Finished:  base + "finished",
		base:      base,
	}
}

// Task is the key of the serialized active task record.
func (n Namespace) Task(id int64) string { return n.base + "task:" + strconv.FormatInt(id, 10) }

// ScheduledTask is the key of the serialized scheduled task record.
func (n Namespace) ScheduledTask(id int64) string {
	return n.base + "scheduled:" + strconv.FormatInt(id, 10)
}

// Profile is the priority ZSET of a single profile.
func (n Namespace) Profile(p string) string { return n.base + "profile:" + p }

// Failures is the per-task failure counter.
func (n Namespace) Failures(id int64) string { return n.base + "failures:" + strconv.FormatInt(id, 10) }

// Children is the per-task live-child counter.
func (n Namespace) Children(id int64) string { return n.base + "children:" + strconv.FormatInt(id, 10) }

// Unsubmitted marks a task whose children were only partly enqueued.
func (n Namespace) Unsubmitted(id int64) string {
	return n.base + "unsubmitted:" + strconv.FormatInt(id, 10)
}

// Union is a transient key used to merge several profile sets.
func (n Namespace) Union(token string) string { return n.base + "union:" + token }

// Member renders a task id as a ZSET member.
func Member(id int64) string { return strconv.FormatInt(id, 10) }

// ParseMember is the inverse of Member.
func ParseMember(m string) (int64, error) { return strconv.ParseInt(m, 10, 64) }
