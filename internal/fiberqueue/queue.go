// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fiberqueue implements an intrusive, non-owning, doubly linked
// FIFO of scheduler-visible fibers. It does not allocate per node and
// does not affect the lifetime of anything placed in it: a fiber's
// presence in a Queue only determines whether the scheduler will visit
// it on the next drain, never whether the fiber itself is still alive.
package fiberqueue

import "fmt"

// Node is anything that can sit in a Queue. *taskrt.TaskFiber implements
// this by storing prev/next/queue directly on itself, exactly as
// required for an intrusive list: there is no separate list-cell
// allocation.
type Node interface {
	// QueueLinks returns pointers to this node's intrusive prev/next/queue
	// fields so that Queue can read and mutate them in place.
	QueueLinks() *Links
}

// Links holds the intrusive pointers a Node must embed.
type Links struct {
	Prev, Next Node
	Queue      *Queue
}

// Queue is an intrusive doubly linked FIFO. The zero value is an empty,
// usable queue. All operations are O(1).
type Queue struct {
	first, last Node
	length      int
}

// Len returns the number of nodes currently in the queue.
func (q *Queue) Len() int {
	return q.length
}

// Empty reports whether the queue has no nodes.
func (q *Queue) Empty() bool {
	return q.length == 0
}

// First returns the node at the front of the queue, or nil if empty.
func (q *Queue) First() Node {
	return q.first
}

// Contains reports whether n is currently a member of q. It does not
// walk the list; it trusts n's own Queue link, which InsertFront,
// InsertBack, and Remove keep in sync.
func (q *Queue) Contains(n Node) bool {
	return n.QueueLinks().Queue == q
}

// InsertFront inserts n at the front of the queue. n must not currently
// be enqueued anywhere (its Queue link must be nil); violating this is a
// programming error and panics, matching the invariant that an intrusive
// node belongs to at most one queue at a time.
func (q *Queue) InsertFront(n Node) {
	links := n.QueueLinks()
	if links.Queue != nil {
		panic(fmt.Sprintf("fiberqueue: InsertFront on already-enqueued node %v", n))
	}
	if links.Prev != nil || links.Next != nil {
		panic(fmt.Sprintf("fiberqueue: InsertFront on node %v with dangling links", n))
	}

	links.Queue = q
	links.Next = q.first
	links.Prev = nil

	if q.first != nil {
		q.first.QueueLinks().Prev = n
	} else {
		q.last = n
	}
	q.first = n
	q.length++
}

// InsertBack inserts n at the back of the queue. Same preconditions as
// InsertFront.
func (q *Queue) InsertBack(n Node) {
	links := n.QueueLinks()
	if links.Queue != nil {
		panic(fmt.Sprintf("fiberqueue: InsertBack on already-enqueued node %v", n))
	}
	if links.Prev != nil || links.Next != nil {
		panic(fmt.Sprintf("fiberqueue: InsertBack on node %v with dangling links", n))
	}

	links.Queue = q
	links.Prev = q.last
	links.Next = nil

	if q.last != nil {
		q.last.QueueLinks().Next = n
	} else {
		q.first = n
	}
	q.last = n
	q.length++
}

// PopFront removes and returns the node at the front of the queue. It
// panics if the queue is empty: draining an already-drained queue is a
// programming error.
func (q *Queue) PopFront() Node {
	if q.first == nil {
		panic("fiberqueue: PopFront on empty queue")
	}

	n := q.first
	q.Remove(n)
	return n
}

// Remove removes n from the queue. n must currently be a member of q;
// violating this (including calling Remove on a node that is a member of
// some other queue, or of no queue at all) is a programming error and
// panics.
func (q *Queue) Remove(n Node) {
	links := n.QueueLinks()
	if links.Queue != q {
		panic(fmt.Sprintf("fiberqueue: Remove on node %v not a member of this queue", n))
	}

	if links.Prev != nil {
		links.Prev.QueueLinks().Next = links.Next
	} else {
		q.first = links.Next
	}

	if links.Next != nil {
		links.Next.QueueLinks().Prev = links.Prev
	} else {
		q.last = links.Prev
	}

	links.Prev = nil
	links.Next = nil
	links.Queue = nil
	q.length--
}

// CheckInvariants panics if the queue's internal state is inconsistent:
// traversal in either direction must reach exactly Len() nodes, every
// traversed node's Queue link must be q, and first/last must be nil iff
// the queue is empty. Intended to be wired into a
// syncutil.InvariantMutex-guarded caller.
func (q *Queue) CheckInvariants() {
	if q.length == 0 {
		if q.first != nil || q.last != nil {
			panic("fiberqueue: empty queue with non-nil first/last")
		}
		return
	}

	if q.first == nil || q.last == nil {
		panic("fiberqueue: non-empty queue with nil first/last")
	}

	count := 0
	var prev Node
	for n := q.first; n != nil; n = n.QueueLinks().Next {
		links := n.QueueLinks()
		if links.Queue != q {
			panic(fmt.Sprintf("fiberqueue: node %v in traversal has wrong Queue link", n))
		}
		if links.Prev != prev {
			panic(fmt.Sprintf("fiberqueue: node %v has inconsistent Prev link", n))
		}
		prev = n
		count++
		if count > q.length {
			panic("fiberqueue: traversal exceeds recorded length; possible cycle")
		}
	}

	if count != q.length {
		panic(fmt.Sprintf("fiberqueue: traversal count %d != length %d", count, q.length))
	}
	if prev != q.last {
		panic("fiberqueue: last is not the final node reached by traversal")
	}
	if q.last.QueueLinks().Next != nil {
		panic("fiberqueue: last node has non-nil Next")
	}
}
