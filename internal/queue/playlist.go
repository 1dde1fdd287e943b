// Package queue implements the playlist model: a doubly-linked list of
// songs with a stable id space shared between the unshuffled and active
// (possibly shuffled) views, plus M3U-backed favorites.
package queue

import (
	"math/rand"
	"sync"
)

// SongNode is a single entry in a Playlist. Nodes are owned by exactly one
// Playlist; Next/Prev link siblings within that playlist.
type SongNode struct {
	ID              int32
	FilePath        string
	DurationSeconds float64
	HasErrors       bool

	Prev *SongNode
	Next *SongNode
}

// Playlist is a doubly-linked list of SongNodes with O(1) append and
// O(1) delete given a node pointer. All mutation happens under mu; the
// audio callback never touches a Playlist and the loader thread never
// mutates one — only the engine's control path does.
type Playlist struct {
	mu    sync.Mutex
	head  *SongNode
	tail  *SongNode
	count int

	duration      float64
	durationValid bool

	nextID int32
}

// New returns an empty playlist.
func New() *Playlist {
	return &Playlist{}
}

// Add appends a new node wrapping path and returns it. The node's id is
// assigned monotonically within this playlist instance.
func (p *Playlist) Add(filePath string, durationSeconds float64) *SongNode {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := &SongNode{ID: p.nextID, FilePath: filePath, DurationSeconds: durationSeconds}
	p.nextID++

	if p.tail == nil {
		p.head = n
		p.tail = n
	} else {
		n.Prev = p.tail
		p.tail.Next = n
		p.tail = n
	}
	p.count++
	p.durationValid = false
	return n
}

// Delete unlinks node from the list. Ownership of the removed node
// transfers to the caller; Delete does not modify node.Prev/Next reachability
// of nodes still in the list beyond relinking around it.
func (p *Playlist) Delete(node *SongNode) {
	if node == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if node.Prev != nil {
		node.Prev.Next = node.Next
	} else if p.head == node {
		p.head = node.Next
	}
	if node.Next != nil {
		node.Next.Prev = node.Prev
	} else if p.tail == node {
		p.tail = node.Prev
	}
	node.Prev = nil
	node.Next = nil
	p.count--
	p.durationValid = false
}

// FindByID scans the list for a node with the given id. O(n).
func (p *Playlist) FindByID(id int32) *SongNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := p.head; n != nil; n = n.Next {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Head returns the first node, or nil.
func (p *Playlist) Head() *SongNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

// Tail returns the last node, or nil.
func (p *Playlist) Tail() *SongNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tail
}

// Count returns the number of nodes currently in the list.
func (p *Playlist) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Nodes returns a snapshot slice of the nodes in list order. Used by
// shuffle_from and deep_copy, which both need a stable view to work from.
func (p *Playlist) Nodes() []*SongNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*SongNode, 0, p.count)
	for n := p.head; n != nil; n = n.Next {
		out = append(out, n)
	}
	return out
}

// TotalDuration returns the lazily-cached sum of node durations,
// recomputing it if the list has structurally changed since the last call.
func (p *Playlist) TotalDuration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.durationValid {
		return p.duration
	}
	var total float64
	for n := p.head; n != nil; n = n.Next {
		total += n.DurationSeconds
	}
	p.duration = total
	p.durationValid = true
	return total
}

// DeepCopy returns a new Playlist containing copies of every node, in the
// same order and with the same ids, owned independently of the source.
// Used to materialise the unshuffled view when shuffle is disabled.
func (p *Playlist) DeepCopy() *Playlist {
	src := p.Nodes()
	out := New()
	out.mu.Lock()
	defer out.mu.Unlock()
	for _, n := range src {
		cp := &SongNode{ID: n.ID, FilePath: n.FilePath, DurationSeconds: n.DurationSeconds, HasErrors: n.HasErrors}
		if out.tail == nil {
			out.head = cp
			out.tail = cp
		} else {
			cp.Prev = out.tail
			out.tail.Next = cp
			out.tail = cp
		}
		out.count++
		if n.ID >= out.nextID {
			out.nextID = n.ID + 1
		}
	}
	return out
}

// ShuffleFrom builds a new Playlist that is a permutation of this one: the
// node matching current is placed first (preserved by id, a fresh copy),
// then the remaining nodes follow in a Fisher-Yates shuffle seeded by rng.
// If current is nil or not found, the whole list is shuffled.
func (p *Playlist) ShuffleFrom(current *SongNode, rng *rand.Rand) *Playlist {
	src := p.Nodes()
	rest := make([]*SongNode, 0, len(src))
	var head *SongNode
	for _, n := range src {
		if head == nil && current != nil && n.ID == current.ID {
			head = n
			continue
		}
		rest = append(rest, n)
	}

	for i := len(rest) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		rest[i], rest[j] = rest[j], rest[i]
	}

	ordered := make([]*SongNode, 0, len(src))
	if head != nil {
		ordered = append(ordered, head)
	}
	ordered = append(ordered, rest...)

	out := New()
	out.mu.Lock()
	defer out.mu.Unlock()
	for _, n := range ordered {
		cp := &SongNode{ID: n.ID, FilePath: n.FilePath, DurationSeconds: n.DurationSeconds, HasErrors: n.HasErrors}
		if out.tail == nil {
			out.head = cp
			out.tail = cp
		} else {
			cp.Prev = out.tail
			out.tail.Next = cp
			out.tail = cp
		}
		out.count++
		if n.ID >= out.nextID {
			out.nextID = n.ID + 1
		}
	}
	return out
}
