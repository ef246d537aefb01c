package ring

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultReplicas is used when a ring is created with fewer than one replica.
const DefaultReplicas = 3

// Ring implements consistent hashing with virtual replicas.
type Ring struct {
	mu        sync.RWMutex
	replicas  int
	positions map[Key]string      // position -> node
	sorted    []Key               // ascending index over positions
	members   map[string]struct{} // physical nodes
}

// New creates a ring with the given number of virtual replicas per node and
// adds the initial nodes.
func New(replicas int, nodes ...string) *Ring {
	if replicas < 1 {
		replicas = DefaultReplicas
	}
	r := &Ring{
		replicas:  replicas,
		positions: make(map[Key]string),
		sorted:    make([]Key, 0),
		members:   make(map[string]struct{}),
	}
	for _, node := range nodes {
		r.AddNode(node)
	}
	return r
}

// AddNode inserts the node's virtual replicas. Adding a node twice leaves
// the ring unchanged.
func (r *Ring) AddNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[node] = struct{}{}
	for i := 0; i < r.replicas; i++ {
		pos := positionKey(node, i)
		if _, exists := r.positions[pos]; !exists {
			idx := sort.Search(len(r.sorted), func(j int) bool {
				return !r.sorted[j].Less(pos)
			})
			r.sorted = append(r.sorted, Key{})
			copy(r.sorted[idx+1:], r.sorted[idx:])
			r.sorted[idx] = pos
		}
		// Collisions overwrite the previous owner.
		r.positions[pos] = node
	}
}

// RemoveNode deletes the positions AddNode created for node. Removing a node
// that was never added is a no-op.
func (r *Ring) RemoveNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, node)
	removed := false
	for i := 0; i < r.replicas; i++ {
		pos := positionKey(node, i)
		if owner, exists := r.positions[pos]; exists && owner == node {
			delete(r.positions, pos)
			removed = true
		}
	}
	if !removed {
		return
	}

	sorted := make([]Key, 0, len(r.positions))
	for _, pos := range r.sorted {
		if _, exists := r.positions[pos]; exists {
			sorted = append(sorted, pos)
		}
	}
	r.sorted = sorted
}

// GetNode returns the node owning key: the owner of the first position at
// or after the key's hash, wrapping to the smallest position.
// Returns ("", false) if the ring is empty.
func (r *Ring) GetNode(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sorted) == 0 {
		return "", false
	}

	h := Hash(key)
	idx := sort.Search(len(r.sorted), func(i int) bool {
		return !r.sorted[i].Less(h)
	})
	if idx >= len(r.sorted) {
		idx = 0
	}
	return r.positions[r.sorted[idx]], true
}

// Contains reports whether node is a member of the ring.
func (r *Ring) Contains(node string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[node]
	return ok
}

// Nodes returns the ring members in lexical order.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]string, 0, len(r.members))
	for node := range r.members {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// Len returns the number of positions on the ring.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sorted)
}

// Replicas returns the number of virtual positions per node.
func (r *Ring) Replicas() int {
	return r.replicas
}

// positionKey is the ring position of the i-th replica of node.
func positionKey(node string, i int) Key {
	return Hash(fmt.Sprintf("%s:%d", node, i))
}
