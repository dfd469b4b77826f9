package orderbook

import "sync"

// nodePool recycles resting order nodes. A node goes back only after it has
// left its level and the index, and every caller holds the book lock, so no
// live reference to a returned node remains.
type nodePool struct {
	p sync.Pool
}

func newNodePool() *nodePool {
	return &nodePool{
		p: sync.Pool{
			New: func() any { return new(Order) },
		},
	}
}

// get returns a node holding o's fields and no queue links.
func (np *nodePool) get(o Order) *Order {
	n := np.p.Get().(*Order)
	*n = o.detached()
	return n
}

func (np *nodePool) put(n *Order) {
	*n = Order{}
	np.p.Put(n)
}
