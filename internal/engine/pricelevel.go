package engine

import "ome/internal/common"

// Depth is an order count and the volume those orders hold.
type Depth struct {
	Count  int
	Volume uint64
}

// Queue is one side of a price level, oldest order first.
type Queue struct {
	Depth
	Orders []*common.Order
}

func (q *Queue) push(order *common.Order) {
	q.Orders = append(q.Orders, order)
	q.Count++
	q.Volume += uint64(order.Volume)
}

// pop removes the head, which must already have been filled to zero.
func (q *Queue) pop() *common.Order {
	head := q.Orders[0]
	q.Orders[0] = nil
	q.Orders = q.Orders[1:]
	q.Count--
	q.Volume -= uint64(head.Volume)
	return head
}

// remove drops order wherever it sits in the queue.
func (q *Queue) remove(order *common.Order) bool {
	for i, o := range q.Orders {
		if o != order {
			continue
		}
		copy(q.Orders[i:], q.Orders[i+1:])
		q.Orders[len(q.Orders)-1] = nil
		q.Orders = q.Orders[:len(q.Orders)-1]
		q.Count--
		q.Volume -= uint64(order.Volume)
		return true
	}
	return false
}

// PriceLevel holds the resting bids and asks at one price. Only one of the
// two queues is ever non-empty once an operation completes.
type PriceLevel struct {
	Price uint32
	Bids  Queue
	Asks  Queue
}

// Side returns the queue holding orders of side s.
func (l *PriceLevel) Side(s common.Side) *Queue {
	if s == common.Buy {
		return &l.Bids
	}
	return &l.Asks
}
