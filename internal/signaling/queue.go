package signaling

// Sender is the part of the relay client the queue drives.
type Sender interface {
	// IsSendingMessage reports whether a previous send is still outstanding.
	IsSendingMessage() bool
	// SendToPeer starts delivering text to peer. It fails synchronously when
	// the relay is down; completion is reported later through OnSendCompleted.
	SendToPeer(peer PeerID, text string) error
}

// pending is one serialized message waiting for delivery.
type pending struct {
	peer PeerID
	text string
}

// Queue serializes outgoing signaling messages to the relay. Messages leave in
// strict FIFO order and at most one send is outstanding at any time.
//
// Queue is not safe for concurrent use; it is owned by the session loop.
type Queue struct {
	sender    Sender
	onFailure func(peer PeerID, err error)

	items    []pending
	awaiting bool   // a dispatched send has not been completed yet
	inflight PeerID // addressee of the awaited send
}

// NewQueue creates an empty queue. onFailure is invoked for every failed
// delivery, either a synchronous SendToPeer error or a failed completion.
func NewQueue(sender Sender, onFailure func(peer PeerID, err error)) *Queue {
	return &Queue{
		sender:    sender,
		onFailure: onFailure,
		inflight:  NoPeer,
	}
}

// Enqueue appends a message for peer and tries to send the head of the queue.
func (q *Queue) Enqueue(peer PeerID, text string) {
	q.items = append(q.items, pending{peer: peer, text: text})
	q.tryDrain()
}

// OnSendCompleted is called once the relay finished the outstanding send. A
// completion with no send awaited is attributed to NoPeer.
func (q *Queue) OnSendCompleted(err error) {
	peer := NoPeer
	if q.awaiting {
		peer = q.inflight
	}
	q.awaiting = false
	q.inflight = NoPeer
	if err != nil {
		q.fail(peer, err)
	}
	q.tryDrain()
}

// Discard drops every queued message addressed to peer.
func (q *Queue) Discard(peer PeerID) {
	kept := q.items[:0]
	for _, it := range q.items {
		if it.peer != peer {
			kept = append(kept, it)
		}
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = pending{}
	}
	q.items = kept
}

// Reset drops every queued message and forgets the awaited send. It is used
// when the relay connection is gone and no completion will follow.
func (q *Queue) Reset() {
	clear(q.items)
	q.items = q.items[:0]
	q.awaiting = false
	q.inflight = NoPeer
}

// Len returns the number of messages waiting for delivery.
func (q *Queue) Len() int {
	return len(q.items)
}

// tryDrain dispatches messages from the head until one send is accepted or the
// queue is empty. Nothing is dispatched while an earlier send awaits its
// completion or the relay is busy. A dispatched head is removed whether or not
// the send succeeds.
func (q *Queue) tryDrain() {
	for len(q.items) > 0 && !q.awaiting && !q.sender.IsSendingMessage() {
		head := q.items[0]
		q.items[0] = pending{}
		q.items = q.items[1:]

		if err := q.sender.SendToPeer(head.peer, head.text); err != nil {
			q.fail(head.peer, err)
			continue
		}
		q.awaiting = true
		q.inflight = head.peer
	}
}

func (q *Queue) fail(peer PeerID, err error) {
	if q.onFailure != nil {
		q.onFailure(peer, err)
	}
}
