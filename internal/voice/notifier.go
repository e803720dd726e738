package voice

import "sync"

// notifier delivers state changes to observers from its own goroutine, in
// the order they were committed, without holding the controller lock.
type notifier struct {
	mu      sync.Mutex
	pending []StateChange
	subs    map[int]func(StateChange)
	next    int
	stopped bool

	wake chan struct{}
	done chan struct{}
	exit chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		subs: make(map[int]func(StateChange)),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) subscribe(fn func(StateChange)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *notifier) publish(change StateChange) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.pending = append(n.pending, change)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// stop delivers what is pending and waits for the goroutine to exit.
func (n *notifier) stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		<-n.exit
		return
	}
	n.stopped = true
	n.mu.Unlock()

	close(n.done)
	<-n.exit
}

func (n *notifier) run() {
	defer close(n.exit)
	for {
		select {
		case <-n.wake:
			n.deliver()
		case <-n.done:
			n.deliver()
			return
		}
	}
}

func (n *notifier) deliver() {
	for {
		n.mu.Lock()
		if len(n.pending) == 0 {
			n.mu.Unlock()
			return
		}
		batch := n.pending
		n.pending = nil
		subs := make([]func(StateChange), 0, len(n.subs))
		for _, fn := range n.subs {
			subs = append(subs, fn)
		}
		n.mu.Unlock()

		for _, change := range batch {
			for _, fn := range subs {
				fn(change)
			}
		}
	}
}
