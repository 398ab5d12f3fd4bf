// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package hostio

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is delivered to every waiter parked in a Coordinator when
// Stop runs, and returned by Call made after Stop (spec.md §8 property 9:
// "stopping a Connection mid-dispatch drains pending Host-I/O waiters").
var ErrStopped = errors.New("hostio: connection stopped")

// ErrUnexpectedReply is returned by DeliverReply when an F reply arrives
// with no outstanding request to match it against — two F replies
// back-to-back with no intervening request. Per spec.md §9's Open
// Questions this is treated as a protocol error that stops the
// Connection, rather than silently discarded.
var ErrUnexpectedReply = errors.New("hostio: F reply with no outstanding request")

type sendWaiter struct {
	proceed chan struct{}
	sent    chan struct{}
	err     error
}

type replyWaiter struct {
	replyCh chan Reply
	errCh   chan error
}

// Coordinator serialises a Connection's Host-I/O requests into the two
// FIFOs spec.md §4.4/§4.6 describe: a "may send" queue of handlers
// waiting for the dispatch loop's response-send point, and a "got
// reply" queue of handlers waiting for their correlated F reply.
//
// The literal spec wording has the dispatch loop itself pop and resume
// a "may send" waiter at the response point, which would deadlock if
// that resumption had to wait for the waiter's entire round trip
// (request write through reply) before the dispatch loop could continue
// reading the next packet. Coordinator instead splits the handoff in
// two: ReleaseOne only blocks until the resumed waiter has finished
// writing its F-request (sent), not until its reply arrives — the
// dispatch loop is free to go back to Receive immediately afterward
// while the waiter blocks independently on its reply.
type Coordinator struct {
	mu      sync.Mutex
	sendQ   []*sendWaiter
	replyQ  []*replyWaiter
	stopped bool

	// notify wakes a Drain loop as soon as a waiter is enqueued, and
	// stopCh wakes it when Stop runs. Both are sized/closed so a waiter
	// racing in between Drain's ReleaseOne check and its select can never
	// be missed.
	notify chan struct{}
	stopCh chan struct{}
}

// NewCoordinator returns a Coordinator ready to serve one Connection.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// Call runs one Host-I/O round trip: park on the "may send" FIFO, wait
// for the dispatch loop to grant a send turn, invoke send(), then wait
// for the correlated reply (or ctx cancellation / Stop). send is called
// with the Coordinator's internal bookkeeping already primed to accept
// the matching reply, so a reply racing in immediately after send
// returns can never be lost.
func (c *Coordinator) Call(ctx context.Context, send func() error) (Reply, error) {
	sw := &sendWaiter{proceed: make(chan struct{}), sent: make(chan struct{})}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return Reply{}, ErrStopped
	}
	c.sendQ = append(c.sendQ, sw)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}

	select {
	case <-sw.proceed:
	case <-ctx.Done():
		c.removeSendWaiter(sw)
		return Reply{}, ctx.Err()
	}

	rw := &replyWaiter{replyCh: make(chan Reply, 1), errCh: make(chan error, 1)}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		close(sw.sent)
		return Reply{}, ErrStopped
	}
	c.replyQ = append(c.replyQ, rw)
	c.mu.Unlock()

	err := send()
	close(sw.sent)
	if err != nil {
		c.removeReplyWaiter(rw)
		return Reply{}, err
	}

	select {
	case reply := <-rw.replyCh:
		return reply, nil
	case err := <-rw.errCh:
		return Reply{}, err
	case <-ctx.Done():
		c.removeReplyWaiter(rw)
		return Reply{}, ctx.Err()
	}
}

// ReleaseOne pops the head "may send" waiter, if any, resumes it, and
// blocks until it has finished writing its request. It reports whether
// a waiter was released; the dispatch loop only suppresses its own
// handler's response when this returns true.
func (c *Coordinator) ReleaseOne() bool {
	c.mu.Lock()
	if len(c.sendQ) == 0 {
		c.mu.Unlock()
		return false
	}
	sw := c.sendQ[0]
	c.sendQ = c.sendQ[1:]
	c.mu.Unlock()

	close(sw.proceed)
	<-sw.sent
	return true
}

// Drain blocks until a "may send" waiter is available and releases it,
// reporting true, or until Stop runs, reporting false. A Connection runs
// Drain in a loop on its own task so a Host-I/O request gets to send its
// F-request as soon as something parks one — not only at the next
// client packet's response-send point. That second path matters because
// Debugger.Continue (spec.md §4.6) is expected to drive execution
// asynchronously: once 'c' has been dispatched, the client is simply
// waiting on the eventual stop-reply, and no further packet arrives to
// drive ReleaseOne from the dispatch loop itself.
func (c *Coordinator) Drain() bool {
	for {
		if c.ReleaseOne() {
			return true
		}
		select {
		case <-c.notify:
		case <-c.stopCh:
			return false
		}
	}
}

// DeliverReply routes a just-received F reply to the head "got reply"
// waiter. Returns ErrUnexpectedReply (without touching any state) if no
// waiter is parked.
func (c *Coordinator) DeliverReply(reply Reply) error {
	c.mu.Lock()
	if len(c.replyQ) == 0 {
		c.mu.Unlock()
		return ErrUnexpectedReply
	}
	rw := c.replyQ[0]
	c.replyQ = c.replyQ[1:]
	c.mu.Unlock()
	rw.replyCh <- reply
	return nil
}

// Stop fails every parked waiter with ErrStopped and prevents any new
// Call from enqueuing.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	alreadyStopped := c.stopped
	c.stopped = true
	sendQ := c.sendQ
	replyQ := c.replyQ
	c.sendQ = nil
	c.replyQ = nil
	c.mu.Unlock()

	if !alreadyStopped {
		close(c.stopCh)
	}

	for _, sw := range sendQ {
		sw.err = ErrStopped
		close(sw.proceed)
	}
	for _, rw := range replyQ {
		rw.errCh <- ErrStopped
	}
}

func (c *Coordinator) removeSendWaiter(target *sendWaiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sw := range c.sendQ {
		if sw == target {
			c.sendQ = append(c.sendQ[:i], c.sendQ[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) removeReplyWaiter(target *replyWaiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, rw := range c.replyQ {
		if rw == target {
			c.replyQ = append(c.replyQ[:i], c.replyQ[i+1:]...)
			return
		}
	}
}
