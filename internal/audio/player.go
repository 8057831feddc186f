package audio

import (
	"sync"
	"time"
)

// Source is one playback of a buffer. It ends when its duration elapses
// or when it is stopped, whichever comes first.
type Source struct {
	ID     uint64
	Buffer Buffer

	once    sync.Once
	done    chan struct{}
	stopped bool
	timer   *time.Timer
}

// Done is closed when the source ends for any reason.
func (s *Source) Done() <-chan struct{} { return s.done }

func (s *Source) finish(stopped bool) {
	s.once.Do(func() {
		s.stopped = stopped
		if s.timer != nil {
			s.timer.Stop()
		}
		close(s.done)
	})
}

// Player holds at most one active source. It is safe for concurrent use.
type Player struct {
	mu     sync.Mutex
	active *Source
	next   uint64
	onEnd  func(*Source)
}

// NewPlayer returns an idle player. onEnd, if set, runs after a source
// finishes on its own.
func NewPlayer(onEnd func(*Source)) *Player {
	return &Player{onEnd: onEnd}
}

// Play stops any active source and starts buf.
func (p *Player) Play(buf Buffer) *Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		p.active.finish(true)
		p.active = nil
	}
	p.next++
	src := &Source{ID: p.next, Buffer: buf, done: make(chan struct{})}
	src.timer = time.AfterFunc(buf.Duration(), func() { p.ended(src) })
	p.active = src
	return src
}

func (p *Player) ended(src *Source) {
	p.mu.Lock()
	if p.active != src {
		p.mu.Unlock()
		return
	}
	p.active = nil
	p.mu.Unlock()
	src.finish(false)
	if p.onEnd != nil {
		p.onEnd(src)
	}
}

// Stop ends the active source, reporting whether there was one.
func (p *Player) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return false
	}
	p.active.finish(true)
	p.active = nil
	return true
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

// Active returns the playing source or nil.
func (p *Player) Active() *Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Stopped reports whether the source was cut short rather than played out.
// Only meaningful after Done is closed.
func (s *Source) Stopped() bool {
	<-s.done
	return s.stopped
}
