package engine

import (
	"context"
	"errors"
	"sync"

	"novelshelf/framework"
)

var ErrNoHistory = errors.New("no history entry in that direction")

// Navigator keeps one session's history and runs its transitions one at a time.
// Starting a transition cancels the one still pending; the cancelled call returns
// ErrSuperseded and leaves the history untouched.
type Navigator struct {
	engine *Engine

	mu      sync.Mutex
	entries []framework.Location
	index   int
	seq     uint64
	cancel  context.CancelFunc
}

func (engine *Engine) NewNavigator() *Navigator {
	return &Navigator{engine: engine, index: -1}
}

func (n *Navigator) Push(ctx context.Context, target string) (*Navigation, error) {
	return n.navigate(ctx, func([]framework.Location, int) (string, bool) {
		return target, true
	}, func(to framework.Location) {
		n.entries = append(n.entries[:n.index+1], to)
		n.index = len(n.entries) - 1
	})
}

func (n *Navigator) Replace(ctx context.Context, target string) (*Navigation, error) {
	return n.navigate(ctx, func([]framework.Location, int) (string, bool) {
		return target, true
	}, func(to framework.Location) {
		if n.index < 0 {
			n.entries = append(n.entries, to)
			n.index = 0
			return
		}
		n.entries[n.index] = to
	})
}

func (n *Navigator) Back(ctx context.Context) (*Navigation, error) {
	return n.traverse(ctx, -1)
}

func (n *Navigator) Forward(ctx context.Context) (*Navigation, error) {
	return n.traverse(ctx, 1)
}

func (n *Navigator) Current() (framework.Location, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.index < 0 {
		return framework.Location{}, false
	}
	return n.entries[n.index], true
}

func (n *Navigator) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

func (n *Navigator) traverse(ctx context.Context, delta int) (*Navigation, error) {
	var destination int
	return n.navigate(ctx, func(current []framework.Location, index int) (string, bool) {
		destination = index + delta
		if index < 0 || destination < 0 || destination >= len(current) {
			return "", false
		}
		return current[destination].FullPath, true
	}, func(to framework.Location) {
		if destination >= len(n.entries) {
			return
		}
		n.index = destination
		n.entries[destination] = to
	})
}

func (n *Navigator) navigate(
	ctx context.Context,
	pick func(entries []framework.Location, index int) (string, bool),
	commit func(to framework.Location),
) (*Navigation, error) {
	n.mu.Lock()
	target, ok := pick(n.entries, n.index)
	if !ok {
		n.mu.Unlock()
		return nil, ErrNoHistory
	}
	if n.cancel != nil {
		n.cancel()
	}
	n.seq++
	seq := n.seq
	navCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	var from framework.Location
	if n.index >= 0 {
		from = n.entries[n.index]
	}
	n.mu.Unlock()
	defer cancel()

	nav, err := n.engine.Resolve(navCtx, from, target)

	n.mu.Lock()
	defer n.mu.Unlock()
	if seq != n.seq {
		n.engine.observer.NavigationFinished("", framework.OutcomeSuperseded)
		return nil, ErrSuperseded
	}
	n.cancel = nil
	if err != nil {
		return nil, err
	}

	commit(nav.To)
	return nav, nil
}
