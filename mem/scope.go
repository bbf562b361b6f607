package mem

import (
	"fmt"
	"sync"

	"github.com/petermattis/goid"

	"github.com/joshuapare/allockit/alloc"
)

// scopes maps a goroutine id to that goroutine's *scopeStack. A stack is only ever
// touched by its own goroutine, so the stacks themselves need no locking.
var scopes sync.Map

type scopeStack struct {
	ids []alloc.AllocID
}

// Scope is an entered allocator scope. Exit it on the goroutine that entered it,
// typically with defer.
type Scope struct {
	gid    int64
	depth  int // stack length right after the push
	id     alloc.AllocID
	exited bool
}

// Enter makes id the active allocator of the calling goroutine until the returned
// scope exits.
func Enter(id alloc.AllocID) *Scope {
	gid := goid.Get()
	v, _ := scopes.LoadOrStore(gid, &scopeStack{})
	st := v.(*scopeStack)
	st.ids = append(st.ids, id)
	return &Scope{gid: gid, depth: len(st.ids), id: id}
}

// ID returns the allocator the scope activated.
func (s *Scope) ID() alloc.AllocID { return s.id }

// Exit pops the scope. Exiting twice is a no-op. Exiting from another goroutine,
// or while a more recent scope is still active, panics with ErrScopeOrder.
func (s *Scope) Exit() {
	if s == nil || s.exited {
		return
	}
	gid := goid.Get()
	if gid != s.gid {
		panic(alloc.NewViolation(ErrScopeOrder, 0, s.id,
			fmt.Sprintf("scope entered on goroutine %d exited on goroutine %d", s.gid, gid)))
	}
	st := stackOf(gid)
	if st == nil || len(st.ids) != s.depth {
		depth := 0
		if st != nil {
			depth = len(st.ids)
		}
		panic(alloc.NewViolation(ErrScopeOrder, 0, s.id,
			fmt.Sprintf("scope at depth %d exited while depth is %d", s.depth, depth)))
	}
	s.exited = true
	truncate(gid, st, s.depth-1)
}

// unwind pops s together with any scopes above it that were never exited.
func (s *Scope) unwind() {
	if s.exited {
		return
	}
	s.exited = true
	if st := stackOf(s.gid); st != nil && len(st.ids) >= s.depth {
		truncate(s.gid, st, s.depth-1)
	}
}

func truncate(gid int64, st *scopeStack, n int) {
	clear(st.ids[n:])
	st.ids = st.ids[:n]
	if n == 0 {
		scopes.Delete(gid)
	}
}

func stackOf(gid int64) *scopeStack {
	v, ok := scopes.Load(gid)
	if !ok {
		return nil
	}
	return v.(*scopeStack)
}

// scopeTop returns the innermost active scope of the calling goroutine.
func scopeTop() (alloc.AllocID, bool) {
	st := stackOf(goid.Get())
	if st == nil || len(st.ids) == 0 {
		return alloc.Default, false
	}
	return st.ids[len(st.ids)-1], true
}

// With runs fn with id active. The scope is popped even if fn panics, along with
// any scope fn entered and did not exit.
func With(id alloc.AllocID, fn func()) {
	s := Enter(id)
	defer s.unwind()
	fn()
}

// Active returns the calling goroutine's innermost scope, or ProcessDefault when
// no scope is active.
func Active() alloc.AllocID {
	if id, ok := scopeTop(); ok {
		return id
	}
	return ProcessDefault()
}

// Depth returns the number of active scopes on the calling goroutine.
func Depth() int {
	if st := stackOf(goid.Get()); st != nil {
		return len(st.ids)
	}
	return 0
}

// ProcessDefault is the default of the process-wide manager, or alloc.Malloc
// before Init.
func ProcessDefault() alloc.AllocID {
	if m := global.Load(); m != nil {
		return m.DefaultID()
	}
	return alloc.Malloc
}
