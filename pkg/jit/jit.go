// Package jit is the embedding layer around the compiler: it tracks
// function hotness, compiles hot code objects on a background worker, and
// caches compiled methods per process so the host's frame-evaluation hook
// can swap them in.
package jit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/pyrite/pkg/compiler"
	"github.com/chazu/pyrite/pkg/dist"
	"github.com/chazu/pyrite/pkg/jitcache"
	"github.com/chazu/pyrite/pkg/pycode"
)

var log = commonlog.GetLogger("pyrite.jit")

// Manager connects invocation counting to the compiler, following the
// usual adaptive scheme: a function that crosses the hot threshold is
// queued, compiled once in the background, and served from the cache
// afterwards. Failed compiles are remembered so the host keeps
// interpreting without re-queueing.
type Manager struct {
	opts  compiler.Options
	cache *jitcache.Cache

	pending chan *pycode.Code
	done    chan struct{}
	wg      sync.WaitGroup

	mu       sync.RWMutex
	compiled map[string]*compiler.CompiledFunction
	failed   map[string]bool
	queued   map[string]bool
	counts   map[string]uint64

	functionsCompiled uint64
	compileNanos      uint64

	// HotThreshold is the invocation count that triggers compilation.
	HotThreshold uint64
	// Enabled is the master switch; a disabled manager only counts.
	Enabled bool
}

// NewManager creates a manager and starts its background compile worker.
func NewManager(opts compiler.Options) *Manager {
	m := &Manager{
		opts:         opts,
		pending:      make(chan *pycode.Code, 64),
		done:         make(chan struct{}),
		compiled:     make(map[string]*compiler.CompiledFunction),
		failed:       make(map[string]bool),
		queued:       make(map[string]bool),
		counts:       make(map[string]uint64),
		HotThreshold: 100,
		Enabled:      true,
	}
	m.wg.Add(1)
	go m.worker()
	return m
}

// Lookup returns the compiled function for a code object, or nil if it is
// not (yet) compiled. The invocation is counted; crossing the hot
// threshold queues a compile.
func (m *Manager) Lookup(code *pycode.Code) *compiler.CompiledFunction {
	key := code.Hash()

	m.mu.RLock()
	fn := m.compiled[key]
	m.mu.RUnlock()
	if fn != nil {
		return fn
	}
	if !m.Enabled {
		return nil
	}

	m.mu.Lock()
	m.counts[key]++
	hot := m.counts[key] >= m.HotThreshold && !m.queued[key] && !m.failed[key]
	// A function the artifact cache has seen before skips the warm-up.
	if !hot && m.counts[key] == 1 && !m.queued[key] && m.cache != nil {
		if _, err := m.cache.Get(key); err == nil {
			hot = true
		}
	}
	if hot {
		m.queued[key] = true
	}
	m.mu.Unlock()

	if hot {
		select {
		case m.pending <- code:
		default:
			// Queue full; the next invocation retries.
			m.mu.Lock()
			m.queued[key] = false
			m.mu.Unlock()
		}
	}
	return nil
}

// CompileNow compiles a code object synchronously, bypassing hotness
// tracking, and caches the result.
func (m *Manager) CompileNow(code *pycode.Code) (*compiler.CompiledFunction, error) {
	key := code.Hash()
	m.mu.RLock()
	fn := m.compiled[key]
	m.mu.RUnlock()
	if fn != nil {
		return fn, nil
	}
	return m.compile(key, code)
}

func (m *Manager) compile(key string, code *pycode.Code) (*compiler.CompiledFunction, error) {
	start := time.Now()
	fn, err := compiler.Compile(code, m.opts)
	atomic.AddUint64(&m.compileNanos, uint64(time.Since(start)))
	if err != nil {
		m.mu.Lock()
		m.failed[key] = true
		m.mu.Unlock()
		log.Infof("compile of %q failed, falling back to interpreter: %v", code.Name, err)
		return nil, err
	}
	m.mu.Lock()
	m.compiled[key] = fn
	m.mu.Unlock()
	atomic.AddUint64(&m.functionsCompiled, 1)
	if m.cache != nil {
		if err := m.cache.Put(artifactFor(key, fn)); err != nil {
			log.Warningf("artifact cache write for %q failed: %v", code.Name, err)
		}
	}
	return fn, nil
}

// AttachCache connects an on-disk artifact cache: compiled functions are
// recorded there, and functions seen in a previous process compile on
// their first invocation instead of waiting out the hot threshold.
func (m *Manager) AttachCache(c *jitcache.Cache) {
	m.cache = c
}

func artifactFor(key string, fn *compiler.CompiledFunction) *dist.Artifact {
	return &dist.Artifact{
		CodeHash:    key,
		Version:     dist.ArtifactVersion,
		Name:        fn.Code.Name,
		OpcodeCount: fn.OpcodeCount,
		ILCount:     fn.ILCount,
		EscapedPCs:  fn.EscapedPCs,
		Symbols:     fn.Method.Symbols,
	}
}

// worker drains the compile queue in the background.
func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case code := <-m.pending:
			key := code.Hash()
			m.mu.RLock()
			have := m.compiled[key] != nil || m.failed[key]
			m.mu.RUnlock()
			if !have {
				_, _ = m.compile(key, code)
			}
		case <-m.done:
			return
		}
	}
}

// Stats holds manager counters.
type Stats struct {
	FunctionsCompiled uint64
	CompileTime       time.Duration
	CachedFunctions   int
	FailedFunctions   int
	QueueLength       int
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		FunctionsCompiled: atomic.LoadUint64(&m.functionsCompiled),
		CompileTime:       time.Duration(atomic.LoadUint64(&m.compileNanos)),
		CachedFunctions:   len(m.compiled),
		FailedFunctions:   len(m.failed),
		QueueLength:       len(m.pending),
	}
}

// Reset clears the cache and all counters.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compiled = make(map[string]*compiler.CompiledFunction)
	m.failed = make(map[string]bool)
	m.queued = make(map[string]bool)
	m.counts = make(map[string]uint64)
	atomic.StoreUint64(&m.functionsCompiled, 0)
	atomic.StoreUint64(&m.compileNanos, 0)
}

// Stop shuts down the background worker.
func (m *Manager) Stop() {
	close(m.done)
	m.wg.Wait()
}
