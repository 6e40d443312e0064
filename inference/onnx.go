// Package inference runs an ONNX policy network over encoded observations,
// batching concurrent requests into one session call.
package inference

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/brensch/snekgym/encode"
	"github.com/brensch/snekgym/game"
)

const (
	PolicySize = game.NumMoves
	ValueSize  = 1
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = time.Millisecond
)

var ErrClosed = errors.New("inference client closed")

type ClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	// DisableCUDA skips the CUDA execution provider even when it loads.
	DisableCUDA bool
	Logger      *slog.Logger
}

type request struct {
	input *[]float32
	resp  chan response
}

type response struct {
	policy [PolicySize]float32
	value  float32
	err    error
}

// RuntimeStats describes batching behaviour since the client started.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// Client owns one ONNX Runtime session. The model takes "input" shaped
// [B, Channels, H, W] and returns "policy" [B, 4] and "value" [B, 1].
type Client struct {
	session *ort.DynamicAdvancedSession
	enc     *encode.Encoder
	cfg     ClientConfig
	logger  *slog.Logger

	requests chan request
	done     chan struct{}
	loopDone chan struct{}
	closeMu  sync.RWMutex
	closed   bool

	batches  atomic.Int64
	items    atomic.Int64
	runNanos atomic.Int64
	last     atomic.Int64
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// InitRuntime points onnxruntime_go at the shared library and initializes
// the process-wide environment. ORT_SHARED_LIBRARY_PATH wins over the
// libraries found in the working directory.
func InitRuntime() error {
	ortInitOnce.Do(func() {
		if runtime.GOOS == "linux" {
			ensureLinuxLibraryPath()
			if p := sharedLibraryPath(); p != "" {
				ort.SetSharedLibraryPath(p)
			}
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("init onnxruntime: %w", ortInitErr)
	}
	return nil
}

func sharedLibraryPath() string {
	if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	// go test runs in the package directory; look a few levels up as well.
	for range 4 {
		for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
			abs := filepath.Join(dir, name)
			if _, err := os.Stat(abs); err == nil {
				return abs
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// ensureLinuxLibraryPath prepends CUDA libraries installed into a local
// .venv to LD_LIBRARY_PATH.
func ensureLinuxLibraryPath() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	candidates := []string{cwd}
	for _, pat := range []string{
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "nvidia", "*", "lib"),
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "torch", "lib"),
	} {
		matches, _ := filepath.Glob(pat)
		candidates = append(candidates, matches...)
	}

	existing := os.Getenv("LD_LIBRARY_PATH")
	have := map[string]bool{}
	for _, p := range strings.Split(existing, ":") {
		if p != "" {
			have[p] = true
		}
	}
	var add []string
	for _, d := range candidates {
		if have[d] {
			continue
		}
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			add = append(add, d)
		}
	}
	if len(add) == 0 {
		return
	}
	val := strings.Join(add, ":")
	if existing != "" {
		val += ":" + existing
	}
	_ = os.Setenv("LD_LIBRARY_PATH", val)
}

// NewClient loads modelPath for boards encoded by enc.
func NewClient(modelPath string, enc *encode.Encoder, cfg ClientConfig) (*Client, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := InitRuntime(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()
	// Many pool workers share the process; keep each session single threaded.
	_ = options.SetIntraOpNumThreads(1)
	_ = options.SetInterOpNumThreads(1)

	if !cfg.DisableCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			logger.Debug("CUDA provider unavailable", "error", err)
		} else {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				logger.Debug("CUDA provider not appended", "error", err)
			} else {
				logger.Info("CUDA provider enabled")
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"policy", "value"}, options)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", modelPath, err)
	}

	c := &Client{
		session:  session,
		enc:      enc,
		cfg:      cfg,
		logger:   logger,
		requests: make(chan request, cfg.BatchSize*2),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go c.batchLoop()
	return c, nil
}

// Predict encodes state from snake's point of view and returns the policy
// logits in move order plus the value estimate.
func (c *Client) Predict(state *game.GameState, snake int) ([PolicySize]float32, float32, error) {
	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		return [PolicySize]float32{}, 0, ErrClosed
	}
	resp := make(chan response, 1)
	c.requests <- request{input: c.enc.Float32(state, snake), resp: resp}
	c.closeMu.RUnlock()

	r := <-resp
	return r.policy, r.value, r.err
}

func (c *Client) Stats() RuntimeStats {
	st := RuntimeStats{
		TotalBatches:  c.batches.Load(),
		TotalItems:    c.items.Load(),
		TotalRunNanos: c.runNanos.Load(),
		LastBatchSize: c.last.Load(),
		QueueLen:      len(c.requests),
	}
	if st.TotalBatches > 0 {
		st.AvgBatchSize = float64(st.TotalItems) / float64(st.TotalBatches)
		st.AvgRunMs = float64(st.TotalRunNanos) / 1e6 / float64(st.TotalBatches)
	}
	return st
}

// Close fails queued requests and destroys the session.
func (c *Client) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.closeMu.Unlock()

	<-c.loopDone
	return c.session.Destroy()
}

func (c *Client) batchLoop() {
	defer close(c.loopDone)

	size := c.enc.Size()
	input := make([]float32, 0, c.cfg.BatchSize*size)
	pending := make([]request, 0, c.cfg.BatchSize)

	add := func(r request) {
		pending = append(pending, r)
		input = append(input, (*r.input)...)
		c.enc.PutFloatBuffer(r.input)
	}
	flush := func() {
		if len(pending) == 0 {
			return
		}
		c.runBatch(pending, input)
		pending = pending[:0]
		input = input[:0]
	}

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()
	for {
		select {
		case r := <-c.requests:
			add(r)
			if len(pending) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-c.done:
			for {
				select {
				case r := <-c.requests:
					add(r)
				default:
					c.failBatch(pending, ErrClosed)
					return
				}
			}
		}
	}
}

func (c *Client) runBatch(reqs []request, input []float32) {
	n := int64(len(reqs))
	shape := c.enc.Shape()
	start := time.Now()

	in, err := ort.NewTensor(ort.NewShape(n, int64(shape[0]), int64(shape[1]), int64(shape[2])), input)
	if err != nil {
		c.failBatch(reqs, err)
		return
	}
	defer in.Destroy()
	policyT, err := ort.NewEmptyTensor[float32](ort.NewShape(n, PolicySize))
	if err != nil {
		c.failBatch(reqs, err)
		return
	}
	defer policyT.Destroy()
	valueT, err := ort.NewEmptyTensor[float32](ort.NewShape(n, ValueSize))
	if err != nil {
		c.failBatch(reqs, err)
		return
	}
	defer valueT.Destroy()

	if err := c.session.Run([]ort.Value{in}, []ort.Value{policyT, valueT}); err != nil {
		c.failBatch(reqs, fmt.Errorf("run batch of %d: %w", n, err))
		return
	}

	c.batches.Add(1)
	c.items.Add(n)
	c.last.Store(n)
	c.runNanos.Add(time.Since(start).Nanoseconds())

	policy := policyT.GetData()
	value := valueT.GetData()
	for i, r := range reqs {
		var out response
		copy(out.policy[:], policy[i*PolicySize:(i+1)*PolicySize])
		out.value = value[i*ValueSize]
		r.resp <- out
	}
}

func (c *Client) failBatch(reqs []request, err error) {
	for _, r := range reqs {
		r.resp <- response{err: err}
	}
}
