package cfbridge

import (
	"context"
	"errors"
	"sync"
)

type progressCall struct {
	conn      ConnectionKey
	transfer  TransferKey
	total     int64
	completed int64
}

// fakeSubsystem records completions and lets tests play the OS by invoking
// the registered handler directly.
type fakeSubsystem struct {
	mu          sync.Mutex
	completions []Completion
	progress    []progressCall
	table       CallbackTable
	nextKey     ConnectionKey
	connects    int
	disconnects int

	connectErr    error
	disconnectErr error
	executeErr    map[CompletionKind]error
	progressErr   error
	// executePanics makes the next n submissions of a kind panic before recording.
	executePanics map[CompletionKind]int
}

func newFakeSubsystem() *fakeSubsystem {
	return &fakeSubsystem{
		nextKey:       100,
		executeErr:    make(map[CompletionKind]error),
		executePanics: make(map[CompletionKind]int),
	}
}

func (f *fakeSubsystem) Connect(rootPath string, table CallbackTable) (ConnectionKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return 0, f.connectErr
	}
	f.table = table
	f.nextKey++
	return f.nextKey, nil
}

func (f *fakeSubsystem) Disconnect(key ConnectionKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return f.disconnectErr
}

func (f *fakeSubsystem) Execute(c *Completion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.executePanics[c.Kind] > 0 {
		f.executePanics[c.Kind]--
		panic("execute " + c.Kind.String())
	}
	cp := *c
	cp.Data = append([]byte(nil), c.Data...)
	f.completions = append(f.completions, cp)
	return f.executeErr[c.Kind]
}

func (f *fakeSubsystem) ReportProgress(conn ConnectionKey, transfer TransferKey, total, completed int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progressCall{conn, transfer, total, completed})
	return f.progressErr
}

func (f *fakeSubsystem) handle(cb Callback) {
	f.mu.Lock()
	h := f.table.Handler
	f.mu.Unlock()
	h.Handle(cb)
}

func (f *fakeSubsystem) all() []Completion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Completion(nil), f.completions...)
}

func (f *fakeSubsystem) ofKind(kind CompletionKind) []Completion {
	var out []Completion
	for _, c := range f.all() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// scriptedSource replays canned responses in order and records requests.
type scriptedSource struct {
	mu        sync.Mutex
	responses []ChunkResponse
	requests  []ChunkRequest
	onPull    func(n int)
}

func (s *scriptedSource) Pull(ctx context.Context, req ChunkRequest) ChunkResponse {
	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	var resp ChunkResponse
	if n < len(s.responses) {
		resp = s.responses[n]
	}
	hook := s.onPull
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return resp
}

// patternSource serves size bytes of a repeating pattern.
func patternSource(size int64) DataSource {
	return DataSourceFunc(func(ctx context.Context, req ChunkRequest) ChunkResponse {
		if req.Offset >= size {
			return ChunkResponse{}
		}
		n := min(req.MaxLength, size-req.Offset)
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = byte((req.Offset + int64(i)) % 251)
		}
		return ChunkResponse{Data: buf}
	})
}

var errBackend = errors.New("backend unavailable")
