//go:build windows && (amd64 || arm64)

package cfapi

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/fruitsalade/cloudbridge/internal/cfbridge"
)

var (
	modcldapi = windows.NewLazySystemDLL("cldapi.dll")

	procCfConnectSyncRoot        = modcldapi.NewProc("CfConnectSyncRoot")
	procCfDisconnectSyncRoot     = modcldapi.NewProc("CfDisconnectSyncRoot")
	procCfExecute                = modcldapi.NewProc("CfExecute")
	procCfReportProviderProgress = modcldapi.NewProc("CfReportProviderProgress")
)

// Trampolines are process-wide: windows.NewCallback slots are never freed.
var (
	trampolineOnce sync.Once
	trampolines    map[cfbridge.CallbackType]uintptr
)

func buildTrampolines() {
	trampolines = make(map[cfbridge.CallbackType]uintptr, 13)
	for t := cfbridge.CallbackFetchData; t <= cfbridge.CallbackRenameCompletion; t++ {
		trampolines[t] = windows.NewCallback(entry(t))
	}
}

func entry(t cfbridge.CallbackType) func(info *callbackInfo, params *callbackParameters) uintptr {
	return func(info *callbackInfo, params *callbackParameters) uintptr {
		routes.deliver(t, info, params)
		return 0
	}
}

// routes maps connection keys to handlers. Callbacks can arrive while
// CfConnectSyncRoot is still running; those go to the pending handler.
var routes = &router{byKey: make(map[int64]*Subsystem)}

type router struct {
	mu      sync.RWMutex
	byKey   map[int64]*Subsystem
	pending *Subsystem
}

func (r *router) lookup(key int64) *Subsystem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byKey[key]; ok {
		return s
	}
	return r.pending
}

func (r *router) deliver(t cfbridge.CallbackType, info *callbackInfo, params *callbackParameters) {
	s := r.lookup(info.ConnectionKey)
	if s == nil {
		answerOrphan(t, info, params)
		return
	}
	s.dispatch(t, info, params)
}

// Subsystem is the cldapi.dll implementation of cfbridge.Subsystem.
type Subsystem struct {
	logger *zap.Logger

	mu      sync.Mutex
	handler cfbridge.CallbackHandler
	regs    map[cfbridge.ConnectionKey][]callbackRegistration
}

// New loads cldapi.dll and resolves the required entry points.
func New(logger *zap.Logger) (*Subsystem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := modcldapi.Load(); err != nil {
		return nil, fmt.Errorf("load cldapi.dll: %w", err)
	}
	for _, p := range []*windows.LazyProc{procCfConnectSyncRoot, procCfDisconnectSyncRoot, procCfExecute} {
		if err := p.Find(); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p.Name, err)
		}
	}
	trampolineOnce.Do(buildTrampolines)
	return &Subsystem{
		logger: logger,
		regs:   make(map[cfbridge.ConnectionKey][]callbackRegistration),
	}, nil
}

// Connect registers the callback table for rootPath.
func (s *Subsystem) Connect(rootPath string, table cfbridge.CallbackTable) (cfbridge.ConnectionKey, error) {
	if table.Handler == nil {
		return 0, cfbridge.ErrInvalidParam
	}
	root, err := windows.UTF16PtrFromString(rootPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", cfbridge.ErrInvalidParam, err)
	}
	if len(table.Types) == 0 {
		return 0, cfbridge.ErrInvalidParam
	}

	regs := make([]callbackRegistration, 0, len(table.Types)+1)
	for _, t := range table.Types {
		fn, ok := trampolines[t]
		if !ok {
			return 0, fmt.Errorf("%w: callback type %v", cfbridge.ErrInvalidParam, t)
		}
		regs = append(regs, callbackRegistration{Type: uint32(t), Callback: fn})
	}
	regs = append(regs, callbackRegistration{Type: uint32(cfbridge.CallbackNone)})

	s.mu.Lock()
	s.handler = table.Handler
	s.mu.Unlock()

	routes.mu.Lock()
	routes.pending = s
	routes.mu.Unlock()

	var key int64
	hr, _, _ := procCfConnectSyncRoot.Call(
		uintptr(unsafe.Pointer(root)),
		uintptr(unsafe.Pointer(&regs[0])),
		0,
		connectFlags,
		uintptr(unsafe.Pointer(&key)),
	)

	routes.mu.Lock()
	if routes.pending == s {
		routes.pending = nil
	}
	if err := cfbridge.NewAPIError("CfConnectSyncRoot", cfbridge.HRESULT(uint32(hr))); err != nil {
		routes.mu.Unlock()
		return 0, err
	}
	routes.byKey[key] = s
	routes.mu.Unlock()

	s.mu.Lock()
	s.regs[cfbridge.ConnectionKey(key)] = regs
	s.mu.Unlock()

	s.logger.Debug("CfConnectSyncRoot succeeded", zap.String("root", rootPath), zap.Int64("connection_key", key))
	return cfbridge.ConnectionKey(key), nil
}

// Disconnect unregisters a connection. Callbacks in flight complete first.
func (s *Subsystem) Disconnect(key cfbridge.ConnectionKey) error {
	hr, _, _ := procCfDisconnectSyncRoot.Call(uintptr(key))
	if err := cfbridge.NewAPIError("CfDisconnectSyncRoot", cfbridge.HRESULT(uint32(hr))); err != nil {
		return err
	}

	routes.mu.Lock()
	delete(routes.byKey, int64(key))
	routes.mu.Unlock()

	s.mu.Lock()
	delete(s.regs, key)
	s.mu.Unlock()
	return nil
}

// Execute submits a completion through CfExecute.
func (s *Subsystem) Execute(c *cfbridge.Completion) error {
	if c == nil {
		return cfbridge.ErrInvalidParam
	}
	info := operationInfo{
		ConnectionKey: int64(c.ConnectionKey),
		TransferKey:   int64(c.TransferKey),
		RequestKey:    c.RequestKey,
	}
	info.StructSize = uint32(unsafe.Sizeof(info))

	var params unsafe.Pointer
	switch c.Kind {
	case cfbridge.CompletionTransferData:
		p := &opTransferData{Offset: c.Offset, Length: c.Length}
		p.ParamSize = uint32(unsafe.Sizeof(*p))
		if c.Final {
			p.Flags = operationTransferDataFlagMarkInSync
		}
		if len(c.Data) > 0 {
			p.Buffer = uintptr(unsafe.Pointer(&c.Data[0]))
		}
		info.Type = operationTransferData
		params = unsafe.Pointer(p)
	case cfbridge.CompletionTransferError:
		p := &opTransferData{
			CompletionStatus: completionStatus(c.Status),
			Offset:           c.Offset,
			Length:           c.Length,
		}
		p.ParamSize = uint32(unsafe.Sizeof(*p))
		info.Type = operationTransferData
		params = unsafe.Pointer(p)
	case cfbridge.CompletionAckValidate:
		p := &opAckData{
			CompletionStatus: completionStatus(c.Status),
			Offset:           c.Offset,
			Length:           c.Length,
		}
		p.ParamSize = uint32(unsafe.Sizeof(*p))
		info.Type = operationAckData
		params = unsafe.Pointer(p)
	case cfbridge.CompletionAckPlaceholders:
		p := &opTransferPlaceholders{
			Flags:            c.Flags,
			CompletionStatus: completionStatus(c.Status),
		}
		p.ParamSize = uint32(unsafe.Sizeof(*p))
		info.Type = operationTransferPlaceholders
		params = unsafe.Pointer(p)
	default:
		return fmt.Errorf("%w: completion kind %v", cfbridge.ErrInvalidParam, c.Kind)
	}

	hr, _, _ := procCfExecute.Call(uintptr(unsafe.Pointer(&info)), uintptr(params))
	runtime.KeepAlive(c.Data)
	return cfbridge.NewAPIError("CfExecute", cfbridge.HRESULT(uint32(hr)))
}

// ReportProgress updates the shell progress indicator. Older Windows builds
// lack CfReportProviderProgress; that is not an error.
func (s *Subsystem) ReportProgress(conn cfbridge.ConnectionKey, transfer cfbridge.TransferKey, total, completed int64) error {
	if procCfReportProviderProgress.Find() != nil {
		return nil
	}
	hr, _, _ := procCfReportProviderProgress.Call(uintptr(conn), uintptr(transfer), uintptr(total), uintptr(completed))
	return cfbridge.NewAPIError("CfReportProviderProgress", cfbridge.HRESULT(uint32(hr)))
}

func (s *Subsystem) dispatch(t cfbridge.CallbackType, info *callbackInfo, params *callbackParameters) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		answerOrphan(t, info, params)
		return
	}
	h.Handle(decode(t, info, params))
}

// decode copies the native callback structures into Go values.
func decode(t cfbridge.CallbackType, info *callbackInfo, params *callbackParameters) cfbridge.Callback {
	cb := cfbridge.Callback{
		Type: t,
		Info: cfbridge.CallbackInfo{
			Keys: cfbridge.Keys{
				ConnectionKey: cfbridge.ConnectionKey(info.ConnectionKey),
				TransferKey:   cfbridge.TransferKey(info.TransferKey),
				RequestKey:    info.RequestKey,
			},
			FileSize: info.FileSize,
		},
	}
	if info.NormalizedPath != nil {
		cb.Info.NormalizedPath = windows.UTF16PtrToString(info.NormalizedPath)
	}
	if params == nil {
		return cb
	}

	union := unsafe.Pointer(&params.Union)
	switch t {
	case cfbridge.CallbackFetchData:
		p := (*fetchDataParams)(union)
		cb.Params.RequiredOffset = p.RequiredFileOffset
		cb.Params.RequiredLength = p.RequiredLength
	case cfbridge.CallbackValidateData:
		p := (*validateDataParams)(union)
		cb.Params.RequiredOffset = p.RequiredFileOffset
		cb.Params.RequiredLength = p.RequiredLength
	case cfbridge.CallbackNotifyDelete:
		p := (*deleteParams)(union)
		cb.Params.IsDirectory = p.Flags&callbackDeleteFlagIsDirectory != 0
	case cfbridge.CallbackNotifyRename:
		p := (*renameParams)(union)
		cb.Params.IsDirectory = p.Flags&callbackRenameFlagIsDirectory != 0
		if p.TargetPath != nil {
			cb.Params.TargetPath = windows.UTF16PtrToString(p.TargetPath)
		}
	}
	return cb
}

// answerOrphan completes callbacks that arrive for a connection nobody owns,
// so the requesting process is not left blocked.
func answerOrphan(t cfbridge.CallbackType, info *callbackInfo, params *callbackParameters) {
	cb := decode(t, info, params)
	c := &cfbridge.Completion{Keys: cb.Info.Keys}
	switch t {
	case cfbridge.CallbackFetchData:
		c.Kind = cfbridge.CompletionTransferError
		c.Offset = cb.Params.RequiredOffset
		c.Length = cb.Params.RequiredLength
		c.Status = cfbridge.StatusNotReady
	case cfbridge.CallbackValidateData:
		c.Kind = cfbridge.CompletionAckValidate
		c.Offset = cb.Params.RequiredOffset
		c.Length = cb.Params.RequiredLength
	case cfbridge.CallbackFetchPlaceholders:
		c.Kind = cfbridge.CompletionAckPlaceholders
	default:
		return
	}
	_ = (&Subsystem{}).Execute(c)
}

var _ cfbridge.Subsystem = (*Subsystem)(nil)
