package cfbridge

import (
	"context"
	"fmt"
)

// CallbackType mirrors CF_CALLBACK_TYPE.
type CallbackType uint32

const (
	CallbackFetchData               CallbackType = 0
	CallbackValidateData            CallbackType = 1
	CallbackCancelFetchData         CallbackType = 2
	CallbackFetchPlaceholders       CallbackType = 3
	CallbackCancelFetchPlaceholders CallbackType = 4
	CallbackFileOpenCompletion      CallbackType = 5
	CallbackFileCloseCompletion     CallbackType = 6
	CallbackDehydrate               CallbackType = 7
	CallbackDehydrateCompletion     CallbackType = 8
	CallbackNotifyDelete            CallbackType = 9
	CallbackDeleteCompletion        CallbackType = 10
	CallbackNotifyRename            CallbackType = 11
	CallbackRenameCompletion        CallbackType = 12
	CallbackNone                    CallbackType = 0xFFFFFFFF
)

var callbackNames = map[CallbackType]string{
	CallbackFetchData:               "fetch_data",
	CallbackValidateData:            "validate_data",
	CallbackCancelFetchData:         "cancel_fetch_data",
	CallbackFetchPlaceholders:       "fetch_placeholders",
	CallbackCancelFetchPlaceholders: "cancel_fetch_placeholders",
	CallbackFileOpenCompletion:      "file_open_completion",
	CallbackFileCloseCompletion:     "file_close_completion",
	CallbackDehydrate:               "dehydrate",
	CallbackDehydrateCompletion:     "dehydrate_completion",
	CallbackNotifyDelete:            "notify_delete",
	CallbackDeleteCompletion:        "delete_completion",
	CallbackNotifyRename:            "notify_rename",
	CallbackRenameCompletion:        "rename_completion",
	CallbackNone:                    "none",
}

func (t CallbackType) String() string {
	if name, ok := callbackNames[t]; ok {
		return name
	}
	return fmt.Sprintf("callback(%d)", uint32(t))
}

// CallbackInfo is the per-invocation information common to all callbacks.
type CallbackInfo struct {
	Keys
	NormalizedPath string
	FileSize       int64
}

// CallbackParams holds the type-specific parameters of a callback.
type CallbackParams struct {
	RequiredOffset int64
	RequiredLength int64
	TargetPath     string
	IsDirectory    bool
}

// Callback is one OS invocation, already decoded from the native structures.
type Callback struct {
	Type   CallbackType
	Info   CallbackInfo
	Params CallbackParams
}

// CallbackHandler receives callbacks on the OS thread that delivered them.
// Handle must not return before every completion the callback requires has
// been submitted.
type CallbackHandler interface {
	Handle(cb Callback)
}

// CallbackTable is the registration passed to the subsystem on Connect.
type CallbackTable struct {
	Types   []CallbackType
	Handler CallbackHandler
}

// CompletionKind selects the OS completion operation.
type CompletionKind int

const (
	// CompletionTransferData commits a chunk of file content.
	CompletionTransferData CompletionKind = iota
	// CompletionTransferError fails a hydration with Status.
	CompletionTransferError
	// CompletionAckValidate acknowledges a ValidateData callback.
	CompletionAckValidate
	// CompletionAckPlaceholders answers FetchPlaceholders with an empty set.
	CompletionAckPlaceholders
)

func (k CompletionKind) String() string {
	switch k {
	case CompletionTransferData:
		return "transfer_data"
	case CompletionTransferError:
		return "transfer_error"
	case CompletionAckValidate:
		return "ack_validate"
	case CompletionAckPlaceholders:
		return "ack_placeholders"
	default:
		return fmt.Sprintf("completion(%d)", int(k))
	}
}

// Completion is a response submitted to the OS for a callback.
type Completion struct {
	Kind CompletionKind
	Keys
	Offset int64
	Length int64
	Data   []byte
	// Final marks the transferred range in sync.
	Final  bool
	Status HRESULT
	// Flags is passed through for placeholder acknowledgments and is always 0
	// so on-demand population stays enabled.
	Flags uint32
}

// Subsystem is the OS Cloud Files contract consumed by the bridge.
type Subsystem interface {
	Connect(rootPath string, table CallbackTable) (ConnectionKey, error)
	Disconnect(key ConnectionKey) error
	Execute(c *Completion) error
	// ReportProgress returns nil when the platform lacks progress reporting.
	ReportProgress(conn ConnectionKey, transfer TransferKey, total, completed int64) error
}

// ChunkRequest asks a data source for up to MaxLength bytes of Path at Offset.
// Path is relative to the sync root with forward slashes.
type ChunkRequest struct {
	Path      string
	Offset    int64
	MaxLength int64
}

// ChunkResponse is the result of a pull. Empty Data with a nil Err means end
// of file. EOF may also be set alongside the last bytes of the file.
type ChunkResponse struct {
	Err  error
	Data []byte
	EOF  bool
}

// DataSource supplies file content on demand. Pull is called synchronously
// on the OS callback thread; it may be called concurrently for different files.
type DataSource interface {
	Pull(ctx context.Context, req ChunkRequest) ChunkResponse
}

// DataSourceFunc adapts a function to DataSource.
type DataSourceFunc func(ctx context.Context, req ChunkRequest) ChunkResponse

func (f DataSourceFunc) Pull(ctx context.Context, req ChunkRequest) ChunkResponse {
	return f(ctx, req)
}
