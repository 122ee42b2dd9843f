package cfbridge

import "fmt"

// ConnectionKey identifies a live registration with the Cloud Files subsystem.
type ConnectionKey int64

// TransferKey identifies an in-flight operation on a placeholder.
type TransferKey int64

// Keys correlates a callback with the completions issued for it.
type Keys struct {
	ConnectionKey ConnectionKey
	TransferKey   TransferKey
	// RequestKey is echoed back in completions on platforms that require it.
	RequestKey int64
}

// EventKeys returns the correlation keys carried by an event.
func (k Keys) EventKeys() Keys { return k }

// EventKind tags the concrete type of an Event.
type EventKind int

const (
	KindFetchData EventKind = iota
	KindCancelFetchData
	KindNotifyDelete
	KindNotifyRename
)

func (k EventKind) String() string {
	switch k {
	case KindFetchData:
		return "fetch_data"
	case KindCancelFetchData:
		return "cancel_fetch_data"
	case KindNotifyDelete:
		return "notify_delete"
	case KindNotifyRename:
		return "notify_rename"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a callback event produced by the router. The set of
// implementations is closed: FetchData, CancelFetchData, NotifyDelete and
// NotifyRename. Events are never mutated after creation.
type Event interface {
	Kind() EventKind
	EventKeys() Keys
	isEvent()
}

// FetchData asks the provider to supply [RequiredOffset, RequiredOffset+RequiredLength)
// of the placeholder at Path. It is served inline by the HydrationExecutor and
// never queued.
type FetchData struct {
	Keys
	Path           string
	RequiredOffset int64
	RequiredLength int64
	FileSize       int64
}

// CancelFetchData reports that the OS abandoned a hydration.
type CancelFetchData struct {
	Keys
	Path string
}

// NotifyDelete reports that a placeholder was deleted.
type NotifyDelete struct {
	Keys
	Path        string
	IsDirectory bool
}

// NotifyRename reports that a placeholder was renamed or moved.
type NotifyRename struct {
	Keys
	SourcePath  string
	TargetPath  string
	IsDirectory bool
}

func (FetchData) Kind() EventKind       { return KindFetchData }
func (CancelFetchData) Kind() EventKind { return KindCancelFetchData }
func (NotifyDelete) Kind() EventKind    { return KindNotifyDelete }
func (NotifyRename) Kind() EventKind    { return KindNotifyRename }

func (FetchData) isEvent()       {}
func (CancelFetchData) isEvent() {}
func (NotifyDelete) isEvent()    {}
func (NotifyRename) isEvent()    {}
