// Package cfapi binds cfbridge.Subsystem to the Windows Cloud Files API in
// cldapi.dll. The binding is pure Go: callbacks enter through
// syscall trampolines and completions leave through CfExecute.
package cfapi

import (
	"errors"

	"github.com/fruitsalade/cloudbridge/internal/cfbridge"
)

// ErrUnsupported is returned on platforms without the Cloud Files API.
var ErrUnsupported = errors.New("cfapi: cloud files api is only available on 64-bit windows")

const (
	connectFlagRequireProcessInfo  = 0x2
	connectFlagRequireFullFilePath = 0x4

	connectFlags = connectFlagRequireProcessInfo | connectFlagRequireFullFilePath
)

// CF_OPERATION_TYPE
const (
	operationTransferData         = 0
	operationAckData              = 2
	operationTransferPlaceholders = 4
)

const (
	operationTransferDataFlagMarkInSync = 0x1
	callbackDeleteFlagIsDirectory       = 0x1
	callbackRenameFlagIsDirectory       = 0x1
)

// NTSTATUS values accepted as CfExecute completion statuses.
const (
	ntStatusSuccess        uint32 = 0x00000000
	ntStatusUnsuccessful   uint32 = 0xC0000001
	ntStatusInvalidParam   uint32 = 0xC000000D
	ntStatusEndOfFile      uint32 = 0xC0000011
	ntStatusDeviceNotReady uint32 = 0xC00000A3
	ntStatusCancelled      uint32 = 0xC0000120
)

// completionStatus converts a bridge status to the NTSTATUS CfExecute expects.
func completionStatus(h cfbridge.HRESULT) uint32 {
	switch h {
	case cfbridge.StatusOK:
		return ntStatusSuccess
	case cfbridge.StatusRequestCanceled:
		return ntStatusCancelled
	case cfbridge.StatusHandleEOF:
		return ntStatusEndOfFile
	case cfbridge.StatusInvalidArg:
		return ntStatusInvalidParam
	case cfbridge.StatusNotReady:
		return ntStatusDeviceNotReady
	default:
		return ntStatusUnsuccessful
	}
}

// Mirrors of the cfapi.h structures. Field order and Go's natural alignment
// reproduce the 64-bit layouts.

type callbackInfo struct {
	StructSize             uint32
	ConnectionKey          int64
	CallbackContext        uintptr
	VolumeGUIDName         uintptr
	VolumeDosName          uintptr
	VolumeSerialNumber     uint32
	SyncRootFileID         int64
	SyncRootIdentity       uintptr
	SyncRootIdentityLength uint32
	FileID                 int64
	FileSize               int64
	FileIdentity           uintptr
	FileIdentityLength     uint32
	NormalizedPath         *uint16
	TransferKey            int64
	PriorityHint           uint8
	CorrelationVector      uintptr
	ProcessInfo            uintptr
	RequestKey             int64
}

type callbackParameters struct {
	ParamSize uint32
	_         uint32
	Union     [56]byte
}

type fetchDataParams struct {
	Flags                 uint32
	RequiredFileOffset    int64
	RequiredLength        int64
	OptionalFileOffset    int64
	OptionalLength        int64
	LastDehydrationTime   int64
	LastDehydrationReason uint32
}

type validateDataParams struct {
	Flags              uint32
	RequiredFileOffset int64
	RequiredLength     int64
}

type deleteParams struct {
	Flags uint32
}

type renameParams struct {
	Flags      uint32
	TargetPath *uint16
}

type callbackRegistration struct {
	Type     uint32
	_        uint32
	Callback uintptr
}

type operationInfo struct {
	StructSize        uint32
	Type              uint32
	ConnectionKey     int64
	TransferKey       int64
	CorrelationVector uintptr
	SyncStatus        uintptr
	RequestKey        int64
}

type opTransferData struct {
	ParamSize        uint32
	_                uint32
	Flags            uint32
	CompletionStatus uint32
	Buffer           uintptr
	Offset           int64
	Length           int64
}

type opAckData struct {
	ParamSize        uint32
	_                uint32
	Flags            uint32
	CompletionStatus uint32
	Offset           int64
	Length           int64
}

type opTransferPlaceholders struct {
	ParamSize             uint32
	_                     uint32
	Flags                 uint32
	CompletionStatus      uint32
	PlaceholderTotalCount int64
	PlaceholderArray      uintptr
	PlaceholderCount      uint32
	EntriesProcessed      uint32
}
