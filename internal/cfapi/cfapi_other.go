//go:build !windows || !(amd64 || arm64)

package cfapi

import (
	"go.uber.org/zap"

	"github.com/fruitsalade/cloudbridge/internal/cfbridge"
)

// Subsystem is unavailable on this platform; every method fails.
type Subsystem struct{}

// New always returns ErrUnsupported.
func New(logger *zap.Logger) (*Subsystem, error) {
	return nil, ErrUnsupported
}

func (s *Subsystem) Connect(string, cfbridge.CallbackTable) (cfbridge.ConnectionKey, error) {
	return 0, ErrUnsupported
}

func (s *Subsystem) Disconnect(cfbridge.ConnectionKey) error { return ErrUnsupported }

func (s *Subsystem) Execute(*cfbridge.Completion) error { return ErrUnsupported }

func (s *Subsystem) ReportProgress(cfbridge.ConnectionKey, cfbridge.TransferKey, int64, int64) error {
	return ErrUnsupported
}

var _ cfbridge.Subsystem = (*Subsystem)(nil)
