// Package api provides the gRPC organizer service.
//
// The service has no generated stubs: requests and responses are
// google.protobuf.Struct documents and the service descriptor is declared by
// hand in desc.go. Any gRPC client that can send a Struct can call it.
package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solatis/inboxkeeper/internal/core/config"
	"github.com/solatis/inboxkeeper/internal/organizer"
)

// OrganizerService implements OrganizerServer.
// Thin orchestration layer delegating to the organizer and rules packages.
type OrganizerService struct {
	organizer *organizer.Organizer
	cfg       *config.APIConfig
	logger    *slog.Logger
}

// NewOrganizerService creates service instance with dependencies.
func NewOrganizerService(o *organizer.Organizer, cfg *config.APIConfig, logger *slog.Logger) (*OrganizerService, error) {
	if o == nil {
		return nil, fmt.Errorf("organizer cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizerService{organizer: o, cfg: cfg, logger: logger}, nil
}

// withDeadline bounds a request by the configured timeout.
func (s *OrganizerService) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}
