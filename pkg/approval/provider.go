package approval

import (
	"context"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// Provider is the common interface both built-in approval providers (chat
// webhook and generic HTTP) satisfy, per spec.md §4.6: send a request out,
// and decode a provider callback payload into a decision.
type Provider interface {
	// Name identifies the provider within ApprovalRequest.Providers.
	Name() string
	// Send delivers req to the provider's channel. An error here is
	// fail-closed: the caller marks the provider's per-provider status
	// rejected.
	Send(ctx context.Context, req *models.ApprovalRequest) error
	// HandleResponse decodes a provider-specific callback payload into a
	// decision.
	HandleResponse(payload []byte) (*models.ApprovalDecision, error)
}
