package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/jordigilh/agent-sre/pkg/models"
)

const (
	actionApprove = "agent_sre_approve"
	actionReject  = "agent_sre_reject"
)

// ChatProviderConfig configures the Slack-backed chat-webhook approval
// provider.
type ChatProviderConfig struct {
	Token   string
	Channel string
}

// ChatProvider sends approval requests as an interactive Slack message with
// Approve/Reject buttons and decodes Slack's block-action interaction
// callback. Nil-safe, following the teacher's pkg/slack/service.go pattern:
// every method is a no-op (or returns a clear error) on a nil receiver so a
// missing SLACK_BOT_TOKEN/SLACK_CHANNEL config degrades the provider cleanly
// rather than panicking.
type ChatProvider struct {
	api     *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewChatProvider builds a ChatProvider, or nil if Token or Channel is
// empty.
func NewChatProvider(cfg ChatProviderConfig) *ChatProvider {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &ChatProvider{
		api:     goslack.New(cfg.Token),
		channel: cfg.Channel,
		logger:  slog.Default().With("component", "approval-chat-provider"),
	}
}

// NewChatProviderWithAPI builds a ChatProvider around a pre-constructed
// slack-go client, for testing against a mock API server.
func NewChatProviderWithAPI(api *goslack.Client, channel string) *ChatProvider {
	return &ChatProvider{api: api, channel: channel, logger: slog.Default().With("component", "approval-chat-provider")}
}

func (p *ChatProvider) Name() string { return "chat" }

// Send posts an interactive approve/reject message. Fail-closed: the
// Manager marks this provider rejected if Send returns an error, including
// when called on a nil receiver.
func (p *ChatProvider) Send(ctx context.Context, req *models.ApprovalRequest) error {
	if p == nil {
		return fmt.Errorf("approval: chat provider not configured")
	}

	blocks := buildApprovalBlocks(req)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, _, err := p.api.PostMessageContext(ctx, p.channel, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("approval: chat.postMessage failed: %w", err)
	}
	return nil
}

// HandleResponse decodes a Slack block-action interaction callback (the
// JSON payload Slack POSTs under the "payload" form field) into an
// ApprovalDecision.
func (p *ChatProvider) HandleResponse(payload []byte) (*models.ApprovalDecision, error) {
	var callback goslack.InteractionCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		return nil, fmt.Errorf("approval: decode slack interaction callback: %w", err)
	}
	if len(callback.ActionCallback.BlockActions) == 0 {
		return nil, fmt.Errorf("approval: slack interaction callback has no block actions")
	}

	action := callback.ActionCallback.BlockActions[0]
	var decision string
	switch action.ActionID {
	case actionApprove:
		decision = "approve"
	case actionReject:
		decision = "reject"
	default:
		return nil, fmt.Errorf("approval: unrecognized slack action id %q", action.ActionID)
	}

	return &models.ApprovalDecision{
		RequestID: action.Value,
		Provider:  "chat",
		Decision:  decision,
		Actor:     callback.User.Name,
		Timestamp: time.Now(),
	}, nil
}

func buildApprovalBlocks(req *models.ApprovalRequest) []goslack.Block {
	text := fmt.Sprintf(":warning: *Remediation approval requested*\nAgent: `%s`\nAction: `%s`\nLambda function: `%s`\nRequest ID: `%s`",
		req.Agent, req.Action, req.LambdaFunction, req.RequestID)

	section := goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil)

	approveBtn := goslack.NewButtonBlockElement(actionApprove, req.RequestID,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Approve", false, false))
	approveBtn.Style = goslack.StylePrimary

	rejectBtn := goslack.NewButtonBlockElement(actionReject, req.RequestID,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Reject", false, false))
	rejectBtn.Style = goslack.StyleDanger

	actions := goslack.NewActionBlock("", approveBtn, rejectBtn)

	return []goslack.Block{section, actions}
}

var _ Provider = (*ChatProvider)(nil)
