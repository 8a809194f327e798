package auth

import (
	"context"

	"github.com/goliatone/go-command"
)

// RequestPasswordResetMessage asks for a reset link to be mailed
type RequestPasswordResetMessage struct {
	Email       string `json:"email"`
	CallbackURL string `json:"callbackUrl"`
	OnResponse  func(resp *Ack)
}

func (m RequestPasswordResetMessage) Type() string { return "auth.password_reset.request" }

func (m RequestPasswordResetMessage) Validate() error {
	return ForgetRequest{Email: m.Email, CallbackURL: m.CallbackURL}.Validate()
}

// RequestPasswordResetHandler runs the forget flow for a message
type RequestPasswordResetHandler struct {
	flows *TokenFlowService
}

var _ command.Commander[RequestPasswordResetMessage] = (*RequestPasswordResetHandler)(nil)

func NewRequestPasswordResetHandler(flows *TokenFlowService) *RequestPasswordResetHandler {
	return &RequestPasswordResetHandler{flows: flows}
}

func (h *RequestPasswordResetHandler) Execute(ctx context.Context, msg RequestPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return ErrOperationTimeout
	default:
		return h.execute(ctx, msg)
	}
}

func (h *RequestPasswordResetHandler) execute(ctx context.Context, msg RequestPasswordResetMessage) error {
	if err := msg.Validate(); err != nil {
		return validationError(err)
	}

	resp, err := h.flows.RequestPasswordReset(ctx, msg.Email, msg.CallbackURL)
	if err != nil {
		return err
	}

	if msg.OnResponse != nil {
		msg.OnResponse(resp)
	}
	return nil
}

// ConfirmPasswordResetMessage redeems a forget token for a new password
type ConfirmPasswordResetMessage struct {
	Password   string `json:"password"`
	Token      string `json:"token"`
	OnResponse func(resp *ResetResult)
}

func (m ConfirmPasswordResetMessage) Type() string { return "auth.password_reset.confirm" }

func (m ConfirmPasswordResetMessage) Validate() error {
	return ResetRequest{Password: m.Password, Token: m.Token}.Validate()
}

// ConfirmPasswordResetHandler finalizes a reset for a message
type ConfirmPasswordResetHandler struct {
	flows *TokenFlowService
}

var _ command.Commander[ConfirmPasswordResetMessage] = (*ConfirmPasswordResetHandler)(nil)

func NewConfirmPasswordResetHandler(flows *TokenFlowService) *ConfirmPasswordResetHandler {
	return &ConfirmPasswordResetHandler{flows: flows}
}

func (h *ConfirmPasswordResetHandler) Execute(ctx context.Context, msg ConfirmPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return ErrOperationTimeout
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ConfirmPasswordResetHandler) execute(ctx context.Context, msg ConfirmPasswordResetMessage) error {
	if err := msg.Validate(); err != nil {
		return validationError(err)
	}

	resp, err := h.flows.ConfirmPasswordReset(ctx, msg.Password, msg.Token)
	if err != nil {
		return err
	}

	if msg.OnResponse != nil {
		msg.OnResponse(resp)
	}
	return nil
}
