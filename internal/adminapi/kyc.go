package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/2beens/cutroom-admin/internal/session"
	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"
)

const kycEndpoint = "/admin/kyc"

type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

type KYCSubmission struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	UserName        string    `json:"userName"`
	DocumentType    string    `json:"documentType"`
	Status          KYCStatus `json:"status"`
	SubmittedAt     time.Time `json:"submittedAt"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
}

type KYC struct {
	client *session.Client
}

func NewKYC(client *session.Client) *KYC {
	return &KYC{client: client}
}

// List returns submissions with the given status, all of them when status is empty.
func (k *KYC) List(ctx context.Context, status KYCStatus) ([]KYCSubmission, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "adminapi.kyc.list")
	defer span.End()

	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}

	var resp itemResponse[[]KYCSubmission]
	if err := k.client.GetJSON(ctx, kycEndpoint, query, &resp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list kyc submissions: %w", err)
	}
	if !resp.Success {
		return nil, unsuccessful(resp.Message)
	}
	if resp.Data == nil {
		return []KYCSubmission{}, nil
	}
	return resp.Data, nil
}

func (k *KYC) Approve(ctx context.Context, id string) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "adminapi.kyc.approve")
	defer span.End()

	if id == "" {
		return errors.New("approve kyc: empty submission id")
	}
	if err := postAction(ctx, k.client, kycEndpoint+"/"+url.PathEscape(id)+"/approve", nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("approve kyc %s: %w", id, err)
	}
	return nil
}

func (k *KYC) Reject(ctx context.Context, id, reason string) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "adminapi.kyc.reject")
	defer span.End()

	if id == "" {
		return errors.New("reject kyc: empty submission id")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errors.New("reject kyc: a reason is required")
	}
	payload := map[string]string{"reason": reason}
	if err := postAction(ctx, k.client, kycEndpoint+"/"+url.PathEscape(id)+"/reject", payload); err != nil {
		span.RecordError(err)
		return fmt.Errorf("reject kyc %s: %w", id, err)
	}
	return nil
}
