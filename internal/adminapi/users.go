package adminapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/cutroom-admin/internal/session"
	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const usersEndpoint = "/admin/users"

type UserRole string

const (
	UserRoleEditor UserRole = "editor"
	UserRoleClient UserRole = "client"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      UserRole  `json:"role"`
	IsBanned  bool      `json:"isBanned"`
	KYCStatus string    `json:"kycStatus,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserListParams struct {
	Page   int
	Limit  int
	Search string
	Role   UserRole
	// Banned filters on ban state when set.
	Banned *bool
}

func (p UserListParams) query() url.Values {
	query := pagingQuery(p.Page, p.Limit)
	if search := strings.TrimSpace(p.Search); search != "" {
		query.Set("search", search)
	}
	if p.Role != "" {
		query.Set("role", string(p.Role))
	}
	if p.Banned != nil {
		query.Set("banned", strconv.FormatBool(*p.Banned))
	}
	return query
}

type Users struct {
	client *session.Client
}

func NewUsers(client *session.Client) *Users {
	return &Users{client: client}
}

func (u *Users) List(ctx context.Context, params UserListParams) (*Page[User], error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "adminapi.users.list")
	defer span.End()

	page, err := getPage[User](ctx, u.client, usersEndpoint, params.query())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list users: %w", err)
	}
	span.SetAttributes(attribute.Int("users.count", len(page.Items)))
	return page, nil
}

func (u *Users) Ban(ctx context.Context, userID string) error {
	return u.setBanned(ctx, userID, "ban")
}

func (u *Users) Unban(ctx context.Context, userID string) error {
	return u.setBanned(ctx, userID, "unban")
}

func (u *Users) setBanned(ctx context.Context, userID, action string) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "adminapi.users."+action)
	defer span.End()

	if userID == "" {
		return fmt.Errorf("%s user: empty user id", action)
	}
	if err := postAction(ctx, u.client, usersEndpoint+"/"+url.PathEscape(userID)+"/"+action, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s user %s: %w", action, userID, err)
	}
	return nil
}

// FilterUsers narrows an already fetched page by a case-insensitive match on
// name or email. An empty query returns the input as is.
func FilterUsers(users []User, query string) []User {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return users
	}

	filtered := make([]User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), query) ||
			strings.Contains(strings.ToLower(u.Email), query) {
			filtered = append(filtered, u)
		}
	}
	return filtered
}
