// Package adminapi holds the typed clients the admin pages use. They only
// ever talk to the backend through the session's authorized client.
package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/2beens/cutroom-admin/internal/session"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrUnsuccessful = errors.New("backend reported failure")

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type Page[T any] struct {
	Items      []T
	Pagination Pagination
}

type pagedResponse[T any] struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type itemResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func unsuccessful(message string) error {
	if message == "" {
		return ErrUnsuccessful
	}
	return fmt.Errorf("%w: %s", ErrUnsuccessful, message)
}

func pagingQuery(page, limit int) url.Values {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	return query
}

func getPage[T any](ctx context.Context, client *session.Client, path string, query url.Values) (*Page[T], error) {
	var resp pagedResponse[T]
	if err := client.GetJSON(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, unsuccessful(resp.Message)
	}
	if resp.Data == nil {
		resp.Data = []T{}
	}
	return &Page[T]{
		Items:      resp.Data,
		Pagination: resp.Pagination,
	}, nil
}

func postAction(ctx context.Context, client *session.Client, path string, payload any) error {
	var resp actionResponse
	if err := client.PostJSON(ctx, path, payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return unsuccessful(resp.Message)
	}
	return nil
}
