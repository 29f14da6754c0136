package session

import "context"

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=session

// TokenStore is the persisted side-channel copy of the session token. Only
// the session Manager reads or writes it. An absent token loads as "".
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
