package otel

import (
	"context"

	"github.com/MrEthical07/sessionguard/auth"
	"github.com/MrEthical07/sessionguard/session"
)

type unconfiguredClient struct{}

func (unconfiguredClient) Configured() bool { return false }
func (unconfiguredClient) GetSession(context.Context) (*session.Session, error) {
	return nil, nil
}
func (unconfiguredClient) GetUser(context.Context, string) (*session.User, error) {
	return nil, nil
}
func (unconfiguredClient) SignOut(context.Context, auth.SignOutScope) error { return nil }
func (unconfiguredClient) OnAuthStateChange(func(auth.ChangeEvent)) *auth.Subscription {
	return auth.NewSubscription(func() {})
}
