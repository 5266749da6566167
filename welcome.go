package people

import (
	"context"
	"net/http"
)

// WelcomeClient handles the first-run welcome state.
type WelcomeClient struct{ client *Client }

func (w *WelcomeClient) Get(ctx context.Context) (*Welcome, error) {
	return query(ctx, w.client.cache, WelcomeKey(), false, func(ctx context.Context) (*Welcome, error) {
		raw, err := w.client.doRequest(ctx, request{method: http.MethodGet, endpoint: EndpointWelcomeGet})
		if err != nil {
			return nil, err
		}
		wel := w.client.normalize.Welcome(raw)
		return &wel, nil
	})
}

func (w *WelcomeClient) MarkSeen(ctx context.Context) (*MutationAck, error) {
	return w.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointWelcomeSeen,
	}, InvalidationsFor(MutationMarkWelcomeSeen, ""))
}

// NotificationsClient checks the app's notification subscription.
type NotificationsClient struct{ client *Client }

// Check reports whether a notification subscription exists. The answer is
// cached for the whole session.
func (n *NotificationsClient) Check(ctx context.Context) (*NotificationCheck, error) {
	return query(ctx, n.client.cache, NotificationCheckKey(), false, func(ctx context.Context) (*NotificationCheck, error) {
		raw, err := n.client.doRequest(ctx, request{method: http.MethodGet, endpoint: EndpointNotificationsCheck})
		if err != nil {
			return nil, err
		}
		chk := n.client.normalize.NotificationCheck(raw)
		return &chk, nil
	})
}
