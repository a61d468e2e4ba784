package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-affiliates/pkg/config"
)

func TestResourceName(t *testing.T) {
	tests := []struct {
		name, project, kind, in, want string
	}{
		{"short subscription", "shop", "subscriptions", "orders-sub", "projects/shop/subscriptions/orders-sub"},
		{"short topic", "shop", "topics", " commissions ", "projects/shop/topics/commissions"},
		{"qualified passes through", "shop", "topics", "projects/other/topics/commissions", "projects/other/topics/commissions"},
		{"blank", "shop", "topics", "  ", ""},
		{"no project", "", "topics", "commissions", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resourceName(tt.project, tt.kind, tt.in))
		})
	}
}

func TestClientResourceNames(t *testing.T) {
	c := &Client{projectID: "shop", cfg: config.PubSubConfig{
		OrdersSubscription: "orders-sub",
		CommissionsTopic:   "commissions",
	}}
	assert.Equal(t, "projects/shop/subscriptions/orders-sub", c.subscriptionName())
	assert.Equal(t, "projects/shop/topics/commissions", c.topicName())
}

func TestMissingOr(t *testing.T) {
	notFound := missingOr(status.Error(codes.NotFound, "gone"), "topic", "projects/shop/topics/commissions")
	assert.EqualError(t, notFound, `topic "projects/shop/topics/commissions" does not exist`)

	cause := errors.New("deadline")
	other := missingOr(cause, "subscription", "s")
	assert.ErrorIs(t, other, cause)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.Nil(t, c.OrdersSubscription())
	assert.Nil(t, c.CommissionsPublisher())
	assert.NoError(t, c.Close())
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: " "}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}
