package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the two Pub/Sub resources the ledger touches: the order status
// subscription it consumes and the commissions topic it publishes to.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	pubOnce     sync.Once
	commissions *pubsub.Publisher
}

// NewClient connects and verifies that the configured subscription and topic exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: projectID, cfg: cfg}

	if err := c.verify(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"orders_subscription": c.subscriptionName(),
			"commissions_topic":   c.topicName(),
		}), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) verify(ctx context.Context) error {
	sub := c.subscriptionName()
	if sub == "" {
		return errors.New("orders subscription is not configured")
	}
	if _, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub}); err != nil {
		return missingOr(err, "subscription", sub)
	}

	topic := c.topicName()
	if topic == "" {
		return errors.New("commissions topic is not configured")
	}
	if _, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic}); err != nil {
		return missingOr(err, "topic", topic)
	}
	return nil
}

func missingOr(err error, kind, name string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// OrdersSubscription returns the order status subscriber with flow control applied.
func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.subscriptionName()
	if name == "" {
		return nil
	}
	sub := c.client.Subscriber(name)
	if c.cfg.MaxOutstandingMsgs > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstandingMsgs
	}
	if c.cfg.ReceiveNumGoroutine > 0 {
		sub.ReceiveSettings.NumGoroutines = c.cfg.ReceiveNumGoroutine
	}
	return sub
}

// CommissionsPublisher returns the shared publisher for commission events.
// It is flushed and stopped by Close.
func (c *Client) CommissionsPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	c.pubOnce.Do(func() {
		if name := c.topicName(); name != "" {
			c.commissions = c.client.Publisher(name)
		}
	})
	return c.commissions
}

// Ping checks the order status subscription is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	name := c.subscriptionName()
	if _, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name}); err != nil {
		return missingOr(err, "subscription", name)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.commissions != nil {
		c.commissions.Stop()
	}
	return c.client.Close()
}

func (c *Client) subscriptionName() string {
	return resourceName(c.projectID, "subscriptions", c.cfg.OrdersSubscription)
}

func (c *Client) topicName() string {
	return resourceName(c.projectID, "topics", c.cfg.CommissionsTopic)
}

// resourceName expands a short id into projects/<project>/<kind>/<id>;
// fully qualified names pass through unchanged.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, kind, name)
}
