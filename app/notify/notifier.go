package notify

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/rss-relay/app/config"
	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/gateway"
)

type Poster interface {
	Post(ctx context.Context, url string, d gateway.Delivery) error
}

// Notifier delivers posts to one instance's webhook.
type Notifier struct {
	webhook string
	shape   gateway.ChannelShape
	builder *PayloadBuilder
	poster  Poster
}

func NewNotifier(instance *config.Instance, poster Poster) *Notifier {
	shape := gateway.TextChannel
	if instance.Forum {
		shape = gateway.ForumChannel
	}

	return &Notifier{
		webhook: instance.DiscordWebhookURL,
		shape:   shape,
		builder: NewPayloadBuilder(instance),
		poster:  poster,
	}
}

// Notify sends post with the configured channel shape first. Delivery
// failures are logged by the gateway; only cancellation is returned.
func (n *Notifier) Notify(ctx context.Context, post feed.Post) error {
	forum, text, err := n.builder.Build(post)
	if err != nil {
		slog.Error("Failed to build webhook payload", "title", post.Title, "error", err)
		return nil
	}

	return n.poster.Post(ctx, n.webhook, gateway.Delivery{
		Primary: n.shape,
		Text:    text,
		Forum:   forum,
	})
}
