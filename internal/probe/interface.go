package probe

//go:generate mockgen -destination=mocks/mock_publisher.go -package=mocks github.com/mattjoyce/sigslot/internal/probe Publisher

// Publisher receives probe lifecycle events. *events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any)
}
