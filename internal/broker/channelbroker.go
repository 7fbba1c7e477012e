package broker

type subscribeRequest[TID comparable, TPayload any] struct {
	ID      TID
	Channel chan TPayload
}

type publishRequest[TID comparable, TPayload any] struct {
	ID      TID
	Payload TPayload
}

// ChannelBroker fans out payloads published under an ID to every subscriber of that ID.
//
// The broker retains the latest payload per ID and hands it to new subscribers right away, so a late subscriber
// does not have to wait for the next publication. Subscriber channels have room for one payload and slow
// subscribers only ever see the latest one; intermediate payloads are dropped.
//
// This kind of broker is useful for pushing query snapshots to server-sent event streams, where each
// connected browser is one subscriber and only the current state matters.
type ChannelBroker[TID comparable, TPayload any] struct {
	stopChannel        chan struct{}
	publishChannel     chan publishRequest[TID, TPayload]
	subscribeChannel   chan subscribeRequest[TID, TPayload]
	unsubscribeChannel chan subscribeRequest[TID, TPayload]
}

// NewChannelBroker creates a new ChannelBroker. Use Start() to run it and Stop() to stop it.
func NewChannelBroker[TID comparable, TPayload any]() *ChannelBroker[TID, TPayload] {
	broker := ChannelBroker[TID, TPayload]{
		stopChannel:        make(chan struct{}),
		publishChannel:     make(chan publishRequest[TID, TPayload]),
		subscribeChannel:   make(chan subscribeRequest[TID, TPayload]),
		unsubscribeChannel: make(chan subscribeRequest[TID, TPayload]),
	}
	return &broker
}

// Start listening for publish, subscribe, and unsubscribe events. This function blocks until Stop() is called,
// so it should be called in a goroutine. All subscriber channels are closed when it returns.
func (b *ChannelBroker[TID, TPayload]) Start() {
	retained := map[TID]TPayload{}
	subscribers := map[TID]map[chan TPayload]struct{}{}
	defer func() {
		for _, set := range subscribers {
			for c := range set {
				close(c)
			}
		}
	}()
	for {
		select {
		case <-b.stopChannel:
			return

		case subscription := <-b.subscribeChannel:
			set := subscribers[subscription.ID]
			if set == nil {
				set = map[chan TPayload]struct{}{}
				subscribers[subscription.ID] = set
			}
			set[subscription.Channel] = struct{}{}
			if payload, ok := retained[subscription.ID]; ok {
				offer(subscription.Channel, payload)
			}

		case subscription := <-b.unsubscribeChannel:
			set := subscribers[subscription.ID]
			if _, ok := set[subscription.Channel]; ok {
				delete(set, subscription.Channel)
				close(subscription.Channel)
			}
			if len(set) == 0 {
				delete(subscribers, subscription.ID)
			}

		case publication := <-b.publishChannel:
			retained[publication.ID] = publication.Payload
			for c := range subscribers[publication.ID] {
				offer(c, publication.Payload)
			}
		}
	}
}

// offer replaces whatever payload is waiting in c with payload. Only the broker goroutine sends on c.
func offer[TPayload any](c chan TPayload, payload TPayload) {
	select {
	case <-c:
	default:
	}
	c <- payload
}

// Stop the goroutine that handles the broker.
func (b *ChannelBroker[TID, TPayload]) Stop() {
	close(b.stopChannel)
}

// Subscription is a subscriber's view of a ChannelBroker ID.
type Subscription[TID comparable, TPayload any] struct {
	broker  *ChannelBroker[TID, TPayload]
	id      TID
	channel chan TPayload
}

// C receives the retained payload, if any, followed by subsequent publications. It is closed by Close or when the
// broker stops.
func (s *Subscription[TID, TPayload]) C() <-chan TPayload {
	return s.channel
}

// Close unsubscribes. Closing twice is a no-op.
func (s *Subscription[TID, TPayload]) Close() {
	select {
	case s.broker.unsubscribeChannel <- subscribeRequest[TID, TPayload]{ID: s.id, Channel: s.channel}:
	case <-s.broker.stopChannel:
	}
}

// Subscribe to payloads published with ID.
func (b *ChannelBroker[TID, TPayload]) Subscribe(id TID) *Subscription[TID, TPayload] {
	channel := make(chan TPayload, 1)
	select {
	case b.subscribeChannel <- subscribeRequest[TID, TPayload]{ID: id, Channel: channel}:
	case <-b.stopChannel:
		close(channel)
	}
	return &Subscription[TID, TPayload]{broker: b, id: id, channel: channel}
}

// Publish payload to the subscribers of ID and retain it for future subscribers.
func (b *ChannelBroker[TID, TPayload]) Publish(id TID, payload TPayload) {
	select {
	case b.publishChannel <- publishRequest[TID, TPayload]{ID: id, Payload: payload}:
	case <-b.stopChannel:
	}
}
