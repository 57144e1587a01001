/*
Package events provides the in-memory notice broker that carries refresh
lifecycle events from the reconciler to the presentation layer.

The reconciler never fails loudly: a kind that cannot be fetched keeps its
previous data, a cache write that fails is retried on the next cycle. Those
outcomes still need to reach the operator, so every one of them is published
here and streamed to websocket clients by package api.

# Architecture

	┌──────────── Broker ────────────┐
	│                                 │
	│  Publish ─▶ event queue (100)   │
	│                 │               │
	│           broadcast loop        │
	│                 │               │
	│      ┌──────────┼──────────┐    │
	│      ▼          ▼          ▼    │
	│   sub (50)   sub (50)   sub (50)│
	└─────────────────────────────────┘

Publish never blocks. A full queue or a full subscriber buffer drops the
delivery and counts it in Dropped, so a stalled websocket client cannot hold
up a refresh cycle.

# Event Types

	refresh.started     a cycle began; Metadata["trigger"] names the source
	refresh.completed   a cycle finished; Metadata has counts and duration
	fetch.failed        one kind's List failed; its previous data is kept
	persist.failed      one kind's cache write failed
	records.dropped     records were discarded during normalization
	entity.written      Apply succeeded
	entity.deleted      Remove succeeded

Events that concern a single collection set Kind.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.Kind, ev.Message)
	}
*/
package events
