/*
Package mirror implements the delta sync between an authoritative process and
its peers.

The Publisher owns the published objects. New peers get a snapshot of every
object, afterwards each tick sends only the fields that changed (see
dirty.Tracker.SerializeDirty) and marks the objects clean. Mutations and
ticks are serialized by the publisher's lock (Mutate).

A Replica applies snapshot, update and remove envelopes to its copies and
reports every change through an optional callback.

Usage:

	pub := mirror.NewPublisher(tracker, hub)
	hub.OnJoin(func(s *session.Session) { _ = pub.SnapshotTo(s) })
	_ = pub.Publish("board", board)
	go pub.Run(ctx, 100*time.Millisecond)

	pub.Mutate(func() { board.Round.Set(2) })
*/
package mirror
