package notify

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHub_TopicIsSharedPerScopeAndFeature(t *testing.T) {
	hub := NewHub()
	assert.Same(t, hub.Topic("u:1", "notes"), hub.Topic("u:1", "notes"))
	assert.NotSame(t, hub.Topic("u:1", "notes"), hub.Topic("u:1", "summarizer"))
	assert.NotSame(t, hub.Topic("u:1", "notes"), hub.Topic("u:2", "notes"))
	topic := hub.Topic("g:abc", "notes")
	assert.Equal(t, "notes", topic.Feature())
	assert.Equal(t, "g:abc", topic.Scope())
}

func TestTopic_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	var calls int32
	sub := hub.Topic("u:1", "notes").Subscribe(func() { atomic.AddInt32(&calls, 1) })
	defer sub.Unsubscribe()

	hub.Topic("u:1", "notes").Publish()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
}

func TestTopic_OtherFeatureNotNotified(t *testing.T) {
	hub := NewHub()
	var calls int32
	sub := hub.Topic("u:1", "notes").Subscribe(func() { atomic.AddInt32(&calls, 1) })
	defer sub.Unsubscribe()

	hub.Topic("u:1", "answer-key").Publish()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestTopic_OtherScopeNotNotified(t *testing.T) {
	hub := NewHub()
	var mine, guest int32
	defer hub.Topic("u:1", "notes").Subscribe(func() { atomic.AddInt32(&mine, 1) }).Unsubscribe()
	defer hub.Topic("g:1", "notes").Subscribe(func() { atomic.AddInt32(&guest, 1) }).Unsubscribe()

	hub.Topic("u:2", "notes").Publish()
	hub.Topic("g:2", "notes").Publish()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&mine))
	assert.Zero(t, atomic.LoadInt32(&guest))
}

func TestTopic_CoalescesWhileHandlerBusy(t *testing.T) {
	hub := NewHub()
	release := make(chan struct{})
	var calls int32
	sub := hub.Topic("u:1", "notes").Subscribe(func() {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
		}
	})
	defer sub.Unsubscribe()

	hub.Topic("u:1", "notes").Publish()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 10; i++ {
		hub.Topic("u:1", "notes").Publish()
	}
	close(release)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestTopic_PublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewHub().Topic("u:1", "notes").Publish()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestSubscription_Unsubscribe(t *testing.T) {
	hub := NewHub()
	topic := hub.Topic("u:1", "notes")
	var calls int32
	sub := topic.Subscribe(func() { atomic.AddInt32(&calls, 1) })
	assert.Equal(t, 1, topic.Subscribers())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Zero(t, topic.Subscribers())

	hub.Topic("u:1", "notes").Publish()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestHub_ReleasesIdleTopics(t *testing.T) {
	hub := NewHub()
	hub.Topic("u:1", "notes").Publish()
	hub.Topic("g:x", "notes").Publish()
	assert.Zero(t, hub.Topics())

	sub := hub.Topic("u:1", "notes").Subscribe(func() {})
	assert.Equal(t, 1, hub.Topics())
	sub.Unsubscribe()
	assert.Zero(t, hub.Topics())
}

func TestTopic_SubscribeOnReleasedTopicStillReceives(t *testing.T) {
	hub := NewHub()
	stale := hub.Topic("u:1", "notes")
	stale.Publish() // 无订阅者，stale 已被回收

	var calls int32
	sub := stale.Subscribe(func() { atomic.AddInt32(&calls, 1) })
	defer sub.Unsubscribe()

	hub.Topic("u:1", "notes").Publish()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
}
