package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	k8stesting "k8s.io/client-go/testing"
	statsv1alpha1 "k8s.io/kubelet/pkg/apis/stats/v1alpha1"
)

var fastBackoff = wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 10}

func nextEvent(t *testing.T, w *ItemWatch) ItemEvent {
	t.Helper()
	select {
	case ev, ok := <-w.ResultChan():
		require.True(t, ok, "watch closed unexpectedly")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
	return ItemEvent{}
}

func waitClosed(t *testing.T, w *ItemWatch) {
	t.Helper()
	select {
	case _, ok := <-w.ResultChan():
		assert.False(t, ok, "expected the event channel to be closed")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch to close")
	}
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch to finish")
	}
}

// scriptedWatches hands out the given watchers in order and fails once they
// are used up.
func scriptedWatches(f *fixture, watchers ...*watch.FakeWatcher) *atomic.Int32 {
	var opened atomic.Int32
	f.clientset.PrependWatchReactor("pods", func(k8stesting.Action) (bool, watch.Interface, error) {
		i := int(opened.Add(1)) - 1
		if i >= len(watchers) {
			return true, nil, errors.New("connection refused")
		}
		return true, watchers[i], nil
	})
	return &opened
}

func podVerbs(actions []k8stesting.Action) []string {
	var verbs []string
	for _, action := range actions {
		if action.GetResource().Resource == "pods" && action.GetSubresource() == "" {
			verbs = append(verbs, action.GetVerb())
		}
	}
	return verbs
}

func TestWatchNotWatchable(t *testing.T) {
	f := setup(t, nil, nil)
	_, err := f.service.WatchItems(context.Background(), servicesType, testContext, "", "")
	assert.ErrorIs(t, err, ErrNotWatchable)
}

func TestWatchAddedInsertionIndex(t *testing.T) {
	f := setup(t, []runtime.Object{
		testPod("default", "a", nil),
		testPod("default", "c", nil),
		testPod("default", "d", nil),
	}, nil)
	ctx := context.Background()

	w, err := f.service.WatchItems(ctx, podsType, testContext, "default", "")
	require.NoError(t, err)
	defer w.Stop()

	_, err = f.clientset.CoreV1().Pods("default").Create(ctx, testPod("default", "b", nil), metav1.CreateOptions{})
	require.NoError(t, err)

	ev := nextEvent(t, w)
	assert.Equal(t, ActionAdded, ev.Action)
	assert.Equal(t, "b", ev.Item.Name)
	require.NotNil(t, ev.InsertionIndex)
	assert.Equal(t, 1, *ev.InsertionIndex)
	assert.Equal(t, 1, f.metrics.count(f.metrics.events, string(watch.Added)))
}

func TestWatchModifiedAndDeleted(t *testing.T) {
	f := setup(t, []runtime.Object{testPod("default", "web-0", nil)}, nil)
	ctx := context.Background()

	w, err := f.service.WatchItems(ctx, podsType, testContext, "default", "")
	require.NoError(t, err)
	defer w.Stop()

	running := testPod("default", "web-0", nil)
	running.Status.Phase = corev1.PodRunning
	_, err = f.clientset.CoreV1().Pods("default").Update(ctx, running, metav1.UpdateOptions{})
	require.NoError(t, err)

	ev := nextEvent(t, w)
	assert.Equal(t, ActionModified, ev.Action)
	assert.Equal(t, "Running", findValue(t, ev.Item.Highlighted, "Status"))
	assert.Nil(t, ev.InsertionIndex)

	require.NoError(t, f.clientset.CoreV1().Pods("default").Delete(ctx, "web-0", metav1.DeleteOptions{}))

	ev = nextEvent(t, w)
	assert.Equal(t, ActionDeleted, ev.Action)
	assert.Equal(t, "default__web-0", ev.Item.ID())
}

func TestWatchStop(t *testing.T) {
	f := setup(t, nil, nil)

	w, err := f.service.WatchItems(context.Background(), podsType, testContext, "", "")
	require.NoError(t, err)

	w.Stop()
	w.Stop()
	waitClosed(t, w)
}

func TestWatchContextCancel(t *testing.T) {
	f := setup(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	w, err := f.service.WatchItems(ctx, podsType, testContext, "", "")
	require.NoError(t, err)

	cancel()
	waitClosed(t, w)
}

func TestWatchReconnectsAfterExpiredVersion(t *testing.T) {
	f := setup(t, nil, nil, WithReconnectBackoff(fastBackoff))
	first, second := watch.NewFake(), watch.NewFake()
	opened := scriptedWatches(f, first, second)

	w, err := f.service.WatchItems(context.Background(), podsType, testContext, "default", "41")
	require.NoError(t, err)
	defer w.Stop()

	go first.Error(&metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    410,
		Reason:  metav1.StatusReasonExpired,
		Message: "too old resource version: 41",
	})
	go second.Add(testPod("default", "web-0", nil))

	ev := nextEvent(t, w)
	assert.Equal(t, ActionAdded, ev.Action)
	assert.Equal(t, "web-0", ev.Item.Name)
	assert.Equal(t, int32(2), opened.Load())

	// The expired version forces a fresh list before the second watch
	verbs := podVerbs(f.clientset.Actions())
	require.GreaterOrEqual(t, len(verbs), 3)
	assert.Equal(t, []string{"watch", "list", "watch"}, verbs[:3])
	assert.Equal(t, 1, f.metrics.count(f.metrics.reconnects, "success"))
}

func TestWatchResumesFromLastVersion(t *testing.T) {
	f := setup(t, nil, nil, WithReconnectBackoff(fastBackoff))
	first, second := watch.NewFake(), watch.NewFake()
	scriptedWatches(f, first, second)

	w, err := f.service.WatchItems(context.Background(), podsType, testContext, "default", "10")
	require.NoError(t, err)
	defer w.Stop()

	pod := testPod("default", "web-0", nil)
	pod.ResourceVersion = "12"
	go func() {
		first.Modify(pod)
		first.Stop()
	}()
	assert.Equal(t, ActionModified, nextEvent(t, w).Action)

	go second.Delete(pod)
	assert.Equal(t, ActionDeleted, nextEvent(t, w).Action)

	var versions []string
	for _, action := range f.clientset.Actions() {
		if wa, ok := action.(k8stesting.WatchAction); ok {
			versions = append(versions, wa.GetWatchRestrictions().ResourceVersion)
		}
	}
	assert.Equal(t, []string{"10", "12"}, versions)
}

func TestWatchGivesUp(t *testing.T) {
	f := setup(t, nil, nil, WithReconnectBackoff(fastBackoff), WithReconnectAttempts(2))
	first := watch.NewFake()
	opened := scriptedWatches(f, first)

	w, err := f.service.WatchItems(context.Background(), podsType, testContext, "", "1")
	require.NoError(t, err)

	first.Stop()
	waitClosed(t, w)

	assert.Equal(t, int32(3), opened.Load(), "initial watch plus two reconnects")
	assert.Equal(t, 2, f.metrics.count(f.metrics.reconnects, "error"))
}

func TestWatchSuccessfulReopensResetAttempts(t *testing.T) {
	f := setup(t, nil, nil, WithReconnectBackoff(fastBackoff), WithReconnectAttempts(2))

	// Every upstream opens fine and is closed by the server without events.
	quiet := make([]*watch.FakeWatcher, 6)
	for i := range quiet {
		quiet[i] = watch.NewFake()
		quiet[i].Stop()
	}
	opened := scriptedWatches(f, quiet...)

	w, err := f.service.WatchItems(context.Background(), podsType, testContext, "default", "1")
	require.NoError(t, err)
	waitClosed(t, w)

	assert.Equal(t, int32(8), opened.Load(), "six quiet opens, then two failed reopens")
	assert.Equal(t, 5, f.metrics.count(f.metrics.reconnects, "success"))
	assert.Equal(t, 2, f.metrics.count(f.metrics.reconnects, "error"))
}

func TestWatchModifiedRefreshesStatsForNewPods(t *testing.T) {
	old := testPod("default", "web-0", nil)
	old.CreationTimestamp = metav1.NewTime(time.Now().Add(-time.Hour))
	f := setup(t, []runtime.Object{old}, nil)
	f.fetcher.summaries["worker-1"] = &statsv1alpha1.Summary{
		Node: statsv1alpha1.NodeStats{NodeName: "worker-1"},
		Pods: []statsv1alpha1.PodStats{{
			PodRef: statsv1alpha1.PodReference{Namespace: "default", Name: "web-0"},
		}},
	}
	ctx := context.Background()

	require.NotNil(t, f.service.ListItems(ctx, podsType, testContext, "default"))
	cached := f.fetcher.Calls()
	require.Positive(t, cached, "listing pods caches their stats")

	upstream := watch.NewFake()
	scriptedWatches(f, upstream)
	w, err := f.service.WatchItems(ctx, podsType, testContext, "default", "1")
	require.NoError(t, err)
	defer w.Stop()

	fresh := testPod("default", "web-1", nil)
	fresh.CreationTimestamp = metav1.Now()
	go upstream.Modify(fresh)
	ev := nextEvent(t, w)
	assert.Equal(t, "web-1", ev.Item.Name)
	assert.Equal(t, cached+1, f.fetcher.Calls(), "a young pod missing from the stats forces a fetch")

	go upstream.Modify(old)
	ev = nextEvent(t, w)
	assert.Equal(t, "web-0", ev.Item.Name)
	assert.Equal(t, cached+1, f.fetcher.Calls(), "an old pod is served from the cache")
}
