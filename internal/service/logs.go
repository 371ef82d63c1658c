package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/k8s"
	"github.com/giantswarm/k7s/internal/logging"
)

// LogRequest selects the pods and time window of a log query. Kind is a
// kind or plural name such as "Deployment" or "pods".
type LogRequest struct {
	Context   string
	Kind      string
	Namespace string
	Name      string
	Container string
	// Since defaults to ten minutes ago for Logs and to now for StreamLogs.
	Since *time.Time
}

// Logs returns the log lines of the pods behind a request, pod by pod.
func (s *Service) Logs(ctx context.Context, req LogRequest) ([]string, error) {
	req.Context = s.clients.ResolveContext(req.Context)
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.K8sCall{
		Operation:    instrumentation.OperationLogs,
		Context:      req.Context,
		ResourceType: req.Kind,
		Namespace:    req.Namespace,
		Name:         req.Name,
	})
	defer span.End()

	since := s.now().Add(-defaultLogWindow)
	if req.Since != nil {
		since = *req.Since
	}

	start := time.Now()
	lines, err := s.logs(ctx, req, since)
	s.metrics.RecordK8sOperation(ctx, req.Context, instrumentation.OperationLogs, strings.ToLower(req.Kind), req.Namespace, statusOf(err), time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	return lines, nil
}

func (s *Service) logs(ctx context.Context, req LogRequest, since time.Time) ([]string, error) {
	client, pods, err := s.logTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	lines := []string{}
	for _, pod := range pods {
		stream, err := podLogs(ctx, client.Clientset, req.Namespace, pod, req.Container, since, false)
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(stream)
		_ = stream.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read logs for pod %s/%s: %w", req.Namespace, pod, err)
		}
		lines = append(lines, splitLines(string(raw))...)
	}
	return lines, nil
}

// StreamLogs follows the logs of the pods behind a request. Lines of several
// pods are interleaved as they arrive.
func (s *Service) StreamLogs(ctx context.Context, req LogRequest) (io.ReadCloser, error) {
	req.Context = s.clients.ResolveContext(req.Context)
	since := s.now()
	if req.Since != nil {
		since = *req.Since
	}

	client, pods, err := s.logTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	// Followed logs outlive the request timeout.
	cs := client.Streaming().Clientset
	streams := make([]io.ReadCloser, 0, len(pods))
	for _, pod := range pods {
		stream, err := podLogs(ctx, cs, req.Namespace, pod, req.Container, since, true)
		if err != nil {
			for _, open := range streams {
				_ = open.Close()
			}
			return nil, err
		}
		streams = append(streams, stream)
	}
	if len(streams) == 1 {
		return streams[0], nil
	}
	return mergeLines(streams), nil
}

// logTargets resolves a request to the clients of its context and the names
// of the pods to read.
func (s *Service) logTargets(ctx context.Context, req LogRequest) (*k8s.ClusterClient, []string, error) {
	client, err := s.clients.Client(req.Context)
	if err != nil {
		return nil, nil, err
	}
	cs := client.Clientset

	var selector *metav1.LabelSelector
	switch strings.ToLower(req.Kind) {
	case "pod", "pods":
		return client, []string{req.Name}, nil
	case "deployment", "deployments":
		d, err := cs.AppsV1().Deployments(req.Namespace).Get(ctx, req.Name, metav1.GetOptions{})
		if err != nil {
			return nil, nil, workloadError(req, err)
		}
		selector = d.Spec.Selector
	case "statefulset", "statefulsets":
		sts, err := cs.AppsV1().StatefulSets(req.Namespace).Get(ctx, req.Name, metav1.GetOptions{})
		if err != nil {
			return nil, nil, workloadError(req, err)
		}
		selector = sts.Spec.Selector
	case "daemonset", "daemonsets":
		ds, err := cs.AppsV1().DaemonSets(req.Namespace).Get(ctx, req.Name, metav1.GetOptions{})
		if err != nil {
			return nil, nil, workloadError(req, err)
		}
		selector = ds.Spec.Selector
	case "replicaset", "replicasets":
		rs, err := cs.AppsV1().ReplicaSets(req.Namespace).Get(ctx, req.Name, metav1.GetOptions{})
		if err != nil {
			return nil, nil, workloadError(req, err)
		}
		selector = rs.Spec.Selector
	case "job", "jobs":
		job, err := cs.BatchV1().Jobs(req.Namespace).Get(ctx, req.Name, metav1.GetOptions{})
		if err != nil {
			return nil, nil, workloadError(req, err)
		}
		selector = job.Spec.Selector
	default:
		return nil, nil, fmt.Errorf("%s: %w", req.Kind, ErrNotLoggable)
	}

	pods, err := selectPods(ctx, cs, req.Namespace, selector)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("Resolved log targets",
		logging.Context(req.Context),
		logging.Namespace(req.Namespace),
		logging.ResourceName(req.Name),
		"pods", len(pods))
	return client, pods, nil
}

func workloadError(req LogRequest, err error) error {
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("%s %s/%s: %w", req.Kind, req.Namespace, req.Name, ErrItemNotFound)
	}
	return fmt.Errorf("failed to get %s %s/%s: %w", req.Kind, req.Namespace, req.Name, err)
}

// selectPods lists the pods matching a workload selector, sorted by name.
func selectPods(ctx context.Context, cs kubernetes.Interface, namespace string, selector *metav1.LabelSelector) ([]string, error) {
	if selector == nil {
		return nil, nil
	}
	sel, err := metav1.LabelSelectorAsSelector(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid workload selector: %w", err)
	}

	list, err := cs.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: sel.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	names := make([]string, 0, len(list.Items))
	for _, pod := range list.Items {
		names = append(names, pod.Name)
	}
	slices.Sort(names)
	return names, nil
}

func podLogs(ctx context.Context, cs kubernetes.Interface, namespace, pod, container string, since time.Time, follow bool) (io.ReadCloser, error) {
	opts := &corev1.PodLogOptions{
		Container: container,
		Follow:    follow,
		SinceTime: &metav1.Time{Time: since},
	}
	stream, err := cs.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for pod %s/%s: %w", namespace, pod, err)
	}
	return stream, nil
}

// splitLines splits log output on newlines, dropping the empty line after a
// trailing newline.
func splitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	lines := strings.Split(raw, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// MaxLogLineSize is the longest log line a stream reader accepts.
const MaxLogLineSize = 1 << 20

// NewLineScanner scans the lines of a log stream, accepting lines up to
// MaxLogLineSize. Longer lines fail the scan with bufio.ErrTooLong.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), MaxLogLineSize)
	return scanner
}

// mergedLogs interleaves the lines of several log streams.
type mergedLogs struct {
	*io.PipeReader
	streams []io.ReadCloser
	once    sync.Once
}

func mergeLines(streams []io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	m := &mergedLogs{PipeReader: pr, streams: streams}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, stream := range streams {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scanner := NewLineScanner(stream)
			for scanner.Scan() {
				mu.Lock()
				_, err := pw.Write(append(slices.Clip(scanner.Bytes()), '\n'))
				mu.Unlock()
				if err != nil {
					return
				}
			}
			if err := scanner.Err(); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("failed to read log stream: %w", err))
			}
		}()
	}
	go func() {
		wg.Wait()
		_ = pw.Close()
	}()
	return m
}

// Close stops every underlying stream.
func (m *mergedLogs) Close() error {
	var errs []error
	m.once.Do(func() {
		errs = append(errs, m.PipeReader.Close())
		for _, stream := range m.streams {
			errs = append(errs, stream.Close())
		}
	})
	return errors.Join(errs...)
}

func statusOf(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}
