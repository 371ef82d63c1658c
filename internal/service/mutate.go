package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/printers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/util/retry"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/logging"
	"github.com/giantswarm/k7s/internal/resources"
)

// ItemManifest renders an item as YAML, without its managed fields.
func (s *Service) ItemManifest(ctx context.Context, rt resources.ResourceType, contextName, namespace, name string) (string, error) {
	contextName = s.clients.ResolveContext(contextName)
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.K8sCall{
		Operation:    instrumentation.OperationManifest,
		Context:      contextName,
		ResourceType: rt.Name,
		Namespace:    namespace,
		Name:         name,
	})
	defer span.End()

	start := time.Now()
	manifest, err := s.itemManifest(ctx, rt, contextName, namespace, name)
	s.record(ctx, contextName, instrumentation.OperationManifest, rt, namespace, start, err)
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		instrumentation.SetSpanError(span, err)
	}
	return manifest, err
}

func (s *Service) itemManifest(ctx context.Context, rt resources.ResourceType, contextName, namespace, name string) (string, error) {
	client, err := s.clients.Client(contextName)
	if err != nil {
		return "", err
	}

	obj, err := accessorFor(client, rt, namespace).get(ctx, name)
	if apierrors.IsNotFound(err) {
		return "", fmt.Errorf("%s %q: %w", rt.Identifier(), name, ErrItemNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s %q: %w", rt.Identifier(), name, err)
	}

	obj = obj.DeepCopyObject()
	if m, err := meta.Accessor(obj); err == nil {
		m.SetManagedFields(nil)
	}

	var buf bytes.Buffer
	printer := printers.NewTypeSetter(scheme.Scheme).ToPrinter(&printers.YAMLPrinter{})
	if err := printer.PrintObj(obj, &buf); err != nil {
		return "", fmt.Errorf("failed to render %s %q: %w", rt.Identifier(), name, err)
	}
	return buf.String(), nil
}

// ScaleItem sets the replica count of a Deployment or StatefulSet. It reports
// whether the update went through; other kinds and negative counts are
// refused.
func (s *Service) ScaleItem(ctx context.Context, rt resources.ResourceType, contextName, namespace, name string, replicas int32) bool {
	if !rt.IsScalable() || replicas < 0 {
		return false
	}

	contextName = s.clients.ResolveContext(contextName)
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.K8sCall{
		Operation:    instrumentation.OperationScale,
		Context:      contextName,
		ResourceType: rt.Name,
		Namespace:    namespace,
		Name:         name,
	})
	defer span.End()

	start := time.Now()
	err := s.scale(ctx, rt, contextName, namespace, name, replicas)
	s.record(ctx, contextName, instrumentation.OperationScale, rt, namespace, start, err)

	logger := logging.WithOperation(s.logger, instrumentation.OperationScale).With(
		logging.Context(contextName),
		logging.ResourceType(rt.Identifier()),
		logging.Namespace(namespace),
		logging.ResourceName(name))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Error("Failed to scale item", logging.SanitizedErr(err))
		return false
	}
	logger.Info("Scaled item", "replicas", replicas)
	instrumentation.SetSpanSuccess(span)
	return true
}

func (s *Service) scale(ctx context.Context, rt resources.ResourceType, contextName, namespace, name string, replicas int32) error {
	client, err := s.clients.Client(contextName)
	if err != nil {
		return err
	}
	cs := client.Clientset

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		if rt.IsDeployment() {
			return scaleDeployment(ctx, cs, namespace, name, replicas)
		}
		return scaleStatefulSet(ctx, cs, namespace, name, replicas)
	})
}

func scaleDeployment(ctx context.Context, cs kubernetes.Interface, namespace, name string, replicas int32) error {
	deployments := cs.AppsV1().Deployments(namespace)
	deployment, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return err
	}
	deployment.Spec.Replicas = &replicas
	_, err = deployments.Update(ctx, deployment, metav1.UpdateOptions{})
	return err
}

func scaleStatefulSet(ctx context.Context, cs kubernetes.Interface, namespace, name string, replicas int32) error {
	statefulSets := cs.AppsV1().StatefulSets(namespace)
	statefulSet, err := statefulSets.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return err
	}
	statefulSet.Spec.Replicas = &replicas
	_, err = statefulSets.Update(ctx, statefulSet, metav1.UpdateOptions{})
	return err
}

// DeleteItem deletes an item. A non-negative gracePeriod overrides the
// item's termination grace period. It reports whether the API server
// accepted the deletion.
func (s *Service) DeleteItem(ctx context.Context, rt resources.ResourceType, contextName, namespace, name string, gracePeriod *int64) bool {
	contextName = s.clients.ResolveContext(contextName)
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.K8sCall{
		Operation:    instrumentation.OperationDelete,
		Context:      contextName,
		ResourceType: rt.Name,
		Namespace:    namespace,
		Name:         name,
	})
	defer span.End()

	opts := metav1.DeleteOptions{}
	if gracePeriod != nil && *gracePeriod >= 0 {
		opts.GracePeriodSeconds = gracePeriod
	}

	start := time.Now()
	err := s.delete(ctx, rt, contextName, namespace, name, opts)
	s.record(ctx, contextName, instrumentation.OperationDelete, rt, namespace, start, err)

	logger := logging.WithOperation(s.logger, instrumentation.OperationDelete).With(
		logging.Context(contextName),
		logging.ResourceType(rt.Identifier()),
		logging.Namespace(namespace),
		logging.ResourceName(name))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Error("Failed to delete item", logging.SanitizedErr(err))
		return false
	}
	logger.Info("Deleted item")
	instrumentation.SetSpanSuccess(span)
	return true
}

func (s *Service) delete(ctx context.Context, rt resources.ResourceType, contextName, namespace, name string, opts metav1.DeleteOptions) error {
	if !rt.IsDeletable() {
		return fmt.Errorf("%s does not support delete", rt.Identifier())
	}
	client, err := s.clients.Client(contextName)
	if err != nil {
		return err
	}
	if err := accessorFor(client, rt, namespace).delete(ctx, name, opts); err != nil {
		return fmt.Errorf("failed to delete %s %q: %w", rt.Identifier(), name, err)
	}
	return nil
}
