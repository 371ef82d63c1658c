package items

import (
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/giantswarm/k7s/internal/stats"
)

const (
	notAvailable = "n/a"
	zero         = "0"
)

// emptyValue is shown for usage values without stats. "n/a" means no stats
// are known at all, "0" that stats are known but none matched the object.
func emptyValue(summaries stats.Summaries) string {
	if summaries.Empty() {
		return notAvailable
	}
	return zero
}

// PodStatus derives the displayed status of a pod. A container that is not
// running reports its waiting or terminated reason for the whole pod,
// otherwise the pod phase is used.
func PodStatus(status corev1.PodStatus) string {
	var notRunning *corev1.ContainerStatus
	containers := status.ContainerStatuses
	switch {
	case len(containers) == 1:
		if containers[0].State.Running == nil {
			notRunning = &containers[0]
		}
	case len(containers) > 1:
		for i := range containers {
			state := containers[i].State
			if state.Running == nil && (state.Terminated == nil || state.Terminated.Reason != "Completed") {
				notRunning = &containers[i]
				break
			}
		}
	}

	if notRunning != nil {
		if reason := stateReason(notRunning.State); reason != "" {
			return strings.ReplaceAll(reason, "ContainerCreating", "Creating")
		}
	}
	return string(status.Phase)
}

func stateReason(state corev1.ContainerState) string {
	if state.Waiting != nil && state.Waiting.Reason != "" {
		return state.Waiting.Reason
	}
	if state.Terminated != nil {
		return state.Terminated.Reason
	}
	return ""
}

func podColumns(pod *corev1.Pod, summaries stats.Summaries) columns {
	status := pod.Status
	ready := 0
	for _, c := range status.ContainerStatuses {
		if c.Ready {
			ready++
		}
	}
	readyValue := formatInt(ready) + "/" + formatInt(len(status.ContainerStatuses))
	podStatus := PodStatus(status)

	empty := emptyValue(summaries)
	cpu, mem := empty, empty
	host := status.HostIP
	if podStats, node := summaries.Pod(pod.Namespace, pod.Name); podStats != nil {
		var nanoCores, workingSet uint64
		for _, c := range podStats.Containers {
			if c.CPU != nil && c.CPU.UsageNanoCores != nil {
				nanoCores += *c.CPU.UsageNanoCores
			}
			if c.Memory != nil && c.Memory.WorkingSetBytes != nil {
				workingSet += *c.Memory.WorkingSetBytes
			}
		}
		cpu = formatUint(nanoCoresToMilli(nanoCores))
		mem = formatUint(bytesToMiBFloor(workingSet))
		if node != "" {
			host = node
		}
	}

	return columns{
		highlighted: []ItemValue{
			both("Ready", readyValue),
			both("Status", podStatus),
		},
		secondary: []ItemValue{
			value("CPU", cpu),
			value("Mem", mem),
			both("IP", status.PodIP),
			value("Host", host),
		},
		pod: &PodDetails{
			Status:     podStatus,
			PodIP:      status.PodIP,
			Containers: containerStatuses(status.ContainerStatuses),
		},
	}
}

func containerStatuses(statuses []corev1.ContainerStatus) []ContainerStatus {
	out := make([]ContainerStatus, 0, len(statuses))
	for _, s := range statuses {
		started := false
		if s.Started != nil {
			started = *s.Started
		}
		out = append(out, ContainerStatus{
			Name:         s.Name,
			ContainerID:  s.ContainerID,
			Image:        s.Image,
			ImageID:      s.ImageID,
			RestartCount: s.RestartCount,
			Started:      started,
			Ready:        s.Ready,
			State:        s.State,
		})
	}
	return out
}
