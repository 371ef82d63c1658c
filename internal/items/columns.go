package items

import (
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"

	"github.com/giantswarm/k7s/internal/stats"
)

// columns is the computed output of one strategy.
type columns struct {
	highlighted []ItemValue
	secondary   []ItemValue
	pod         *PodDetails
}

func serviceColumns(svc *corev1.Service, _ stats.Summaries) columns {
	ports := make([]string, 0, len(svc.Spec.Ports))
	for _, p := range svc.Spec.Ports {
		ports = append(ports, p.Name+": "+strconv.Itoa(int(p.Port))+"►"+strconv.Itoa(int(p.NodePort)))
	}
	return columns{
		highlighted: []ItemValue{both("Type", string(svc.Spec.Type))},
		secondary: []ItemValue{
			value("ClusterIP", svc.Spec.ClusterIP),
			value("ExternalIPs", strings.Join(svc.Spec.ExternalIPs, ", ")),
			value("Ports", strings.Join(ports, ", ")),
		},
	}
}

func ingressColumns(ing *networkingv1.Ingress, _ stats.Summaries) columns {
	class := ""
	if ing.Spec.IngressClassName != nil {
		class = *ing.Spec.IngressClassName
	}

	hosts := make([]string, 0, len(ing.Spec.Rules))
	var ports []string
	for _, rule := range ing.Spec.Rules {
		hosts = append(hosts, rule.Host)
		if rule.HTTP == nil {
			continue
		}
		for _, path := range rule.HTTP.Paths {
			if path.Backend.Service != nil {
				ports = append(ports, strconv.Itoa(int(path.Backend.Service.Port.Number)))
			}
		}
	}

	addresses := make([]string, 0, len(ing.Status.LoadBalancer.Ingress))
	for _, lb := range ing.Status.LoadBalancer.Ingress {
		if lb.Hostname != "" {
			addresses = append(addresses, lb.Hostname)
		} else if lb.IP != "" {
			addresses = append(addresses, lb.IP)
		}
	}

	joinedHosts := strings.Join(hosts, ", ")
	return columns{
		highlighted: []ItemValue{both("Class", class)},
		secondary: []ItemValue{
			both("Hosts", joinedHosts),
			value("Ports", strings.Join(ports, ", ")),
			value("Address", strings.Join(addresses, ", ")),
		},
	}
}

func deploymentColumns(d *appsv1.Deployment, _ stats.Summaries) columns {
	status := d.Status
	ready := strconv.Itoa(int(status.ReadyReplicas)) + "/" + strconv.Itoa(int(status.Replicas))
	updated := strconv.Itoa(int(status.UpdatedReplicas))
	available := strconv.Itoa(int(status.AvailableReplicas))
	return columns{
		highlighted: []ItemValue{
			both("Ready", ready),
			mobile("Up-to-date", updated, "Updated: "+updated),
			mobile("Available", available, "Avail: "+available),
		},
	}
}

func configMapColumns(cm *corev1.ConfigMap, _ stats.Summaries) columns {
	count := formatInt(len(cm.Data) + len(cm.BinaryData))
	return columns{
		highlighted: []ItemValue{mobile("Data", count, count+" data")},
	}
}

func secretColumns(secret *corev1.Secret, _ stats.Summaries) columns {
	count := formatInt(len(secret.Data))
	return columns{
		highlighted: []ItemValue{
			both("Type", string(secret.Type)),
			mobile("Data", count, count+" data"),
		},
	}
}

func nodeColumns(node *corev1.Node, summaries stats.Summaries) columns {
	status := node.Status

	nodeStatus := "Not Ready"
	for _, c := range status.Conditions {
		if c.Status == corev1.ConditionTrue {
			nodeStatus = string(c.Type)
			break
		}
	}

	availableCPU, _ := quantityMilli(status.Capacity, corev1.ResourceCPU)
	availableMemory, _ := quantityBytes(status.Capacity, corev1.ResourceMemory)

	empty := emptyValue(summaries)
	cpu, cpuPercent := empty, empty
	mem, memPercent := notAvailable, empty
	pods, podsMobile := notAvailable, "# Pods n/a"

	if summary := summaries.Node(node.Name); summary != nil {
		nodeStats := summary.Node
		if nodeStats.CPU != nil && nodeStats.CPU.UsageNanoCores != nil {
			nanoCores := *nodeStats.CPU.UsageNanoCores
			cpu = formatUint(nanoCoresToMilli(nanoCores))
			cpuPercent = formatPercent(percent(nanoCores, availableCPU*nanosPerMilli))
		}
		if nodeStats.Memory != nil && nodeStats.Memory.WorkingSetBytes != nil {
			workingSet := *nodeStats.Memory.WorkingSetBytes
			mem = formatUint(bytesToMiBCeil(workingSet))
			memPercent = formatPercent(percent(workingSet, availableMemory))
		}
		pods = formatInt(len(summary.Pods))
		podsMobile = pods + " pods"
	}

	images := formatInt(len(status.Images))
	taints := formatInt(len(node.Spec.Taints))
	version := status.NodeInfo.KubeletVersion

	return columns{
		highlighted: []ItemValue{
			both("Status", nodeStatus),
			mobile("%CPU", cpuPercent, "CPU: "+cpuPercent+"%"),
			mobile("%Mem", memPercent, "Mem: "+memPercent+"%"),
		},
		secondary: []ItemValue{
			value("CPU", cpu),
			value("%CPU", cpuPercent),
			value("CPU/A", formatUint(availableCPU)),
			value("Mem", mem),
			value("%Mem", memPercent),
			value("Mem/A", formatUint(bytesToMiBCeil(availableMemory))),
			mobile("Pods", pods, podsMobile),
			mobile("Images", images, images+" images"),
			mobile("Taints", taints, taints+" taints"),
			mobile("Version", version, "K8s: "+version),
			value("Kernel", status.NodeInfo.KernelVersion),
		},
	}
}

func persistentVolumeColumns(pv *corev1.PersistentVolume, _ stats.Summaries) columns {
	spec := pv.Spec
	accessModes := AccessModes(spec.AccessModes)
	capacity := ""
	if q, ok := spec.Capacity[corev1.ResourceStorage]; ok {
		capacity = q.String()
	}
	claim := ""
	if spec.ClaimRef != nil {
		claim = spec.ClaimRef.Namespace + "/" + spec.ClaimRef.Name
	}
	reason := pv.Status.Reason
	mobileReason := reason
	if mobileReason == "" {
		mobileReason = "-"
	}
	phase := string(pv.Status.Phase)

	return columns{
		highlighted: []ItemValue{
			both("Status", phase),
			both("Access Modes", accessModes),
			both("Capacity", capacity),
		},
		secondary: []ItemValue{
			both("StorageClass", spec.StorageClassName),
			both("Claim", claim),
			value("Reclaim Policy", string(spec.PersistentVolumeReclaimPolicy)),
			mobile("Reason", reason, "Reason "+mobileReason),
		},
	}
}

func persistentVolumeClaimColumns(pvc *corev1.PersistentVolumeClaim, summaries stats.Summaries) columns {
	spec := pvc.Spec
	accessModes := AccessModes(spec.AccessModes)
	storageClass := ""
	if spec.StorageClassName != nil {
		storageClass = *spec.StorageClassName
	}

	usedMi, usedPercent := notAvailable, notAvailable
	if volume := summaries.Volume(pvc.Namespace, pvc.Name); volume != nil {
		if used, ok := usedBytes(volume.CapacityBytes, volume.AvailableBytes); ok {
			usedMi = formatUint(bytesToMiBCeil(used))
			if p, ok := percent(used, *volume.CapacityBytes); ok {
				usedPercent = formatUint(p)
			}
		}
	}

	used := notAvailable
	if usedPercent != notAvailable {
		used = usedPercent + "%"
	}
	capacity := ""
	if q, ok := pvc.Status.Capacity[corev1.ResourceStorage]; ok {
		capacity = q.String()
	}

	return columns{
		highlighted: []ItemValue{
			both("Status", string(pvc.Status.Phase)),
			both("Access Modes", accessModes),
			mobile("Used", used, "Used: "+used),
		},
		secondary: []ItemValue{
			both("StorageClass", storageClass),
			both("Volume", spec.VolumeName),
			value("Used Mi", usedMi),
			value("Used %", usedPercent),
			value("Capacity", capacity),
		},
	}
}

func usedBytes(capacity, available *uint64) (uint64, bool) {
	if capacity == nil || available == nil || *available > *capacity {
		return 0, false
	}
	return *capacity - *available, true
}

var accessModeAbbreviations = map[corev1.PersistentVolumeAccessMode]string{
	corev1.ReadWriteOnce:    "RWO",
	corev1.ReadOnlyMany:     "ROM",
	corev1.ReadWriteMany:    "RWM",
	corev1.ReadWriteOncePod: "RWOP",
}

// AccessModes abbreviates volume access modes the way kubectl prints them.
func AccessModes(modes []corev1.PersistentVolumeAccessMode) string {
	out := make([]string, 0, len(modes))
	for _, m := range modes {
		if short, ok := accessModeAbbreviations[m]; ok {
			out = append(out, short)
		} else {
			out = append(out, string(m))
		}
	}
	return strings.Join(out, ", ")
}

func formatPercent(p uint64, ok bool) string {
	if !ok {
		return notAvailable
	}
	return formatUint(p)
}
