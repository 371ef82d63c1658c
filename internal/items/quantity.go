package items

import (
	"strconv"

	corev1 "k8s.io/api/core/v1"
)

const (
	nanosPerMilli = 1_000_000
	bytesPerMiB   = 1 << 20
)

// ceilDiv divides rounding up. The divisor must be positive.
func ceilDiv(n, d uint64) uint64 {
	return (n + d - 1) / d
}

// nanoCoresToMilli converts kubelet CPU usage to milli-cores, rounding up.
func nanoCoresToMilli(nanoCores uint64) uint64 {
	return ceilDiv(nanoCores, nanosPerMilli)
}

// bytesToMiBCeil converts bytes to MiB, rounding up.
func bytesToMiBCeil(bytes uint64) uint64 {
	return ceilDiv(bytes, bytesPerMiB)
}

// bytesToMiBFloor converts bytes to MiB, rounding down.
func bytesToMiBFloor(bytes uint64) uint64 {
	return bytes / bytesPerMiB
}

// percent returns part*100/whole truncated. ok is false when whole is zero.
func percent(part, whole uint64) (uint64, bool) {
	if whole == 0 {
		return 0, false
	}
	return part * 100 / whole, true
}

// quantityMilli returns a CPU quantity in milli-cores.
func quantityMilli(resources corev1.ResourceList, name corev1.ResourceName) (uint64, bool) {
	q, ok := resources[name]
	if !ok || q.Sign() < 0 {
		return 0, false
	}
	return uint64(q.MilliValue()), true
}

// quantityBytes returns a memory quantity in bytes.
func quantityBytes(resources corev1.ResourceList, name corev1.ResourceName) (uint64, bool) {
	q, ok := resources[name]
	if !ok || q.Sign() < 0 {
		return 0, false
	}
	return uint64(q.Value()), true
}

func formatUint(n uint64) string {
	return strconv.FormatUint(n, 10)
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}
