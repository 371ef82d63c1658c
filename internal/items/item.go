package items

import (
	"encoding/json"
	"time"

	corev1 "k8s.io/api/core/v1"
)

// ItemValue is one computed display column. Every value is shown on
// desktop; OnMobile marks the values also shown on mobile, with MobileValue
// as their mobile text.
type ItemValue struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	MobileValue string `json:"mobileValue,omitempty"`
	OnMobile    bool   `json:"showOnMobile"`
}

func (v ItemValue) ShowOnDesktop() bool {
	return true
}

func (v ItemValue) ShowOnMobile() bool {
	return v.OnMobile
}

// value builds a desktop-only column.
func value(name, v string) ItemValue {
	return ItemValue{Name: name, Value: v}
}

// both builds a column shown with the same text on desktop and mobile, even
// when that text is empty.
func both(name, v string) ItemValue {
	return ItemValue{Name: name, Value: v, MobileValue: v, OnMobile: true}
}

// mobile builds a column with a distinct mobile text.
func mobile(name, v, mobileValue string) ItemValue {
	return ItemValue{Name: name, Value: v, MobileValue: mobileValue, OnMobile: true}
}

// ContainerStatus is the per-container part of a pod item.
type ContainerStatus struct {
	Name         string                `json:"name"`
	ContainerID  string                `json:"containerID,omitempty"`
	Image        string                `json:"image"`
	ImageID      string                `json:"imageID,omitempty"`
	RestartCount int32                 `json:"restartCount"`
	Started      bool                  `json:"started"`
	Ready        bool                  `json:"ready"`
	State        corev1.ContainerState `json:"state"`
}

// PodDetails carries the pod specific fields of an item.
type PodDetails struct {
	Status     string            `json:"status"`
	PodIP      string            `json:"podIP,omitempty"`
	Containers []ContainerStatus `json:"containers"`
}

// ResourceItem is the uniform display model of one cluster object.
type ResourceItem struct {
	Name              string      `json:"name"`
	Namespace         string      `json:"namespace,omitempty"`
	CreationTimestamp time.Time   `json:"creationTimestamp"`
	Highlighted       []ItemValue `json:"highlightedValues"`
	Secondary         []ItemValue `json:"secondaryValues"`
	Pod               *PodDetails `json:"pod,omitempty"`
}

// ID returns an identifier usable as an HTML element id.
func (i ResourceItem) ID() string {
	return i.Namespace + "__" + i.Name
}

// Key returns the "namespace/name" identity of the item.
func (i ResourceItem) Key() string {
	if i.Namespace == "" {
		return i.Name
	}
	return i.Namespace + "/" + i.Name
}

func (i ResourceItem) String() string {
	return i.Namespace + " " + i.Name
}

// MarshalJSON adds the id to the serialized item.
func (i ResourceItem) MarshalJSON() ([]byte, error) {
	type item ResourceItem
	return json.Marshal(struct {
		ID string `json:"id"`
		item
	}{ID: i.ID(), item: item(i)})
}
