package items

// Kind selects the column strategy of a resource type.
type Kind int

const (
	KindOther Kind = iota
	KindPod
	KindService
	KindIngress
	KindDeployment
	KindConfigMap
	KindSecret
	KindNode
	KindPersistentVolume
	KindPersistentVolumeClaim
)

var kindNames = map[Kind]string{
	KindOther:                 "Other",
	KindPod:                   "Pod",
	KindService:               "Service",
	KindIngress:               "Ingress",
	KindDeployment:            "Deployment",
	KindConfigMap:             "ConfigMap",
	KindSecret:                "Secret",
	KindNode:                  "Node",
	KindPersistentVolume:      "PersistentVolume",
	KindPersistentVolumeClaim: "PersistentVolumeClaim",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindOther]
}

// KindOf maps an API group and kind to its column strategy. Custom resources
// and kinds without dedicated columns map to KindOther.
func KindOf(group, kind string) Kind {
	switch group {
	case "":
		switch kind {
		case "Pod":
			return KindPod
		case "Service":
			return KindService
		case "ConfigMap":
			return KindConfigMap
		case "Secret":
			return KindSecret
		case "Node":
			return KindNode
		case "PersistentVolume":
			return KindPersistentVolume
		case "PersistentVolumeClaim":
			return KindPersistentVolumeClaim
		}
	case "networking.k8s.io":
		if kind == "Ingress" {
			return KindIngress
		}
	case "apps":
		if kind == "Deployment" {
			return KindDeployment
		}
	}
	return KindOther
}
