package liveness

// EnvironmentFingerprint is the signal set reported by the live-capture
// collaborator (browser or device) alongside a challenge response.
type EnvironmentFingerprint struct {
	AutomationDriver    bool `json:"automation_driver"`
	RootedOrJailbroken  bool `json:"rooted_or_jailbroken"`
	Virtualized         bool `json:"virtualized"`
	SpywareSignature    bool `json:"spyware_signature"`
	HardwareConcurrency int  `json:"hardware_concurrency"`
}

// Hardware concurrency outside this range is treated as an emulation marker.
// Zero means the collaborator did not report it and is not penalized.
const (
	minHardwareConcurrency = 2
	maxHardwareConcurrency = 64
)

// FingerprintPolicy screens environment fingerprints for disallowed
// indicators. The zero value applies the default indicator set.
type FingerprintPolicy struct {
	// AllowVirtualized permits virtualization markers, for test rigs running
	// inside VMs. All other indicators are always disallowed.
	AllowVirtualized bool
}

// Evaluate returns the names of every indicator that failed, in a stable
// order. An empty slice means the environment passed. A nil fingerprint
// fails closed: live verification without environment signals proves nothing.
func (p FingerprintPolicy) Evaluate(fp *EnvironmentFingerprint) []string {
	if fp == nil {
		return []string{"fingerprint_missing"}
	}
	var failed []string
	if fp.AutomationDriver {
		failed = append(failed, "automation_driver")
	}
	if fp.RootedOrJailbroken {
		failed = append(failed, "rooted_or_jailbroken")
	}
	if fp.Virtualized && !p.AllowVirtualized {
		failed = append(failed, "virtualized")
	}
	if fp.SpywareSignature {
		failed = append(failed, "spyware_signature")
	}
	if fp.HardwareConcurrency != 0 &&
		(fp.HardwareConcurrency < minHardwareConcurrency || fp.HardwareConcurrency > maxHardwareConcurrency) {
		failed = append(failed, "abnormal_hardware_concurrency")
	}
	return failed
}
