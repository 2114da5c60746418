package topology

type CPUTopology struct {
	TotalCPUs    int    `json:"total_cpus"`
	TotalCores   int    `json:"total_cores"`
	Packages     int    `json:"packages"`
	HasSMT       bool   `json:"has_smt"`
	Online       []int  `json:"online"`
	Offline      []int  `json:"offline,omitempty"`
	Cores        []Core `json:"cores,omitempty"`
	DetectMethod string `json:"detect_method"`
}

// Core is one physical core and the logical CPUs (SMT threads) it exposes.
type Core struct {
	PackageID int   `json:"package_id"`
	CoreID    int   `json:"core_id"`
	Threads   []int `json:"threads"`
}

type CPUInfo struct {
	ID             int
	PackageID      int
	CoreID         int
	ThreadSiblings []int
}
