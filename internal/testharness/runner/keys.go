package runner

// Actions registered by the runner.
const (
	ActionPowerCycle      = "power_cycle"
	ActionVersions        = "versions"
	ActionSWDScan         = "swd_scan"
	ActionAttach          = "attach"
	ActionDetach          = "detach"
	ActionEraseMass       = "erase_mass"
	ActionMemoryMap       = "memory_map"
	ActionLoadFile        = "load_file"
	ActionDownload        = "download"
	ActionCompareSections = "compare_sections"
	ActionRunToStart      = "run_to_start"
	ActionPeek            = "peek"
	ActionPoke            = "poke"
	ActionBreakpoint      = "breakpoint"
	ActionWait            = "wait"
)

// Step parameters.
const (
	ParamAP         = "ap"
	ParamFile       = "file"
	ParamAddress    = "address"
	ParamValue      = "value"
	ParamType       = "type"
	ParamLocation   = "location"
	ParamDurationMs = "duration_ms"
)

// Step outputs.
const (
	KeyGDBVersion    = "gdb_version"
	KeyProbeVersion  = "probe_version"
	KeyProbeFirmware = "probe_firmware"
	KeyTargets       = "targets"
	KeyTopology      = "topology"
	KeyCtrlAP        = "ctrl_ap"
	KeyCoreAP        = "core_ap"
	KeyAttached      = "attached"
	KeyErased        = "erased"
	KeyMemoryMap     = "memory_map"
	KeyMemoryRegions = "memory_regions"
	KeyFile          = "file"
	KeyDigest        = "digest"
	KeyDownloaded    = "downloaded"
	KeyMatched       = "matched"
	KeyOutcome       = "outcome"
	KeyValue         = "value"
	KeyBreakpoint    = "breakpoint"
	KeyPowerCycles   = "power_cycles"
	KeyWaitedMs      = "waited_ms"
)

// Workflow variables seeded from the configuration.
const (
	VarFirmware  = "firmware"
	VarLockImage = "lock_image"
)

const (
	defaultPeekType = "uint32_t"

	// layoutDefault in a memory_regions expectation selects nrf54l.Layout.
	layoutDefault = "default"
)
