package firecracker

import (
	"encoding/json"
	"math"
	"os"

	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"

	"github.com/sandstormio/gateway/internal/sandbox"
)

const bootArgs = "console=ttyS0 reboot=k panic=1 pci=off"

// vmConfigDoc is the JSON document Firecracker's --config-file expects. It
// reuses firecracker-go-sdk's client/models struct shapes for the nested
// fields (the SDK's own Machine/VMCommandBuilder wrapper is intentionally
// not used — this driver speaks to the jailer and API socket directly, per
// the component design) but is its own top-level type because the SDK has
// no single struct matching this exact document shape.
type vmConfigDoc struct {
	BootSource        models.BootSource            `json:"boot-source"`
	Drives            []models.Drive               `json:"drives"`
	MachineConfig     models.MachineConfiguration  `json:"machine-config"`
	NetworkInterfaces []networkInterfaceConfig     `json:"network-interfaces"`
	Actions           actionConfig                 `json:"actions"`
}

type networkInterfaceConfig struct {
	IfaceID     string `json:"iface_id"`
	GuestMac    string `json:"guest_mac"`
	HostDevName string `json:"host_dev_name"`
}

type actionConfig struct {
	ActionType string `json:"action_type"`
}

func strPtr(s string) *string { return &s }
func i64Ptr(i int64) *int64   { return &i }
func boolPtr(b bool) *bool    { return &b }

// buildVMConfig produces the VM config document per the component design:
// vcpu_count = ceil(cpu_limit) default 1, mem_size_mib = max(memory_limit/MiB, 128)
// default 512, guest MAC fixed, host device = the sandbox's TAP name.
func buildVMConfig(cfg sandbox.Config, kernelImage, rootfsImage, tap string) vmConfigDoc {
	vcpus := int64(1)
	if cfg.CPULimit != nil {
		vcpus = int64(math.Ceil(*cfg.CPULimit))
	}

	memMib := int64(512)
	if cfg.MemoryLimit != nil {
		m := *cfg.MemoryLimit / (1024 * 1024)
		if m < 128 {
			m = 128
		}
		memMib = m
	}

	return vmConfigDoc{
		BootSource: models.BootSource{
			KernelImagePath: strPtr(kernelImage),
			BootArgs:        bootArgs,
		},
		Drives: []models.Drive{
			{
				DriveID:      strPtr("rootfs"),
				PathOnHost:   strPtr(rootfsImage),
				IsRootDevice: boolPtr(true),
				IsReadOnly:   boolPtr(false),
			},
		},
		MachineConfig: models.MachineConfiguration{
			VcpuCount:  i64Ptr(vcpus),
			MemSizeMib: i64Ptr(memMib),
			Smt:        boolPtr(false),
		},
		NetworkInterfaces: []networkInterfaceConfig{
			{IfaceID: "eth0", GuestMac: "06:00:00:00:00:01", HostDevName: tap},
		},
		Actions: actionConfig{ActionType: "InstanceStart"},
	}
}

func writeVMConfig(path string, doc vmConfigDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
