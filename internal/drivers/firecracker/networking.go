package firecracker

import (
	"fmt"
	"strings"

	"github.com/coreos/go-iptables/iptables"
	"github.com/vishvananda/netlink"

	"github.com/sandstormio/gateway/internal/sandbox"
)

// tapNameMaxHex bounds the hex suffix so "tap"+suffix stays within
// IFNAMSIZ (15 usable characters for a Linux interface name).
const tapNameMaxHex = 12

// network attaches and detaches per-sandbox TAP interfaces to the host
// bridge. Grounded on Siryoos-tartarus's pkg/styx/host_gateway.go, trimmed
// to the spec's assumption that the bridge already exists (no bridge
// creation/IP-allocation here — only TAP lifecycle and the NAT/forward
// rules needed for sandbox egress through it).
type network struct {
	bridgeName string
	ipt        *iptables.IPTables
}

func newNetwork(bridgeName string) (*network, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, fmt.Errorf("init iptables: %w", err)
	}
	return &network{bridgeName: bridgeName, ipt: ipt}, nil
}

// tapName derives the host TAP device name from a sandbox id, per
// build_vm_config's tap{id.simple()}: the hyphens are stripped to get a
// plain hex string, then truncated to fit IFNAMSIZ since this gateway's ids
// are 36-char hyphenated UUIDs rather than the original's 32-char simple
// form.
func tapName(id sandbox.ID) string {
	hex := strings.ReplaceAll(string(id), "-", "")
	if len(hex) > tapNameMaxHex {
		hex = hex[:tapNameMaxHex]
	}
	return fmt.Sprintf("tap%s", hex)
}

// attach creates the TAP device for id, brings it up, and attaches it to
// the host bridge, rolling back on any failure along the way.
func (n *network) attach(id sandbox.ID) (string, error) {
	name := tapName(id)

	if existing, err := netlink.LinkByName(name); err == nil {
		_ = netlink.LinkDel(existing)
	}

	la := netlink.NewLinkAttrs()
	la.Name = name
	tap := &netlink.Tuntap{LinkAttrs: la, Mode: netlink.TUNTAP_MODE_TAP}
	if err := netlink.LinkAdd(tap); err != nil {
		return "", fmt.Errorf("create tap %s: %w", name, err)
	}
	if err := netlink.LinkSetUp(tap); err != nil {
		_ = netlink.LinkDel(tap)
		return "", fmt.Errorf("set tap %s up: %w", name, err)
	}

	br, err := netlink.LinkByName(n.bridgeName)
	if err != nil {
		_ = netlink.LinkDel(tap)
		return "", fmt.Errorf("lookup bridge %s: %w", n.bridgeName, err)
	}
	if err := netlink.LinkSetMaster(tap, br); err != nil {
		_ = netlink.LinkDel(tap)
		return "", fmt.Errorf("attach tap %s to bridge %s: %w", name, n.bridgeName, err)
	}

	if err := n.ensureRules(); err != nil {
		_ = netlink.LinkDel(tap)
		return "", fmt.Errorf("configure iptables: %w", err)
	}

	return name, nil
}

// detach removes the TAP device for id. A device that is already gone is not
// an error; a failed delete is returned for the caller to log, matching the
// spec's cleanup-is-best-effort contract.
func (n *network) detach(id sandbox.ID) error {
	name := tapName(id)
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil // already gone
	}
	return netlink.LinkDel(link)
}

func (n *network) ensureRules() error {
	exists, err := n.ipt.Exists("filter", "FORWARD", "-i", n.bridgeName, "-j", "ACCEPT")
	if err != nil {
		return err
	}
	if !exists {
		if err := n.ipt.Append("filter", "FORWARD", "-i", n.bridgeName, "-j", "ACCEPT"); err != nil {
			return err
		}
	}

	exists, err = n.ipt.Exists("filter", "FORWARD", "-o", n.bridgeName, "-j", "ACCEPT")
	if err != nil {
		return err
	}
	if !exists {
		if err := n.ipt.Append("filter", "FORWARD", "-o", n.bridgeName, "-j", "ACCEPT"); err != nil {
			return err
		}
	}

	exists, err = n.ipt.Exists("nat", "POSTROUTING", "-o", n.bridgeName, "-j", "MASQUERADE")
	if err != nil {
		return err
	}
	if !exists {
		if err := n.ipt.Append("nat", "POSTROUTING", "-o", n.bridgeName, "-j", "MASQUERADE"); err != nil {
			return err
		}
	}

	return nil
}
