// Package facts discovers read-only host properties at run start. Facts feed
// guard evaluation and module defaults and are immutable for the whole run.
package facts

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reeveops/reeve/pkg/modules"
)

// Known fact keys. Guards may only reference keys from this closed set plus
// inventory host vars.
const (
	KeyOSFamily            = "os_family"
	KeyDistribution        = "distribution"
	KeyDistributionVersion = "distribution_version"
	KeyKernel              = "kernel"
	KeyArch                = "arch"
	KeyHostname            = "hostname"
	KeyPkgMgr              = "pkg_mgr"
)

// KnownKeys returns the closed set of discoverable fact keys.
func KnownKeys() map[string]bool {
	return map[string]bool{
		KeyOSFamily:            true,
		KeyDistribution:        true,
		KeyDistributionVersion: true,
		KeyKernel:              true,
		KeyArch:                true,
		KeyHostname:            true,
		KeyPkgMgr:              true,
	}
}

// osFamilies maps distribution IDs (and ID_LIKE values) to families.
var osFamilies = map[string]string{
	"debian": "debian",
	"ubuntu": "debian",
	"rhel":   "redhat",
	"centos": "redhat",
	"fedora": "redhat",
	"rocky":  "redhat",
	"alma":   "redhat",
	"suse":   "suse",
	"sles":   "suse",
	"alpine": "alpine",
	"arch":   "arch",
}

// Gather collects facts from a host over the given connection. Collection is
// best-effort: a command that fails leaves its keys unset rather than failing
// the run, except for a dead channel, which is surfaced.
func Gather(ctx context.Context, conn modules.Conn) (map[string]string, error) {
	facts := make(map[string]string)

	out, err := conn.Run(ctx, "cat /etc/os-release 2>/dev/null")
	if err != nil {
		return nil, err
	}
	if out.Ok() {
		parseOSRelease(out.Stdout, facts)
	}

	for key, cmd := range map[string]string{
		KeyKernel:   "uname -r",
		KeyArch:     "uname -m",
		KeyHostname: "hostname",
	} {
		out, err := conn.Run(ctx, cmd)
		if err != nil {
			return nil, err
		}
		if out.Ok() {
			facts[key] = strings.TrimSpace(out.Stdout)
		}
	}

	if mgr := detectPkgMgr(ctx, conn); mgr != "" {
		facts[KeyPkgMgr] = mgr
	}

	log.Debug().Int("count", len(facts)).Msg("facts gathered")
	return facts, nil
}

// parseOSRelease extracts distribution facts from /etc/os-release content.
func parseOSRelease(content string, facts map[string]string) {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(strings.TrimSpace(value), `"`)
	}

	if id := strings.ToLower(fields["ID"]); id != "" {
		facts[KeyDistribution] = id
		if family, ok := osFamilies[id]; ok {
			facts[KeyOSFamily] = family
		}
	}
	if facts[KeyOSFamily] == "" {
		for _, like := range strings.Fields(strings.ToLower(fields["ID_LIKE"])) {
			if family, ok := osFamilies[like]; ok {
				facts[KeyOSFamily] = family
				break
			}
		}
	}
	if v := fields["VERSION_ID"]; v != "" {
		facts[KeyDistributionVersion] = v
	}
}

// detectPkgMgr probes for a known package manager binary.
func detectPkgMgr(ctx context.Context, conn modules.Conn) string {
	for _, mgr := range []string{"apt", "dnf", "yum"} {
		out, err := conn.Run(ctx, "command -v "+mgr)
		if err != nil {
			return ""
		}
		if out.Ok() {
			return mgr
		}
	}
	return ""
}

// Merge overlays inventory host vars onto discovered facts. Host vars win so
// an operator can pin a fact the discovery gets wrong.
func Merge(discovered map[string]string, hostVars map[string]string) map[string]string {
	merged := make(map[string]string, len(discovered)+len(hostVars))
	for k, v := range discovered {
		merged[k] = v
	}
	for k, v := range hostVars {
		merged[k] = v
	}
	return merged
}
