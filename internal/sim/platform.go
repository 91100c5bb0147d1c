package sim

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/host"

	"msmanager/internal/api"
)

// HostPlatform describes the machine the backend runs on.
func HostPlatform(ctx context.Context) (api.Platform, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return api.Platform{}, fmt.Errorf("failed to get host info: %w", err)
	}
	return PlatformOf(info.OS, info.KernelArch)
}

// PlatformOf maps gopsutil's OS and kernel arch names onto release platforms.
func PlatformOf(osName, arch string) (api.Platform, error) {
	var p api.Platform
	switch strings.ToLower(osName) {
	case "linux":
		p.OS = api.OSLinux
	case "darwin":
		p.OS = api.OSMacOS
	case "windows":
		p.OS = api.OSWindows
	default:
		return p, failure("unsupported_platform", fmt.Sprintf("unsupported os %q", osName), nil)
	}
	switch strings.ToLower(arch) {
	case "x86_64", "amd64":
		p.Arch = api.ArchX86_64
	case "aarch64", "arm64":
		p.Arch = api.ArchARM64
	default:
		return p, failure("unsupported_platform", fmt.Sprintf("unsupported arch %q", arch), nil)
	}
	return p, nil
}
