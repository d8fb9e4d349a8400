package identity

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/user"
	"runtime"
	"strings"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/shirou/gopsutil/host"
)

// hostInfo is swapped in tests.
var hostInfo = host.InfoWithContext

// CollectDeviceInfo gathers a best-effort snapshot of this machine. Every
// field falls back to a runtime value or to "N/A"; it never fails.
func (r *Resolver) CollectDeviceInfo(ctx context.Context) model.DeviceInfo {
	info := model.DeviceInfo{
		SystemUsername: systemUsername(),
		OSPlatform:     runtime.GOOS,
		Architecture:   runtime.GOARCH,
		OSVersion:      cn.NotAvailable,
		OSRelease:      cn.NotAvailable,
		Hostname:       cn.NotAvailable,
	}

	if h, err := os.Hostname(); err == nil && h != "" {
		info.Hostname = h
	}

	if stat, err := hostInfo(ctx); err == nil && stat != nil {
		if stat.Hostname != "" {
			info.Hostname = stat.Hostname
		}

		if stat.OS != "" {
			info.OSPlatform = stat.OS
		}

		if stat.KernelVersion != "" {
			info.OSRelease = stat.KernelVersion
		}

		if v := strings.TrimSpace(stat.Platform + " " + stat.PlatformVersion); v != "" {
			info.OSVersion = v
		}

		if stat.KernelArch != "" {
			info.Architecture = stat.KernelArch
		}
	} else if err != nil {
		r.logger.Debugf("Host information unavailable: %v", err)
	}

	info.LocalIP = localIP()
	info.PublicIP = r.publicIP(ctx)

	return info
}

func systemUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}

	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}

	return cn.NotAvailable
}

// localIP returns the address of the interface that routes outbound traffic.
// Dialing UDP sends no packet.
func localIP() string {
	conn, err := net.DialTimeout("udp", cn.LocalIPProbeAddress, cn.LocalIPProbeTimeout)
	if err != nil {
		return cn.NotAvailable
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP != nil {
		return addr.IP.String()
	}

	return cn.NotAvailable
}

func (r *Resolver) publicIP(ctx context.Context) string {
	client := &http.Client{Timeout: cn.PublicIPTimeout}

	for _, endpoint := range r.endpoints {
		if ip := fetchIP(ctx, client, endpoint); ip != "" {
			return ip
		}

		r.logger.Debugf("Public IP endpoint %s gave no answer", endpoint)
	}

	return cn.NotAvailable
}

func fetchIP(ctx context.Context, client *http.Client, endpoint string) string {
	reqCtx, cancel := context.WithTimeout(ctx, cn.PublicIPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ""
	}

	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return ""
	}

	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return ""
	}

	return ip
}
