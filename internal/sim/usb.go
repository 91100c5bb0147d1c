package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/gousb"

	"msmanager/internal/api"
)

// PJRC USB identifiers of the controller.
const (
	VendorPJRC        gousb.ID = 0x16C0
	ProductSerial     gousb.ID = 0x0483
	ProductHalfKay    gousb.ID = 0x0478
	ProductMIDISerial gousb.ID = 0x0489
)

// DeviceProbe reports the controllers currently attached.
type DeviceProbe interface {
	Probe(ctx context.Context) (api.DeviceStatus, error)
}

// USBProbe enumerates PJRC devices on the USB bus.
type USBProbe struct{}

func (USBProbe) Probe(ctx context.Context) (api.DeviceStatus, error) {
	if err := ctx.Err(); err != nil {
		return api.DeviceStatus{}, err
	}
	usb := gousb.NewContext()
	defer usb.Close()

	var targets []api.DeviceTarget
	devices, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != VendorPJRC {
			return false
		}
		kind, ok := targetKind(desc.Product)
		if ok {
			targets = append(targets, api.DeviceTarget{
				ID:   fmt.Sprintf("usb:%d-%d", desc.Bus, desc.Address),
				Kind: kind,
			})
		}
		// Nothing needs the handles; the descriptor is enough.
		return false
	})
	for _, d := range devices {
		d.Close()
	}
	if err != nil && len(targets) == 0 {
		return api.DeviceStatus{}, fmt.Errorf("failed to enumerate usb devices: %w", err)
	}
	return deviceStatus(targets), nil
}

func targetKind(product gousb.ID) (api.TargetKind, bool) {
	switch product {
	case ProductHalfKay:
		return api.TargetBootloader, true
	case ProductSerial, ProductMIDISerial:
		return api.TargetSerial, true
	}
	return "", false
}

func deviceStatus(targets []api.DeviceTarget) api.DeviceStatus {
	if targets == nil {
		targets = []api.DeviceTarget{}
	}
	return api.DeviceStatus{Connected: len(targets) > 0, Count: len(targets), Targets: targets}
}

// StaticProbe reports a fixed set of targets; Set replaces them.
type StaticProbe struct {
	mu      sync.Mutex
	targets []api.DeviceTarget
}

func NewStaticProbe(targets ...api.DeviceTarget) *StaticProbe {
	return &StaticProbe{targets: targets}
}

func (p *StaticProbe) Set(targets ...api.DeviceTarget) {
	p.mu.Lock()
	p.targets = targets
	p.mu.Unlock()
}

func (p *StaticProbe) Probe(ctx context.Context) (api.DeviceStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return deviceStatus(append([]api.DeviceTarget(nil), p.targets...)), nil
}
