// api/service/device_service.go
package service

import (
	"context"
	"strings"

	"github.com/warden-net/warden/api/model"
)

// IDeviceService is the directory of devices known to the engine.
type IDeviceService interface {
	UpsertDevice(ctx context.Context, device model.Device) error
	GetDevice(ctx context.Context, mac string) (model.Device, error)
	ListDevices(ctx context.Context) ([]*model.Device, error)
	ListMACs(ctx context.Context) ([]string, error)
}

// DeviceStore is the persistence boundary for devices. *dao.DeviceDAO
// satisfies it.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, device model.Device) error
	GetDevice(ctx context.Context, mac string) (*model.Device, error)
	ListDevices(ctx context.Context) ([]*model.Device, error)
}

type DeviceService struct {
	store DeviceStore
}

func NewDeviceService(store DeviceStore) *DeviceService {
	return &DeviceService{store: store}
}

func (s *DeviceService) UpsertDevice(ctx context.Context, device model.Device) error {
	device.MAC = strings.ToLower(device.MAC)
	return s.store.UpsertDevice(ctx, device)
}

func (s *DeviceService) GetDevice(ctx context.Context, mac string) (model.Device, error) {
	device, err := s.store.GetDevice(ctx, strings.ToLower(mac))
	if err != nil {
		return model.Device{}, err
	}
	return *device, nil
}

func (s *DeviceService) ListDevices(ctx context.Context) ([]*model.Device, error) {
	return s.store.ListDevices(ctx)
}

// ListMACs returns the identifiers of every known device, the unit the
// enforcement pass fans out over.
func (s *DeviceService) ListMACs(ctx context.Context) ([]string, error) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	macs := make([]string, len(devices))
	for i, d := range devices {
		macs[i] = d.MAC
	}
	return macs, nil
}
