// api/dao/device_dao.go
package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	warden_errors "github.com/warden-net/warden/api/errors"
	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
)

// DeviceDAO persists the device directory: identity, addressing and
// classification as last reported by the ingestion feeds.
type DeviceDAO struct {
	Driver neo4j.Driver
}

func NewDeviceDAO(driver neo4j.Driver) *DeviceDAO {
	return &DeviceDAO{Driver: driver}
}

// UpsertDevice records a sighting of a device, creating it on first
// sight and refreshing address/category/lastSeen otherwise.
func (dao *DeviceDAO) UpsertDevice(ctx context.Context, device model.Device) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MERGE (d:DEVICE {mac: $mac})
        ON CREATE SET d.firstSeen = $now
        SET d.ip = $ip, d.category = $category, d.zone = $zone, d.lastSeen = $now
        RETURN d
        `
		_, err := transaction.Run(query, map[string]interface{}{
			"mac":      device.MAC,
			"ip":       device.IP,
			"category": device.Category,
			"zone":     device.Zone,
			"now":      time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upsert device: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		logger.Error("Failed to upsert device", zap.Error(err), zap.String("mac", device.MAC))
		return err
	}
	return nil
}

// GetDevice retrieves a device by MAC.
func (dao *DeviceDAO) GetDevice(ctx context.Context, mac string) (*model.Device, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (d:DEVICE {mac: $mac})
    RETURN d
    `
	result, err := session.Run(query, map[string]interface{}{"mac": mac})
	if err != nil {
		return nil, fmt.Errorf("failed to execute get device query: %w", err)
	}

	if result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		device, err := mapNodeToDevice(node)
		if err != nil {
			return nil, err
		}
		return device, nil
	}

	return nil, warden_errors.ErrDeviceNotFound
}

// ListDevices returns every device in the directory.
func (dao *DeviceDAO) ListDevices(ctx context.Context) ([]*model.Device, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (d:DEVICE)
    RETURN d
    ORDER BY d.lastSeen DESC
    `
	result, err := session.Run(query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to execute list devices query: %w", err)
	}

	var devices []*model.Device
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		device, err := mapNodeToDevice(node)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, nil
}

func mapNodeToDevice(node neo4j.Node) (*model.Device, error) {
	props := node.Props

	device := &model.Device{
		MAC:      stringProp(props, "mac"),
		IP:       stringProp(props, "ip"),
		Category: stringProp(props, "category"),
		Zone:     stringProp(props, "zone"),
	}
	if device.Category == "" {
		device.Category = model.DefaultCategory
	}
	if device.Zone == "" {
		device.Zone = model.DefaultZone
	}

	var err error
	if device.FirstSeen, err = timeProp(props, "firstSeen"); err != nil {
		return nil, err
	}
	if device.LastSeen, err = timeProp(props, "lastSeen"); err != nil {
		return nil, err
	}

	return device, nil
}
