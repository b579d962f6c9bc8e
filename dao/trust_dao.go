// api/dao/trust_dao.go
package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
)

// TrustDAO persists trust factors as append-only FACTOR nodes attached
// to DEVICE nodes. Factors are never updated or deleted; expiry is
// applied at read time so the audit trail stays complete.
type TrustDAO struct {
	Driver neo4j.Driver
}

func NewTrustDAO(driver neo4j.Driver) *TrustDAO {
	return &TrustDAO{Driver: driver}
}

// AppendFactor attaches a new factor to the device, creating the
// device node if this is the first factor recorded for it.
func (dao *TrustDAO) AppendFactor(ctx context.Context, mac string, factor model.TrustFactor) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MERGE (d:DEVICE {mac: $mac})
        CREATE (f:FACTOR {name: $name, impact: $impact, reason: $reason,
                          createdAt: $createdAt, expiresAt: $expiresAt})
        CREATE (d)-[:HAS_FACTOR]->(f)
        RETURN f
        `
		parameters := map[string]interface{}{
			"mac":       mac,
			"name":      factor.Name,
			"impact":    factor.Impact,
			"reason":    factor.Reason,
			"createdAt": factor.CreatedAt.UTC().Format(time.RFC3339Nano),
			"expiresAt": formatNullableTime(factor.ExpiresAt),
		}
		_, err := transaction.Run(query, parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to append trust factor: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		logger.Error("Failed to append trust factor",
			zap.Error(err),
			zap.String("mac", mac),
			zap.String("factor", factor.Name))
		return err
	}

	logger.Debug("Trust factor appended",
		zap.String("mac", mac),
		zap.String("factor", factor.Name),
		zap.Int("impact", factor.Impact))
	return nil
}

// GetFactors returns every factor ever recorded for a device,
// expired ones included.
func (dao *TrustDAO) GetFactors(ctx context.Context, mac string) ([]model.TrustFactor, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (d:DEVICE {mac: $mac})-[:HAS_FACTOR]->(f:FACTOR)
    RETURN f
    ORDER BY f.createdAt ASC
    `
	result, err := session.Run(query, map[string]interface{}{"mac": mac})
	if err != nil {
		return nil, fmt.Errorf("failed to execute get factors query: %w", err)
	}

	var factors []model.TrustFactor
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		factor, err := mapNodeToFactor(node)
		if err != nil {
			return nil, err
		}
		factors = append(factors, factor)
	}

	return factors, nil
}

// ListDeviceMACs returns the MAC of every device with recorded factors.
func (dao *TrustDAO) ListDeviceMACs(ctx context.Context) ([]string, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (d:DEVICE)
    RETURN d.mac AS mac
    ORDER BY d.mac ASC
    `
	result, err := session.Run(query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to execute list devices query: %w", err)
	}

	var macs []string
	for result.Next() {
		if mac, found := result.Record().Get("mac"); found {
			if s, ok := mac.(string); ok {
				macs = append(macs, s)
			}
		}
	}
	return macs, nil
}

// SetOverride stores or clears a manual trust score override on the
// device node itself.
func (dao *TrustDAO) SetOverride(ctx context.Context, mac string, score int, reason string) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MERGE (d:DEVICE {mac: $mac})
        SET d.overrideScore = $score, d.overrideReason = $reason,
            d.overrideAt = $overrideAt
        RETURN d
        `
		_, err := transaction.Run(query, map[string]interface{}{
			"mac":        mac,
			"score":      score,
			"reason":     reason,
			"overrideAt": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set trust override: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		logger.Error("Failed to set trust override", zap.Error(err), zap.String("mac", mac))
		return err
	}
	return nil
}

// GetOverride reports a manual override for the device, if any.
func (dao *TrustDAO) GetOverride(ctx context.Context, mac string) (score int, reason string, ok bool, err error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (d:DEVICE {mac: $mac})
    RETURN d.overrideScore AS score, d.overrideReason AS reason
    `
	result, runErr := session.Run(query, map[string]interface{}{"mac": mac})
	if runErr != nil {
		return 0, "", false, fmt.Errorf("failed to execute get override query: %w", runErr)
	}
	if result.Next() {
		record := result.Record()
		if raw, found := record.Get("score"); found && raw != nil {
			if v, isInt := raw.(int64); isInt {
				score = int(v)
				ok = true
			}
		}
		if raw, found := record.Get("reason"); found && raw != nil {
			reason, _ = raw.(string)
		}
	}
	return score, reason, ok, nil
}

func mapNodeToFactor(node neo4j.Node) (model.TrustFactor, error) {
	props := node.Props

	factor := model.TrustFactor{
		Name:   stringProp(props, "name"),
		Reason: stringProp(props, "reason"),
	}
	if v, ok := props["impact"].(int64); ok {
		factor.Impact = int(v)
	}

	var err error
	if factor.CreatedAt, err = timeProp(props, "createdAt"); err != nil {
		return model.TrustFactor{}, err
	}
	if raw := stringProp(props, "expiresAt"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.TrustFactor{}, fmt.Errorf("failed to parse expiresAt: %w", err)
		}
		factor.ExpiresAt = &t
	}

	return factor, nil
}

func formatNullableTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
