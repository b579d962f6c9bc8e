// api/dao/policy_dao.go
package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/warden-net/warden/api/audit"
	warden_errors "github.com/warden-net/warden/api/errors"
	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
)

type PolicyDAO struct {
	Driver       neo4j.Driver
	AuditService audit.Service
}

func NewPolicyDAO(driver neo4j.Driver, auditService audit.Service) *PolicyDAO {
	dao := &PolicyDAO{Driver: driver, AuditService: auditService}
	// Ensure unique constraint on Policy ID
	ctx := context.Background()
	if err := dao.EnsureUniqueConstraint(ctx); err != nil {
		logger.Fatal("Failed to ensure unique constraint", zap.Error(err))
	}
	return dao
}

// EnsureUniqueConstraint ensures the unique constraint on the Policy ID
func (dao *PolicyDAO) EnsureUniqueConstraint(ctx context.Context) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() {
		if err := session.Close(); err != nil {
			logger.Error("Failed to close Neo4j session", zap.Error(err))
		}
	}()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        CREATE CONSTRAINT unique_policy_id IF NOT EXISTS
        FOR (p:POLICY) REQUIRE p.id IS UNIQUE
        `
		_, err := transaction.Run(query, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create unique constraint: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		logger.Error("Failed to ensure unique constraint on Policy ID", zap.Error(err))
		return err
	}
	return nil
}

// CreatePolicy creates a new policy node in Neo4j
func (dao *PolicyDAO) CreatePolicy(ctx context.Context, policy model.Policy) (string, error) {
	start := time.Now()
	logger.Info("Creating new policy", zap.String("policyName", policy.Name))
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	if policy.ID == "" {
		policy.ID = uuid.New().String() // Generate a new UUID if ID is not provided
	}

	result, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		checkQuery := `
        MATCH (p:POLICY {id: $id})
        RETURN p.id
        `
		checkResult, err := transaction.Run(checkQuery, map[string]interface{}{"id": policy.ID})
		if err != nil {
			return nil, warden_errors.ErrDatabaseOperation
		}
		if checkResult.Next() {
			return nil, warden_errors.ErrPolicyConflict
		}

		createQuery := `
            MERGE (p:POLICY {id: $id})
            ON CREATE SET p += $props
            ON MATCH SET p += $props
            RETURN p.id as id
        `

		conditionsJSON, _ := json.Marshal(policy.Conditions)

		parameters := map[string]interface{}{
			"id": policy.ID,
			"props": map[string]interface{}{
				"name":        policy.Name,
				"description": policy.Description,
				"source":      policy.Source,
				"destination": policy.Destination,
				"action":      string(policy.Action),
				"priority":    policy.Priority,
				"enabled":     policy.Enabled,
				"createdAt":   time.Now().UTC().Format(time.RFC3339Nano),
				"updatedAt":   time.Now().UTC().Format(time.RFC3339Nano),
				"conditions":  string(conditionsJSON),
			},
		}
		createResult, err := transaction.Run(createQuery, parameters)
		if err != nil {
			return nil, warden_errors.ErrDatabaseOperation
		}
		if createResult.Next() {
			id, found := createResult.Record().Get("id")
			if !found {
				return nil, warden_errors.ErrInternalServer
			}
			return id, nil
		}
		return nil, warden_errors.ErrInternalServer
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to create policy",
			zap.Error(err),
			zap.String("policyName", policy.Name),
			zap.Duration("duration", duration))
		return "", err
	}

	policyID := fmt.Sprintf("%v", result)
	logger.Info("Policy created successfully",
		zap.String("policyID", policyID),
		zap.Duration("duration", duration))

	dao.logChange(ctx, "CREATE_POLICY", policyID, nil, &policy)
	return policyID, nil
}

// UpdatePolicy updates an existing policy in Neo4j
func (dao *PolicyDAO) UpdatePolicy(ctx context.Context, policy model.Policy) (*model.Policy, error) {
	start := time.Now()
	logger.Info("Updating policy", zap.String("policyID", policy.ID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	var updatedPolicy *model.Policy
	oldPolicy, err := dao.GetPolicy(ctx, policy.ID)
	if err != nil {
		return nil, err
	}

	_, err = session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
				MATCH (p:POLICY {id: $id})
				SET p.name = $name, p.description = $description, p.source = $source,
					p.destination = $destination, p.action = $action, p.priority = $priority,
					p.enabled = $enabled, p.updatedAt = $updatedAt, p.createdAt = $createdAt,
					p.conditions = $conditions
				RETURN p
				`

		conditionsJSON, _ := json.Marshal(policy.Conditions)

		parameters := map[string]interface{}{
			"id": policy.ID, "name": policy.Name, "description": policy.Description,
			"source": policy.Source, "destination": policy.Destination,
			"action": string(policy.Action), "priority": policy.Priority,
			"enabled":    policy.Enabled,
			"updatedAt":  time.Now().UTC().Format(time.RFC3339Nano),
			"createdAt":  oldPolicy.CreatedAt.UTC().Format(time.RFC3339Nano),
			"conditions": string(conditionsJSON),
		}
		result, err := transaction.Run(query, parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to execute update query: %w", err)
		}
		if result.Next() {
			node := result.Record().Values[0].(neo4j.Node)
			updatedPolicy, _ = mapNodeToPolicy(node)
			return nil, nil
		}
		return nil, warden_errors.ErrPolicyNotFound
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to update policy",
			zap.Error(err),
			zap.String("policyID", policy.ID),
			zap.Duration("duration", duration))
		return nil, err
	}

	logger.Info("Policy updated successfully",
		zap.String("policyID", policy.ID),
		zap.Duration("duration", duration))

	dao.logChange(ctx, "UPDATE_POLICY", policy.ID, oldPolicy, updatedPolicy)
	return updatedPolicy, nil
}

// DeletePolicy deletes a policy from Neo4j
func (dao *PolicyDAO) DeletePolicy(ctx context.Context, policyID string) error {
	start := time.Now()
	logger.Info("Deleting policy", zap.String("policyID", policyID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:POLICY {id: $id})
        DETACH DELETE p
        `
		result, err := transaction.Run(query, map[string]interface{}{"id": policyID})
		if err != nil {
			return nil, fmt.Errorf("failed to execute delete query: %w", err)
		}
		summary, err := result.Consume()
		if err != nil {
			return nil, fmt.Errorf("failed to consume delete result: %w", err)
		}
		if summary.Counters().NodesDeleted() == 0 {
			return nil, warden_errors.ErrPolicyNotFound
		}
		return nil, nil
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to delete policy",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Policy deleted successfully",
		zap.String("policyID", policyID),
		zap.Duration("duration", duration))

	dao.logChange(ctx, "DELETE_POLICY", policyID, nil, nil)
	return nil
}

// GetPolicy retrieves a policy from Neo4j by its ID
func (dao *PolicyDAO) GetPolicy(ctx context.Context, policyID string) (*model.Policy, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (p:POLICY {id: $id})
    RETURN p
    `
	result, err := session.Run(query, map[string]interface{}{"id": policyID})
	if err != nil {
		return nil, fmt.Errorf("failed to execute get policy query: %w", err)
	}

	if result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		policy, err := mapNodeToPolicy(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map policy node to struct: %w", err)
		}
		return policy, nil
	}

	logger.Warn("Policy not found", zap.String("policyID", policyID))
	return nil, warden_errors.ErrPolicyNotFound
}

// ListPolicies retrieves all policies ordered for evaluation:
// priority descending, creation time ascending so the earlier-created
// policy wins priority ties.
func (dao *PolicyDAO) ListPolicies(ctx context.Context) ([]*model.Policy, error) {
	start := time.Now()

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (p:POLICY)
    RETURN p
    ORDER BY p.priority DESC, p.createdAt ASC, p.id ASC
    `
	result, err := session.Run(query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to execute list policies query: %w", err)
	}

	var policies []*model.Policy
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		policy, err := mapNodeToPolicy(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map policy node to struct: %w", err)
		}
		policies = append(policies, policy)
	}

	logger.Info("Policies listed successfully",
		zap.Int("count", len(policies)),
		zap.Duration("duration", time.Since(start)))

	return policies, nil
}

// SetEnabled flips the enabled flag on a policy.
func (dao *PolicyDAO) SetEnabled(ctx context.Context, policyID string, enabled bool) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:POLICY {id: $id})
        SET p.enabled = $enabled, p.updatedAt = $updatedAt
        RETURN p.id
        `
		result, err := transaction.Run(query, map[string]interface{}{
			"id":        policyID,
			"enabled":   enabled,
			"updatedAt": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to execute set enabled query: %w", err)
		}
		if !result.Next() {
			return nil, warden_errors.ErrPolicyNotFound
		}
		return nil, nil
	})
	if err != nil {
		logger.Error("Failed to set policy enabled flag",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.Bool("enabled", enabled))
		return err
	}

	dao.logChange(ctx, "SET_POLICY_ENABLED", policyID, nil, nil)
	return nil
}

func (dao *PolicyDAO) logChange(ctx context.Context, action, policyID string, oldPolicy, newPolicy *model.Policy) {
	entry := audit.Entry{
		Timestamp:     time.Now(),
		Action:        action,
		PolicyID:      policyID,
		ChangeDetails: createChangeDetails(oldPolicy, newPolicy),
	}
	if err := dao.AuditService.Log(ctx, entry); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}
}

func createChangeDetails(oldPolicy, newPolicy *model.Policy) json.RawMessage {
	details := map[string]interface{}{}
	if oldPolicy != nil {
		details["old"] = oldPolicy
	}
	if newPolicy != nil {
		details["new"] = newPolicy
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return raw
}

func mapNodeToPolicy(node neo4j.Node) (*model.Policy, error) {
	props := node.Props

	policy := &model.Policy{
		ID:          stringProp(props, "id"),
		Name:        stringProp(props, "name"),
		Description: stringProp(props, "description"),
		Source:      stringProp(props, "source"),
		Destination: stringProp(props, "destination"),
		Action:      model.Action(stringProp(props, "action")),
		Enabled:     boolProp(props, "enabled"),
	}

	if v, ok := props["priority"].(int64); ok {
		policy.Priority = int(v)
	}

	if raw := stringProp(props, "conditions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &policy.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}

	var err error
	if policy.CreatedAt, err = timeProp(props, "createdAt"); err != nil {
		return nil, err
	}
	if policy.UpdatedAt, err = timeProp(props, "updatedAt"); err != nil {
		return nil, err
	}

	return policy, nil
}

func stringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func boolProp(props map[string]interface{}, key string) bool {
	if v, ok := props[key].(bool); ok {
		return v
	}
	return false
}

func timeProp(props map[string]interface{}, key string) (time.Time, error) {
	raw := stringProp(props, key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return t, nil
}
